// Package rating implements the pure Elo-style rating computation used to
// settle a terminal match. It has no I/O and no dependency on the store,
// queue, or match packages — spec.md §4.2 specifies it as a pure function
// of (R1, R2, result, games-played), and it is kept that way so the
// admin-override idempotence contract (spec.md §4.10) can call it
// directly against a frozen snapshot.
//
// This is the one component with no library grounding in the pack: it is
// a seven-line closed-form formula, and no example repo carries an Elo (or
// generic rating) library — see DESIGN.md for the explicit justification.
package rating

import "math"

// Result is the outcome from player 1's point of view.
type Result int

const (
	Player1Won Result = 1
	Player2Won Result = 2
	Draw       Result = 0
)

// score returns S_a for the Elo formula.
func (r Result) score() float64 {
	switch r {
	case Player1Won:
		return 1
	case Player2Won:
		return 0
	default:
		return 0.5
	}
}

// kFactor returns the tiered K-factor for a player with the given number
// of games played prior to this match (spec.md §4.2).
func kFactor(gamesPlayed int) int {
	switch {
	case gamesPlayed < 30:
		return 40
	case gamesPlayed < 100:
		return 32
	default:
		return 24
	}
}

// expected returns player a's win expectation against player b.
func expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Change computes the signed MMR delta for player 1 given both players'
// current ratings, the match result, and each player's games-played count
// prior to this match. Per spec.md's Match schema there is exactly one
// mmr_change field, signed relative to player 1; player 2's delta is
// always its exact negation — the original Python implementation computed
// independent per-player deltas from independent K-factors (see
// ratings.py's calculate_match_ratings, which returns change1 and change2
// separately), but spec.md's single shared field collapses that to one
// zero-sum value. This implementation resolves the tier from player 1's
// own games-played count, matching "mmr_change ... signed relative to
// player 1"; p2Games is accepted (not merely dropped) so call sites always
// pass both counts symmetrically, matching admin re-resolution's call
// shape where either side may be "player 1" for a given invocation.
func Change(r1, r2 int, result Result, p1Games, p2Games int) int {
	_ = p2Games
	e1 := expected(r1, r2)
	s1 := result.score()
	k1 := kFactor(p1Games)
	return round(float64(k1) * (s1 - e1))
}

// round performs standard half-away-from-zero rounding to the nearest
// integer MMR point.
func round(f float64) int {
	if f >= 0 {
		return int(f + 0.5)
	}
	return -int(-f + 0.5)
}

// Clamp enforces the "ratings clamp at 0 from below" invariant after a
// delta is applied.
func Clamp(mmr int) int {
	if mmr < 0 {
		return 0
	}
	return mmr
}
