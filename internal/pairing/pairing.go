// Package pairing implements the matchmaking pairing algorithm (spec.md
// C6): a pressure-adaptive MMR window, O(n²) candidate enumeration scored
// by squared-MMR-distance minus a wait bonus, and greedy score-ascending
// acceptance with deterministic insertion-order tie-breaking.
//
// Grounded on original_source/.../matchmaking_three_way_comparison.py,
// which scores and compares three tuning profiles against recorded queue
// traces — the Profiles table below is this package's Go equivalent of
// that comparison harness's named profile set, exported for tests and
// for the orchestrator's configured MATCH_WINDOW_PROFILE.
package pairing

import (
	"sort"

	"evoladder/internal/queue"
)

// WindowTuning is one named set of pairing constants.
type WindowTuning struct {
	// Window base/growth per pressure band, per spec.md §4.6. Bands are
	// ordered high-pressure first; Pressure selects among them.
	HighBase, HighGrowth         int
	ModerateBase, ModerateGrowth int
	LowBase, LowGrowth           int
	WaitCoefficient              int
}

// Profiles holds the three named tuning profiles SPEC_FULL.md wires in
// place of a single hardcoded constant set, keyed by config.WindowProfile
// string value. "balanced" reproduces spec.md §4.6's literal constants;
// "aggressive" and "strict" scale them for faster or slower window growth.
var Profiles = map[string]WindowTuning{
	"balanced": {
		HighBase: 75, HighGrowth: 25,
		ModerateBase: 100, ModerateGrowth: 35,
		LowBase: 125, LowGrowth: 45,
		WaitCoefficient: 20,
	},
	"aggressive": {
		HighBase: 100, HighGrowth: 40,
		ModerateBase: 130, ModerateGrowth: 50,
		LowBase: 160, LowGrowth: 60,
		WaitCoefficient: 30,
	},
	"strict": {
		HighBase: 50, HighGrowth: 15,
		ModerateBase: 70, ModerateGrowth: 20,
		LowBase: 90, LowGrowth: 28,
		WaitCoefficient: 12,
	},
}

// Pairer runs the algorithm with a fixed tuning profile.
type Pairer struct {
	tuning WindowTuning
}

// New constructs a Pairer for the named profile, falling back to
// "balanced" if the name is unrecognized.
func New(profile string) *Pairer {
	t, ok := Profiles[profile]
	if !ok {
		t = Profiles["balanced"]
	}
	return &Pairer{tuning: t}
}

// scale implements spec.md §4.6's population-size scale(P) table.
func scale(p int) float64 {
	switch {
	case p <= 10:
		return 1.2
	case p <= 25:
		return 1.0
	default:
		return 0.8
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Pressure computes the pairing pressure metric (spec.md §4.6).
func Pressure(queueSize, effectivePopulation int) float64 {
	p := effectivePopulation
	if p < 1 {
		p = 1
	}
	return clamp01(scale(effectivePopulation) * float64(queueSize) / float64(p))
}

// Window computes W(waves, pressure) for this Pairer's tuning.
func (pr *Pairer) Window(waves int, pressure float64) int {
	var base, growth int
	switch {
	case pressure >= 0.20:
		base, growth = pr.tuning.HighBase, pr.tuning.HighGrowth
	case pressure >= 0.10:
		base, growth = pr.tuning.ModerateBase, pr.tuning.ModerateGrowth
	default:
		base, growth = pr.tuning.LowBase, pr.tuning.LowGrowth
	}
	return base + growth*waves
}

type candidate struct {
	leadIdx, followIdx int
	score              int
}

// Pair implements queue.Pairer: it enumerates admissible (lead, follow)
// candidates, scores them, and greedily accepts in ascending score order.
// Unmatched entries are simply absent from the returned slice; the caller
// (queue.Scheduler) is responsible for incrementing their wave counters.
func (pr *Pairer) Pair(lead, follow []queue.Entry, isBWMatch bool, queueSize, effectivePopulation int) []queue.Pair {
	pressure := Pressure(queueSize, effectivePopulation)

	var candidates []candidate
	for li, l := range lead {
		leadRace := queue.SelectRace(l, isBWMatch)
		leadMMR := l.MMR[leadRace]
		leadWindow := pr.Window(l.WaveCount, pressure)

		for fi, f := range follow {
			followRace := queue.SelectRace(f, !isBWMatch)
			followMMR := f.MMR[followRace]
			followWindow := pr.Window(f.WaveCount, pressure)

			window := leadWindow
			if followWindow < window {
				window = followWindow
			}

			diff := leadMMR - followMMR
			if diff < 0 {
				diff = -diff
			}
			if diff > window {
				continue
			}

			waitPriority := l.WaveCount + f.WaveCount
			score := diff*diff - waitPriority*pr.tuning.WaitCoefficient
			candidates = append(candidates, candidate{leadIdx: li, followIdx: fi, score: score})
		}
	}

	// Stable sort by score only: ties keep enumeration order, which is
	// (lead insertion order, then follow insertion order) since lead and
	// follow slices arrive from queue.Snapshot already insertion-ordered
	// and the double loop walks them in that order (spec.md §4.6
	// "Tie-breaking & determinism").
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	leadMatched := make([]bool, len(lead))
	followMatched := make([]bool, len(follow))
	var pairs []queue.Pair
	for _, c := range candidates {
		if leadMatched[c.leadIdx] || followMatched[c.followIdx] {
			continue
		}
		leadMatched[c.leadIdx] = true
		followMatched[c.followIdx] = true
		pairs = append(pairs, queue.Pair{
			Lead: lead[c.leadIdx], Follow: follow[c.followIdx], IsBWMatch: isBWMatch,
		})
	}
	return pairs
}
