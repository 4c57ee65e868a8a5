package replay

import (
	"strings"

	"evoladder/internal/domain"
)

// VerificationResult carries the per-field booleans spec.md §4.8 step 3
// requires: shown to players/admins, never auto-rejecting.
type VerificationResult struct {
	NamesMatch       bool
	RacesMatch       bool
	MapMatch         bool
	WinnerConsistent bool

	// Non-blocking anomaly flags (spec.md §4.8's closing paragraph).
	ObserversPresent   bool
	ExcessiveDuration  bool
	CacheHandleAnomaly bool
}

const maxExpectedDurationSeconds = 3600 // generous upper bound for a 1v1 ladder game

// Verify compares parsed replay metadata against the match it was
// uploaded for. p1/p2 are the two players' current registered identities
// (display name plus alts); uploaderSide and uploaderReport identify
// which side uploaded and what they claimed, if anything, for the
// winner-consistency check.
func Verify(m domain.Match, p1, p2 domain.Player, meta domain.ReplayMetadata, uploaderSide int, uploaderReport *domain.Report) VerificationResult {
	var res VerificationResult

	res.NamesMatch = containsRegisteredName(meta.PlayerNames, p1) && containsRegisteredName(meta.PlayerNames, p2)
	res.RacesMatch = raceSetMatches(meta.Races, m.Player1Race, m.Player2Race)
	res.MapMatch = normalizeMap(meta.Map) == normalizeMap(m.Map)
	res.WinnerConsistent = winnerConsistent(meta.WinnerAsParsed, uploaderReport)

	res.ObserversPresent = len(meta.Observers) > 0
	res.ExcessiveDuration = meta.DurationSeconds > maxExpectedDurationSeconds
	res.CacheHandleAnomaly = len(meta.CacheHandles) == 0

	return res
}

// containsRegisteredName reports whether any of the parsed replay names
// matches the player's display name or any registered alt (spec.md §4.8
// "matching both players' display names or any registered alt").
func containsRegisteredName(parsedNames []string, p domain.Player) bool {
	candidates := append([]string{p.DisplayName}, p.AltNames...)
	for _, parsed := range parsedNames {
		for _, c := range candidates {
			if c != "" && strings.EqualFold(strings.TrimSpace(parsed), strings.TrimSpace(c)) {
				return true
			}
		}
	}
	return false
}

func raceSetMatches(parsed []string, want1, want2 domain.Race) bool {
	if len(parsed) != 2 {
		return false
	}
	a, b := strings.ToLower(parsed[0]), strings.ToLower(parsed[1])
	w1, w2 := strings.ToLower(string(want1)), strings.ToLower(string(want2))
	return (a == w1 && b == w2) || (a == w2 && b == w1)
}

func normalizeMap(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

func winnerConsistent(parsedWinner int, uploaderReport *domain.Report) bool {
	if uploaderReport == nil {
		return true // nothing submitted yet to be consistent with
	}
	switch *uploaderReport {
	case domain.ReportP1Win:
		return parsedWinner == 1
	case domain.ReportP2Win:
		return parsedWinner == 2
	case domain.ReportDraw:
		return parsedWinner == 0
	default:
		return true // abort/no-response reports carry no winner claim
	}
}
