package pairing

import (
	"testing"

	"evoladder/internal/queue"
)

func bwEntry(uid int64, mmr, waves int) queue.Entry {
	return queue.Entry{
		PlayerUID: uid,
		Races:     []string{"bw_terran"},
		MMR:       map[string]int{"bw_terran": mmr},
		WaveCount: waves,
	}
}

func sc2Entry(uid int64, mmr, waves int) queue.Entry {
	return queue.Entry{
		PlayerUID: uid,
		Races:     []string{"sc2_terran"},
		MMR:       map[string]int{"sc2_terran": mmr},
		WaveCount: waves,
	}
}

func TestPressureClampedToUnitInterval(t *testing.T) {
	if p := Pressure(1000, 5); p != 1 {
		t.Errorf("Pressure(1000,5) = %v, want 1 (clamped)", p)
	}
	if p := Pressure(0, 50); p != 0 {
		t.Errorf("Pressure(0,50) = %v, want 0", p)
	}
}

func TestWindowGrowsWithWaves(t *testing.T) {
	pr := New("balanced")
	w0 := pr.Window(0, 0.5) // high pressure band (>= 0.20)
	w1 := pr.Window(1, 0.5)
	if w1 <= w0 {
		t.Errorf("Window should grow with waves: w0=%d w1=%d", w0, w1)
	}
}

func TestWindowBandsMatchBalancedSpecConstants(t *testing.T) {
	pr := New("balanced")
	if got := pr.Window(0, 0.25); got != 75 {
		t.Errorf("high-pressure base = %d, want 75", got)
	}
	if got := pr.Window(0, 0.15); got != 100 {
		t.Errorf("moderate-pressure base = %d, want 100", got)
	}
	if got := pr.Window(0, 0.05); got != 125 {
		t.Errorf("low-pressure base = %d, want 125", got)
	}
}

func TestUnknownProfileFallsBackToBalanced(t *testing.T) {
	pr := New("does-not-exist")
	if pr.tuning != Profiles["balanced"] {
		t.Error("expected fallback to balanced profile")
	}
}

func TestPairSkipsCandidatesOutsideWindow(t *testing.T) {
	pr := New("balanced")
	lead := []queue.Entry{bwEntry(1, 1500, 0)}
	follow := []queue.Entry{sc2Entry(2, 2500, 0)} // 1000 diff, far outside any window

	pairs := pr.Pair(lead, follow, true, 2, 50)
	if len(pairs) != 0 {
		t.Errorf("expected no pairs outside window, got %d", len(pairs))
	}
}

func TestPairAcceptsCloseCandidateWithinWindow(t *testing.T) {
	pr := New("balanced")
	lead := []queue.Entry{bwEntry(1, 1500, 0)}
	follow := []queue.Entry{sc2Entry(2, 1520, 0)}

	pairs := pr.Pair(lead, follow, true, 2, 50)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].Lead.PlayerUID != 1 || pairs[0].Follow.PlayerUID != 2 {
		t.Errorf("unexpected pair: %+v", pairs[0])
	}
}

func TestPairNoDoubleMatch(t *testing.T) {
	pr := New("balanced")
	lead := []queue.Entry{bwEntry(1, 1500, 0)}
	follow := []queue.Entry{sc2Entry(2, 1510, 0), sc2Entry(3, 1505, 0)}

	pairs := pr.Pair(lead, follow, true, 3, 50)
	if len(pairs) != 1 {
		t.Fatalf("expected exactly 1 pair (lead can only match once), got %d", len(pairs))
	}
	// Closer MMR (3, diff=5) should win over (2, diff=10) under the
	// ascending-score greedy rule, since lower |diff| dominates the
	// squared-distance term at equal wave counts.
	if pairs[0].Follow.PlayerUID != 3 {
		t.Errorf("expected closer-MMR follow (3) to be chosen, got %d", pairs[0].Follow.PlayerUID)
	}
}

func TestPairDeterministicTieBreakByInsertionOrder(t *testing.T) {
	pr := New("balanced")
	// Two follow entries at equal MMR distance and equal wave count score
	// identically; enumeration order (insertion order) must decide.
	lead := []queue.Entry{bwEntry(1, 1500, 0)}
	follow := []queue.Entry{sc2Entry(2, 1500, 0), sc2Entry(3, 1500, 0)}

	pairs := pr.Pair(lead, follow, true, 3, 50)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].Follow.PlayerUID != 2 {
		t.Errorf("expected first-enumerated follow (2) on tie, got %d", pairs[0].Follow.PlayerUID)
	}
}
