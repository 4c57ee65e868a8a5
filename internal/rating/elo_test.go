package rating

import "testing"

func TestChangeEqualRatingsFullKWin(t *testing.T) {
	// Scenario A from spec.md: R1=R2=1500, both 0 games (K=40), p1 wins.
	// E=0.5, S=1 => delta = 40 * 0.5 = 20.
	got := Change(1500, 1500, Player1Won, 0, 0)
	if got != 20 {
		t.Errorf("Change = %d, want 20", got)
	}
}

func TestChangeDrawEqualRatingsIsZero(t *testing.T) {
	got := Change(1500, 1500, Draw, 0, 0)
	if got != 0 {
		t.Errorf("Change = %d, want 0", got)
	}
}

func TestKFactorTiers(t *testing.T) {
	cases := []struct {
		games int
		want  int
	}{
		{0, 40},
		{29, 40},
		{30, 32},
		{99, 32},
		{100, 24},
		{500, 24},
	}
	for _, tc := range cases {
		if got := kFactor(tc.games); got != tc.want {
			t.Errorf("kFactor(%d) = %d, want %d", tc.games, got, tc.want)
		}
	}
}

func TestRoundTripOppositeSignEqualMagnitude(t *testing.T) {
	// Round-trip property: (R1, R2, 1) then (R2, R1, 2) with the same K
	// (same games_played on both sides) produces equal-magnitude,
	// opposite-sign deltas.
	r1, r2 := 1600, 1400
	games := 10 // same K tier (40) on both sides

	forward := Change(r1, r2, Player1Won, games, games)
	backward := Change(r2, r1, Player2Won, games, games)

	if forward != -backward {
		t.Errorf("forward=%d backward=%d; expected opposite sign, equal magnitude", forward, backward)
	}
	if forward == 0 {
		t.Error("expected a non-zero change for unequal ratings")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-5) != 0 {
		t.Error("Clamp(-5) should floor at 0")
	}
	if Clamp(100) != 100 {
		t.Error("Clamp(100) should be unchanged")
	}
}

func TestScenarioCDrawAtEqualMMRIsZeroChange(t *testing.T) {
	// Scenario C: admin resolves draw with equal starting MMRs -> no change.
	got := Change(1500, 1500, Draw, 5, 5)
	if got != 0 {
		t.Errorf("Change = %d, want 0", got)
	}
}
