package catalog

import (
	"context"
	"testing"
)

func mustLoad(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRaceShortName(t *testing.T) {
	c := mustLoad(t)

	cases := []struct {
		race  string
		short string
	}{
		{"bw_terran", "T1"},
		{"sc2_zerg", "Z2"},
	}
	for _, tc := range cases {
		got, ok := c.RaceShortName(tc.race)
		if !ok || got != tc.short {
			t.Errorf("RaceShortName(%q) = %q, %v; want %q, true", tc.race, got, ok, tc.short)
		}
	}

	if _, ok := c.RaceShortName("nope"); ok {
		t.Error("RaceShortName(unknown) should report ok=false")
	}
}

func TestActiveMapsExcludesInactive(t *testing.T) {
	c := mustLoad(t)
	maps := c.ActiveMaps()
	for _, m := range maps {
		if m == "new_repugnancy" {
			t.Error("ActiveMaps should exclude inactive maps")
		}
	}
	if len(maps) == 0 {
		t.Error("expected at least one active map")
	}
}

func TestBestServerUnorderedPair(t *testing.T) {
	c := mustLoad(t)

	s1 := c.BestServer("us_east", "eu_west")
	s2 := c.BestServer("eu_west", "us_east")
	if s1 != s2 {
		t.Errorf("BestServer should be symmetric: got %q vs %q", s1, s2)
	}
	if s1 == "" {
		t.Error("expected a resolved server")
	}
}

func TestBestServerFallsBackToDefault(t *testing.T) {
	c := mustLoad(t)
	got := c.BestServer("unknown_region_a", "unknown_region_b")
	if got != c.servers.Default {
		t.Errorf("BestServer fallback = %q, want default %q", got, c.servers.Default)
	}
}
