package store

import (
	"context"
	"fmt"
	"math/rand"

	"evoladder/internal/domain"
)

// SeedRandomPlayers populates a store with n synthetic players rated
// across realistic MMR bands, for exercising pairing and leaderboard code
// in tests without depending on a real DB. Grounded on
// scripts/generate_realistic_mock_data.py's realistic-range generation,
// reduced from its full roster/name generator to just the fields pairing
// and leaderboard code read. Not referenced from cmd/ladderd.
func SeedRandomPlayers(ctx context.Context, s *Store, n int, rng *rand.Rand) error {
	races := []domain.Race{"bw_terran", "bw_protoss", "bw_zerg", "sc2_terran", "sc2_protoss", "sc2_zerg"}
	mmrRange := map[domain.Race][2]int{
		"bw_terran":    {800, 2400},
		"bw_protoss":   {800, 2400},
		"bw_zerg":      {800, 2400},
		"sc2_terran":   {1000, 2500},
		"sc2_protoss":  {1000, 2500},
		"sc2_zerg":     {1000, 2500},
	}

	for i := 0; i < n; i++ {
		uid := int64(1_000_000 + i)
		if _, _, err := s.CreatePlayerIfAbsent(ctx, uid); err != nil {
			return fmt.Errorf("fixtures: create player %d: %w", uid, err)
		}

		numRaces := 1 + rng.Intn(2) // most players play one or two races
		for j := 0; j < numRaces; j++ {
			race := races[rng.Intn(len(races))]
			bounds := mmrRange[race]
			startMMR := bounds[0] + rng.Intn(bounds[1]-bounds[0])
			if _, err := s.EnsureRating(ctx, uid, race, startMMR); err != nil {
				return fmt.Errorf("fixtures: seed rating %d/%s: %w", uid, race, err)
			}
		}
	}
	return nil
}
