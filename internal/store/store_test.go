package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/domain"
	"evoladder/internal/writelog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "writelog.db")
	log, err := writelog.Open(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("writelog.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return New(log, zerolog.Nop())
}

func TestCreatePlayerIfAbsentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1, created1, err := s.CreatePlayerIfAbsent(ctx, 42)
	if err != nil {
		t.Fatalf("CreatePlayerIfAbsent: %v", err)
	}
	if !created1 {
		t.Error("expected created=true on first call")
	}
	if p1.RemainingAborts != defaultRemainingAborts {
		t.Errorf("RemainingAborts = %d, want %d", p1.RemainingAborts, defaultRemainingAborts)
	}

	p2, created2, err := s.CreatePlayerIfAbsent(ctx, 42)
	if err != nil {
		t.Fatalf("CreatePlayerIfAbsent (second): %v", err)
	}
	if created2 {
		t.Error("expected created=false on second call")
	}
	if p2.DiscordUID != p1.DiscordUID {
		t.Error("expected same player returned")
	}
}

func TestEnsureRatingCreatesDefaultThenReturnsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1, err := s.EnsureRating(ctx, 1, "bw_terran", 1500)
	if err != nil {
		t.Fatalf("EnsureRating: %v", err)
	}
	if r1.MMR != 1500 {
		t.Errorf("MMR = %d, want 1500", r1.MMR)
	}

	// A second call with a different starting MMR must not overwrite it.
	r2, err := s.EnsureRating(ctx, 1, "bw_terran", 999)
	if err != nil {
		t.Fatalf("EnsureRating (second): %v", err)
	}
	if r2.MMR != 1500 {
		t.Errorf("MMR after second EnsureRating = %d, want unchanged 1500", r2.MMR)
	}
}

func TestLeaderboardSortedDescendingByMMR(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mmrs := map[int64]int{1: 1200, 2: 1800, 3: 1500}
	for uid, mmr := range mmrs {
		if _, err := s.EnsureRating(ctx, uid, "sc2_zerg", mmr); err != nil {
			t.Fatalf("EnsureRating %d: %v", uid, err)
		}
	}

	board := s.Leaderboard("sc2_zerg", 0)
	if len(board) != 3 {
		t.Fatalf("len(board) = %d, want 3", len(board))
	}
	for i := 1; i < len(board); i++ {
		if board[i-1].MMR < board[i].MMR {
			t.Errorf("leaderboard not sorted descending: %v", board)
		}
	}
	if board[0].DiscordUID != 2 {
		t.Errorf("top player = %d, want 2 (highest MMR)", board[0].DiscordUID)
	}
}

func TestRecordMatchOutcomeUpdatesCountersAndReindexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureRating(ctx, 1, "bw_protoss", 1500); err != nil {
		t.Fatalf("EnsureRating: %v", err)
	}

	r, err := s.RecordMatchOutcome(ctx, 1, "bw_protoss", 20, true, false, false)
	if err != nil {
		t.Fatalf("RecordMatchOutcome: %v", err)
	}
	if r.MMR != 1520 {
		t.Errorf("MMR = %d, want 1520", r.MMR)
	}
	if r.GamesPlayed != 1 || r.GamesWon != 1 || r.GamesLost != 0 || r.GamesDrawn != 0 {
		t.Errorf("unexpected counters: %+v", r)
	}
	if r.LastPlayed == nil {
		t.Error("expected LastPlayed to be set")
	}
}

func TestCreateMatchAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1, err := s.CreateMatch(ctx, domain.Match{Player1UID: 1, Player2UID: 2, Player1Race: "bw_terran", Player2Race: "bw_zerg"})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	m2, err := s.CreateMatch(ctx, domain.Match{Player1UID: 3, Player2UID: 4, Player1Race: "sc2_terran", Player2Race: "sc2_zerg"})
	if err != nil {
		t.Fatalf("CreateMatch (second): %v", err)
	}
	if m2.ID != m1.ID+1 {
		t.Errorf("match ids not monotonic: %d then %d", m1.ID, m2.ID)
	}
}

func TestAdminResolveMatchIsIdempotentUnderReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureRating(ctx, 1, "bw_terran", 1500); err != nil {
		t.Fatalf("EnsureRating p1: %v", err)
	}
	if _, err := s.EnsureRating(ctx, 2, "bw_zerg", 1500); err != nil {
		t.Fatalf("EnsureRating p2: %v", err)
	}
	m, err := s.CreateMatch(ctx, domain.Match{
		Player1UID: 1, Player2UID: 2, Player1Race: "bw_terran", Player2Race: "bw_zerg",
		P1MMR: 1500, P2MMR: 1500,
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	in := AdminResolveMatchInput{
		MatchID: m.ID, Result: domain.ResultP1Win, MMRChange: 20,
		Player1MMR: 1520, Player2MMR: 1480,
	}

	if _, err := s.AdminResolveMatch(ctx, in); err != nil {
		t.Fatalf("AdminResolveMatch (first): %v", err)
	}
	if _, err := s.AdminResolveMatch(ctx, in); err != nil {
		t.Fatalf("AdminResolveMatch (replay): %v", err)
	}

	r1, _ := s.GetRating(1, "bw_terran")
	r2, _ := s.GetRating(2, "bw_zerg")
	if r1.MMR != 1520 || r2.MMR != 1480 {
		t.Errorf("MMRs after repeated resolution = %d/%d, want 1520/1480 (idempotent)", r1.MMR, r2.MMR)
	}

	got, _ := s.GetMatch(m.ID)
	if got.Result == nil || *got.Result != domain.ResultP1Win {
		t.Error("expected match result to be P1Win")
	}
	if got.MMRChange == nil || *got.MMRChange != 20 {
		t.Error("expected mmr_change = 20")
	}
}

func TestRecentActivePopulationCountsTouchedPlayers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.CreatePlayerIfAbsent(ctx, 1); err != nil {
		t.Fatalf("CreatePlayerIfAbsent: %v", err)
	}
	if _, _, err := s.CreatePlayerIfAbsent(ctx, 2); err != nil {
		t.Fatalf("CreatePlayerIfAbsent: %v", err)
	}

	if n := s.RecentActivePopulation(time.Hour); n != 2 {
		t.Errorf("RecentActivePopulation = %d, want 2", n)
	}
}
