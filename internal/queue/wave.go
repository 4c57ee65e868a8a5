package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/domain"
)

// Split partitions a wave snapshot into bw_side and sc2_side per spec.md
// §4.5's categorization-and-bridging rule: bw_only/sc2_only entries go to
// their matching side outright; both-game entries are distributed to
// equalize side sizes (pushed to the shorter side, ties broken toward
// sc2_side), unless both concrete sides are empty, in which case both
// entries alternate.
func Split(entries []Entry) (bwSide, sc2Side []Entry) {
	var bothEntries []Entry
	for _, e := range entries {
		switch e.Category {
		case CategoryBWOnly:
			bwSide = append(bwSide, e)
		case CategorySC2Only:
			sc2Side = append(sc2Side, e)
		case CategoryBoth:
			bothEntries = append(bothEntries, e)
		}
	}

	if len(bwSide) == 0 && len(sc2Side) == 0 {
		for i, e := range bothEntries {
			if i%2 == 0 {
				bwSide = append(bwSide, e)
			} else {
				sc2Side = append(sc2Side, e)
			}
		}
		return bwSide, sc2Side
	}

	for _, e := range bothEntries {
		if len(bwSide) < len(sc2Side) {
			bwSide = append(bwSide, e)
		} else {
			// strictly longer bw_side, or a tie: push to sc2_side
			sc2Side = append(sc2Side, e)
		}
	}
	return bwSide, sc2Side
}

// LeadFollow returns (lead, follow, leadIsBW) where lead is the shorter
// side (bw wins ties), per spec.md §4.5.
func LeadFollow(bwSide, sc2Side []Entry) (lead, follow []Entry, leadIsBW bool) {
	if len(bwSide) <= len(sc2Side) {
		return bwSide, sc2Side, true
	}
	return sc2Side, bwSide, false
}

// SelectRace picks which of an entry's selected races is used for a match
// on the given side: if the entry only selected one race for that game it
// is used outright; otherwise the race with the higher current MMR among
// the entry's selections for that game wins (spec.md §4.5 "Race Selection
// at Pair Time").
func SelectRace(e Entry, sideIsBW bool) domain.Race {
	var best domain.Race
	bestMMR := -1
	for _, r := range e.Races {
		if isBWRace(r) != sideIsBW {
			continue
		}
		if mmr := e.MMR[r]; mmr > bestMMR {
			best, bestMMR = r, mmr
		}
	}
	return best
}

// Pairer is the boundary to internal/pairing, kept as an interface so the
// scheduler doesn't import the pairing package directly (pairing imports
// queue.Entry instead, avoiding a cycle).
type Pairer interface {
	Pair(lead, follow []Entry, isBWMatch bool, queueSize, effectivePopulation int) []Pair
}

// Pair is one accepted pairing from a wave.
type Pair struct {
	Lead, Follow Entry
	IsBWMatch    bool
}

// Committer turns an accepted Pair into a live match (internal/match).
type Committer interface {
	Commit(ctx context.Context, p Pair) error
}

// PopulationSource supplies the pairing pressure metric's P (spec.md
// §4.6), normally internal/store.Store.RecentActivePopulation.
type PopulationSource interface {
	RecentActivePopulation(window time.Duration) int
}

// Scheduler drives the wave timer: every interval, snapshot the queue,
// split it, run the pairing algorithm, commit accepted pairs, and
// increment wave counters on everyone left behind.
type Scheduler struct {
	queue      *Queue
	pairer     Pairer
	committer  Committer
	population PopulationSource
	interval   time.Duration
	activeWindow time.Duration
	logger     zerolog.Logger
}

// NewScheduler constructs a wave scheduler.
func NewScheduler(q *Queue, pairer Pairer, committer Committer, population PopulationSource, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		queue: q, pairer: pairer, committer: committer, population: population,
		interval: interval, activeWindow: 24 * time.Hour, logger: logger,
	}
}

// Run blocks, ticking every interval until ctx is cancelled (spec.md
// §4.11 shutdown step 2 "stop the wave timer" is simply cancelling ctx).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs a single wave synchronously; exported so tests and the
// orchestrator can trigger one deterministically instead of waiting on a
// real timer.
func (s *Scheduler) Tick(ctx context.Context) {
	snapshot := s.queue.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	bwSide, sc2Side := Split(snapshot)
	lead, follow, leadIsBW := LeadFollow(bwSide, sc2Side)

	n := s.queue.Size()
	p := 1
	if s.population != nil {
		if pop := s.population.RecentActivePopulation(s.activeWindow); pop > 0 {
			p = pop
		}
	}

	pairs := s.pairer.Pair(lead, follow, leadIsBW, n, p)

	matched := make(map[int64]bool, len(pairs)*2)
	for _, pr := range pairs {
		if err := s.committer.Commit(ctx, pr); err != nil {
			s.logger.Error().Err(err).Int64("lead", pr.Lead.PlayerUID).Int64("follow", pr.Follow.PlayerUID).
				Msg("queue: commit pair failed, leaving both queued")
			continue
		}
		matched[pr.Lead.PlayerUID] = true
		matched[pr.Follow.PlayerUID] = true
		if err := s.queue.Remove(ctx, pr.Lead.PlayerUID, ReasonMatched); err != nil {
			s.logger.Error().Err(err).Int64("uid", pr.Lead.PlayerUID).Msg("queue: remove matched lead failed")
		}
		if err := s.queue.Remove(ctx, pr.Follow.PlayerUID, ReasonMatched); err != nil {
			s.logger.Error().Err(err).Int64("uid", pr.Follow.PlayerUID).Msg("queue: remove matched follow failed")
		}
	}

	var unmatched []int64
	for _, e := range snapshot {
		if !matched[e.PlayerUID] {
			unmatched = append(unmatched, e.PlayerUID)
		}
	}
	s.queue.IncrementWaves(unmatched)
}
