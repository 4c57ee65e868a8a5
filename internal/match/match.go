// Package match is the match creation and reporting state machine
// (spec.md C7): CREATED -> REPORTING -> TERMINAL, with a CONFLICT branch
// resolved only by internal/admin.
//
// Grounded on the teacher's internal/collector, whose continuous poll
// loop owns a single piece of long-running per-entity state (a spider
// run) with its own timeout and completion check — generalized here from
// one global loop to one goroutine-free timer per match.
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/domain"
	"evoladder/internal/queue"
)

// Store is the subset of internal/store.Store the match engine needs.
type Store interface {
	GetPlayer(uid int64) (domain.Player, bool)
	GetRating(uid int64, race domain.Race) (domain.PerRaceRating, bool)
	EnsureRating(ctx context.Context, uid int64, race domain.Race, startingMMR int) (domain.PerRaceRating, error)
	CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error)
	PeekNextMatchID() int64
	GetMatch(id int64) (domain.Match, bool)
	UpdateMatchReport(ctx context.Context, matchID int64, side int, report domain.Report) (domain.Match, error)
	UpdateMatchResultAndMMRChange(ctx context.Context, matchID int64, result domain.MatchResult, mmrChange int) (domain.Match, error)
	RecordMatchOutcome(ctx context.Context, uid int64, race domain.Race, mmrDelta int, won, lost, drawn bool) (domain.PerRaceRating, error)
	SetPlayerState(ctx context.Context, uid int64, state domain.PlayerState) error
	SetRemainingAborts(ctx context.Context, uid int64, n int) error
}

// Catalog is the subset of internal/catalog.Catalog the match engine needs.
type Catalog interface {
	ActiveMaps() []string
	BestServer(regionA, regionB string) string
}

// MatchFoundEvent is delivered to internal/notify on creation.
type MatchFoundEvent struct {
	MatchID      int64
	RecipientUID int64
	OpponentUID  int64
	RecipientRace, OpponentRace domain.Race
	Map, Server  string
}

// ResultFinalizedEvent is delivered to internal/notify on terminal resolution.
type ResultFinalizedEvent struct {
	MatchID      int64
	RecipientUID int64
	Result       domain.MatchResult
	MMRChange    int // signed relative to the recipient
	MMRBefore, MMRAfter int
}

// Notifier is the subset of internal/notify.Router the engine needs.
type Notifier interface {
	NotifyMatchFound(ctx context.Context, ev MatchFoundEvent) error
	NotifyResultFinalized(ctx context.Context, ev ResultFinalizedEvent) error
}

const defaultStartingMMR = 1500

// Engine owns match creation, reporting, completion checks, and
// abandonment timers.
type Engine struct {
	store          Store
	catalog        Catalog
	notifier       Notifier
	abandonTimeout time.Duration
	logger         zerolog.Logger

	timers map[int64]*time.Timer
}

// New constructs a match Engine.
func New(store Store, catalog Catalog, notifier Notifier, abandonTimeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		store: store, catalog: catalog, notifier: notifier,
		abandonTimeout: abandonTimeout, logger: logger,
		timers: make(map[int64]*time.Timer),
	}
}

// Commit implements queue.Committer: it turns an accepted pairing wave
// pair into a live match (spec.md §4.7 "Creation").
func (e *Engine) Commit(ctx context.Context, pair queue.Pair) error {
	leadRace := queue.SelectRace(pair.Lead, pair.IsBWMatch)
	followRace := queue.SelectRace(pair.Follow, !pair.IsBWMatch)

	leadRating, err := e.store.EnsureRating(ctx, pair.Lead.PlayerUID, leadRace, defaultStartingMMR)
	if err != nil {
		return fmt.Errorf("match: commit: lead rating: %w", err)
	}
	followRating, err := e.store.EnsureRating(ctx, pair.Follow.PlayerUID, followRace, defaultStartingMMR)
	if err != nil {
		return fmt.Errorf("match: commit: follow rating: %w", err)
	}

	leadPlayer, _ := e.store.GetPlayer(pair.Lead.PlayerUID)
	followPlayer, _ := e.store.GetPlayer(pair.Follow.PlayerUID)
	server := e.catalog.BestServer(leadPlayer.Region, followPlayer.Region)

	nextID := e.store.PeekNextMatchID()
	m := domain.Match{
		Player1UID: pair.Lead.PlayerUID, Player2UID: pair.Follow.PlayerUID,
		Player1Race: leadRace, Player2Race: followRace,
		Map:          pickMap(e.catalog.ActiveMaps(), nextID),
		ServerRegion: server,
		P1MMR:        leadRating.MMR, P2MMR: followRating.MMR,
	}
	created, err := e.store.CreateMatch(ctx, m)
	if err != nil {
		return fmt.Errorf("match: commit: create match: %w", err)
	}

	if err := e.store.SetPlayerState(ctx, pair.Lead.PlayerUID, domain.StateMatched); err != nil {
		return fmt.Errorf("match: commit: set lead state: %w", err)
	}
	if err := e.store.SetPlayerState(ctx, pair.Follow.PlayerUID, domain.StateMatched); err != nil {
		return fmt.Errorf("match: commit: set follow state: %w", err)
	}

	e.scheduleAbandonment(created.ID)

	if err := e.notifier.NotifyMatchFound(ctx, MatchFoundEvent{
		MatchID: created.ID, RecipientUID: created.Player1UID, OpponentUID: created.Player2UID,
		RecipientRace: created.Player1Race, OpponentRace: created.Player2Race, Map: created.Map, Server: created.ServerRegion,
	}); err != nil {
		e.logger.Warn().Err(err).Int64("match_id", created.ID).Msg("match: notify p1 match found failed")
	}
	if err := e.notifier.NotifyMatchFound(ctx, MatchFoundEvent{
		MatchID: created.ID, RecipientUID: created.Player2UID, OpponentUID: created.Player1UID,
		RecipientRace: created.Player2Race, OpponentRace: created.Player1Race, Map: created.Map, Server: created.ServerRegion,
	}); err != nil {
		e.logger.Warn().Err(err).Int64("match_id", created.ID).Msg("match: notify p2 match found failed")
	}
	return nil
}

// pickMap deterministically selects a map by match id, so the same id
// always yields the same map (spec.md §4.7 step 3).
func pickMap(activeMaps []string, matchID int64) string {
	if len(activeMaps) == 0 {
		return ""
	}
	idx := matchID % int64(len(activeMaps))
	if idx < 0 {
		idx += int64(len(activeMaps))
	}
	return activeMaps[idx]
}

func (e *Engine) scheduleAbandonment(matchID int64) {
	if old, ok := e.timers[matchID]; ok {
		old.Stop()
	}
	t := time.AfterFunc(e.abandonTimeout, func() {
		e.onAbandonmentDeadline(matchID)
	})
	e.timers[matchID] = t
}

// ResumeAbandonmentMonitor re-arms a match's abandonment timer after a
// restart (spec.md §4.11 startup step: non-terminal matches found in the
// loaded snapshot need their monitor re-armed, since in-process timers
// don't survive a process restart). Re-arming restarts the full timeout
// window rather than reconstructing elapsed time, since the write log's
// replay has already brought the match's reports up to date and a fresh
// window is simpler and no less safe than tracking remaining time across
// a restart. Safe to call more than once for the same match: the dedup
// happens inside scheduleAbandonment, which stops any existing timer
// before arming a new one.
func (e *Engine) ResumeAbandonmentMonitor(matchID int64) {
	e.scheduleAbandonment(matchID)
}

func (e *Engine) onAbandonmentDeadline(matchID int64) {
	ctx := context.Background()
	m, ok := e.store.GetMatch(matchID)
	if !ok || (m.Result != nil && m.Result.IsTerminal()) {
		return
	}
	noResponse := domain.ReportNoResponse
	if m.Player1Report == nil {
		if _, err := e.store.UpdateMatchReport(ctx, matchID, 1, noResponse); err != nil {
			e.logger.Error().Err(err).Int64("match_id", matchID).Msg("match: abandonment report p1 failed")
		}
	}
	if m.Player2Report == nil {
		if _, err := e.store.UpdateMatchReport(ctx, matchID, 2, noResponse); err != nil {
			e.logger.Error().Err(err).Int64("match_id", matchID).Msg("match: abandonment report p2 failed")
		}
	}
	e.checkCompletion(ctx, matchID)
}
