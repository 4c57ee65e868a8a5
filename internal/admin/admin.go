package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/domain"
	"evoladder/internal/notify"
	"evoladder/internal/queue"
	"evoladder/internal/rating"
	"evoladder/internal/store"
)

// Store is the subset of internal/store.Store the admin engine needs.
type Store interface {
	GetMatch(id int64) (domain.Match, bool)
	GetPlayer(uid int64) (domain.Player, bool)
	GetRating(uid int64, race domain.Race) (domain.PerRaceRating, bool)
	EnsureRating(ctx context.Context, uid int64, race domain.Race, startingMMR int) (domain.PerRaceRating, error)
	ApplyMMRDelta(ctx context.Context, uid int64, race domain.Race, delta int) (domain.PerRaceRating, error)
	AdminResolveMatch(ctx context.Context, in store.AdminResolveMatchInput) (domain.Match, error)
	ClearMatchReports(ctx context.Context, matchID int64) error
	SetPlayerState(ctx context.Context, uid int64, state domain.PlayerState) error
	SetRemainingAborts(ctx context.Context, uid int64, n int) error
	SetBanned(ctx context.Context, uid int64, banned bool) error
	LogAdminAction(ctx context.Context, a domain.AdminAction) (domain.AdminAction, error)
}

// QueueController is the subset of internal/queue.Queue the admin engine
// needs to force players out of the queue.
type QueueController interface {
	Remove(ctx context.Context, uid int64, reason queue.RemoveReason) error
	Snapshot() []queue.Entry
}

// MatchReporter is the subset of internal/match.Engine the admin engine
// needs to drive the normal completion flow for a fresh-match resolution.
type MatchReporter interface {
	Report(ctx context.Context, matchID int64, side int, report domain.Report) error
}

// Notifier is the subset of internal/notify.Router the admin engine needs.
type Notifier interface {
	Enqueue(ctx context.Context, priority notify.Priority, msg notify.Message) error
}

const defaultStartingMMR = 1500

// Engine implements the admin/owner override surface (spec.md C10): match
// re-resolution, MMR adjustment, queue management, abort resets, and bans.
// Every operation is audited through Store.LogAdminAction.
type Engine struct {
	allowlist   *Allowlist
	store       Store
	queue       QueueController
	matchEngine MatchReporter
	notifier    Notifier
	logger      zerolog.Logger
}

// New constructs an admin Engine.
func New(allowlist *Allowlist, store Store, queue QueueController, matchEngine MatchReporter, notifier Notifier, logger zerolog.Logger) *Engine {
	return &Engine{
		allowlist:   allowlist,
		store:       store,
		queue:       queue,
		matchEngine: matchEngine,
		notifier:    notifier,
		logger:      logger,
	}
}

// Allowlist exposes the underlying roster so callers (e.g. internal/guard)
// can check admin/owner membership without reaching into the engine.
func (e *Engine) Allowlist() *Allowlist { return e.allowlist }

// ResolveMatch is the admin-override match decision (spec.md §4.10). A
// match with no reports yet and no terminal result is resolved by
// simulating both players reporting the chosen outcome and letting the
// normal completion flow settle MMR; any other match (already terminal,
// or deadlocked in CONFLICT with real reports on file) is resolved by the
// idempotent absolute-set algorithm, which is safe to re-run against the
// same match any number of times.
func (e *Engine) ResolveMatch(ctx context.Context, adminUID int64, adminName string, matchID int64, result domain.MatchResult, reason string) error {
	m, ok := e.store.GetMatch(matchID)
	if !ok {
		return fmt.Errorf("admin: resolve match: unknown match %d", matchID)
	}

	isFresh := m.Player1Report == nil && m.Player2Report == nil && (m.Result == nil || !m.Result.IsTerminal())
	if isFresh && result != domain.ResultInvalidated {
		return e.resolveFresh(ctx, m, result, adminUID, adminName, reason)
	}
	// An invalidation always yields mmrChange = 0 regardless of which path
	// computes it, so a fresh, never-reported match can be invalidated
	// directly through the absolute-set path without simulating reports.
	return e.resolveAbsolute(ctx, m, result, adminUID, adminName, reason)
}

// resolveFresh drives a never-reported, non-terminal match through the
// same reporting path a player would (internal/match's Engine.Report),
// then erases the simulated reports so the historical record shows none
// were ever actually submitted. Only called for decisive results;
// invalidation routes through resolveAbsolute instead.
func (e *Engine) resolveFresh(ctx context.Context, m domain.Match, result domain.MatchResult, adminUID int64, adminName, reason string) error {
	report := domain.Report(result) // ReportP1Win/ReportP2Win/ReportDraw share ResultP1Win/ResultP2Win/ResultDraw's numeric values.
	if err := e.matchEngine.Report(ctx, m.ID, 1, report); err != nil {
		return fmt.Errorf("admin: resolve match: simulate player 1 report: %w", err)
	}
	if err := e.matchEngine.Report(ctx, m.ID, 2, report); err != nil {
		return fmt.Errorf("admin: resolve match: simulate player 2 report: %w", err)
	}
	if err := e.store.ClearMatchReports(ctx, m.ID); err != nil {
		return fmt.Errorf("admin: resolve match: clear simulated reports: %w", err)
	}

	return e.finishResolution(ctx, m, adminUID, adminName, reason, map[string]interface{}{
		"result": int(result),
		"fresh":  true,
	})
}

// resolveAbsolute (re-)resolves a match by computing the Elo delta from
// its frozen creation-time MMR snapshot and writing the result as a pure
// SET, never a cumulative delta against whatever the current rating
// happens to be. Because the delta is always derived from the immutable
// snapshot (Match.P1MMR/P2MMR), re-running this against the same match
// with the same result always lands on the same final MMRs, regardless
// of how many times it has already been resolved.
func (e *Engine) resolveAbsolute(ctx context.Context, m domain.Match, result domain.MatchResult, adminUID int64, adminName, reason string) error {
	var mmrChange int
	switch result {
	case domain.ResultP1Win, domain.ResultP2Win, domain.ResultDraw:
		p1Rating, _ := e.store.GetRating(m.Player1UID, m.Player1Race)
		p2Rating, _ := e.store.GetRating(m.Player2UID, m.Player2Race)

		var rr rating.Result
		switch result {
		case domain.ResultP1Win:
			rr = rating.Player1Won
		case domain.ResultP2Win:
			rr = rating.Player2Won
		default:
			rr = rating.Draw
		}
		mmrChange = rating.Change(m.P1MMR, m.P2MMR, rr, p1Rating.GamesPlayed, p2Rating.GamesPlayed)

	case domain.ResultInvalidated:
		mmrChange = 0

	default:
		return fmt.Errorf("admin: resolve match: invalid result %d", result)
	}

	newP1MMR := rating.Clamp(m.P1MMR + mmrChange)
	newP2MMR := rating.Clamp(m.P2MMR - mmrChange)

	if _, err := e.store.AdminResolveMatch(ctx, store.AdminResolveMatchInput{
		MatchID:    m.ID,
		Result:     result,
		MMRChange:  mmrChange,
		Player1MMR: newP1MMR,
		Player2MMR: newP2MMR,
	}); err != nil {
		return fmt.Errorf("admin: resolve match: %w", err)
	}

	return e.finishResolution(ctx, m, adminUID, adminName, reason, map[string]interface{}{
		"result":     int(result),
		"mmr_change": mmrChange,
	})
}

// finishResolution clears both players' queue locks and lifecycle state
// back to idle, then writes the audit record. Shared by both resolution
// branches so every path to a resolved match leaves players in the same
// unstuck state.
func (e *Engine) finishResolution(ctx context.Context, m domain.Match, adminUID int64, adminName, reason string, detail map[string]interface{}) error {
	for _, uid := range [...]int64{m.Player1UID, m.Player2UID} {
		if err := e.queue.Remove(ctx, uid, queue.ReasonAdminForceDequeue); err != nil {
			e.logger.Warn().Err(err).Int64("player_uid", uid).Msg("admin: resolve match: dequeue failed")
		}
		if err := e.store.SetPlayerState(ctx, uid, domain.StateIdle); err != nil {
			e.logger.Warn().Err(err).Int64("player_uid", uid).Msg("admin: resolve match: set idle failed")
		}
	}

	matchID := m.ID
	return e.logAction(ctx, adminUID, adminName, "resolve_match", nil, &matchID, reason, detail)
}

// AdjustMMR sets, adds, or subtracts a player's MMR for one race without
// touching any game counter (spec.md §4.10 "MMR adjustment").
func (e *Engine) AdjustMMR(ctx context.Context, adminUID int64, adminName string, targetUID int64, race domain.Race, mode string, value int, reason string) error {
	r, err := e.store.EnsureRating(ctx, targetUID, race, defaultStartingMMR)
	if err != nil {
		return fmt.Errorf("admin: adjust mmr: %w", err)
	}

	var delta int
	switch mode {
	case "set":
		delta = value - r.MMR
	case "add":
		delta = value
	case "subtract":
		delta = -value
	default:
		return fmt.Errorf("admin: adjust mmr: invalid mode %q", mode)
	}

	if _, err := e.store.ApplyMMRDelta(ctx, targetUID, race, delta); err != nil {
		return fmt.Errorf("admin: adjust mmr: %w", err)
	}

	return e.logAction(ctx, adminUID, adminName, "adjust_mmr", &targetUID, nil, reason, map[string]interface{}{
		"race": race, "mode": mode, "value": value,
	})
}

// ForceDequeue removes a single player from the matchmaking queue.
func (e *Engine) ForceDequeue(ctx context.Context, adminUID int64, adminName string, targetUID int64, reason string) error {
	if err := e.queue.Remove(ctx, targetUID, queue.ReasonAdminForceDequeue); err != nil {
		return fmt.Errorf("admin: force dequeue: %w", err)
	}
	return e.logAction(ctx, adminUID, adminName, "force_dequeue", &targetUID, nil, reason, nil)
}

// ResetAborts sets a player's remaining-aborts counter to n.
func (e *Engine) ResetAborts(ctx context.Context, adminUID int64, adminName string, targetUID int64, n int, reason string) error {
	if err := e.store.SetRemainingAborts(ctx, targetUID, n); err != nil {
		return fmt.Errorf("admin: reset aborts: %w", err)
	}
	return e.logAction(ctx, adminUID, adminName, "reset_aborts", &targetUID, nil, reason, map[string]interface{}{
		"remaining_aborts": n,
	})
}

// ToggleBan sets or clears a player's ban flag, dequeuing them on ban.
func (e *Engine) ToggleBan(ctx context.Context, adminUID int64, adminName string, targetUID int64, banned bool, reason string) error {
	if err := e.store.SetBanned(ctx, targetUID, banned); err != nil {
		return fmt.Errorf("admin: toggle ban: %w", err)
	}
	if banned {
		if err := e.queue.Remove(ctx, targetUID, queue.ReasonBanned); err != nil {
			e.logger.Warn().Err(err).Int64("player_uid", targetUID).Msg("admin: toggle ban: dequeue failed")
		}
	}
	return e.logAction(ctx, adminUID, adminName, "toggle_ban", &targetUID, nil, reason, map[string]interface{}{
		"banned": banned,
	})
}

// Unblock forces a player's lifecycle state back to idle and clears any
// queue lock, for players stuck after a client crash or similar.
func (e *Engine) Unblock(ctx context.Context, adminUID int64, adminName string, targetUID int64, reason string) error {
	if err := e.queue.Remove(ctx, targetUID, queue.ReasonAdminForceDequeue); err != nil {
		return fmt.Errorf("admin: unblock: dequeue: %w", err)
	}
	if err := e.store.SetPlayerState(ctx, targetUID, domain.StateIdle); err != nil {
		return fmt.Errorf("admin: unblock: %w", err)
	}
	return e.logAction(ctx, adminUID, adminName, "unblock", &targetUID, nil, reason, nil)
}

// EmergencyClearQueue dequeues every currently queued player and notifies
// each of them, for use when the queue needs to be reset wholesale. It
// returns the number of players cleared.
func (e *Engine) EmergencyClearQueue(ctx context.Context, adminUID int64, adminName string, reason string) (int, error) {
	entries := e.queue.Snapshot()
	for _, entry := range entries {
		uid := entry.PlayerUID
		if err := e.queue.Remove(ctx, uid, queue.ReasonAdminEmergencyClear); err != nil {
			e.logger.Warn().Err(err).Int64("player_uid", uid).Msg("admin: emergency clear: dequeue failed")
			continue
		}
		if err := e.notifier.Enqueue(ctx, notify.PriorityLow, notify.Message{
			RecipientUID: uid,
			Title:        "Queue cleared",
			Body:         "An administrator cleared the matchmaking queue.",
		}); err != nil {
			e.logger.Warn().Err(err).Int64("player_uid", uid).Msg("admin: emergency clear: notify failed")
		}
	}

	if err := e.logAction(ctx, adminUID, adminName, "emergency_clear_queue", nil, nil, reason, map[string]interface{}{
		"players_cleared": len(entries),
	}); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

// ToggleAdmin grants or revokes admin membership for targetUID (spec.md
// §4.10 "owner.toggle_admin"). Only an owner may call this. The updated
// roster is persisted back to the allowlist file immediately, since
// unlike every other admin mutation it has no row in the main store for
// the write log to carry.
func (e *Engine) ToggleAdmin(ctx context.Context, callerUID int64, callerName string, targetUID int64, targetName string, grant bool, reason string) error {
	if !e.allowlist.IsOwner(callerUID) {
		return fmt.Errorf("admin: toggle admin: %d is not owner", callerUID)
	}

	if grant {
		e.allowlist.GrantAdmin(targetUID, targetName)
	} else {
		e.allowlist.RevokeAdmin(targetUID)
	}
	if err := e.allowlist.Save(); err != nil {
		return fmt.Errorf("admin: toggle admin: %w", err)
	}

	return e.logAction(ctx, callerUID, callerName, "toggle_admin", &targetUID, nil, reason, map[string]interface{}{
		"granted": grant,
	})
}

func (e *Engine) logAction(ctx context.Context, adminUID int64, adminName, actionType string, targetPlayer, targetMatch *int64, reason string, detail map[string]interface{}) error {
	if _, err := e.store.LogAdminAction(ctx, domain.AdminAction{
		AdminUID:     adminUID,
		AdminName:    adminName,
		ActionType:   actionType,
		TargetPlayer: targetPlayer,
		TargetMatch:  targetMatch,
		Detail:       detail,
		Reason:       reason,
		PerformedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("admin: log action: %w", err)
	}
	return nil
}
