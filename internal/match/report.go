package match

import (
	"context"
	"fmt"

	"evoladder/internal/domain"
	"evoladder/internal/rating"
)

// Report submits one player's self-reported outcome (spec.md §4.7
// "Reporting rules"). side is 1 or 2 depending on which slot the
// reporting player occupies in the match.
func (e *Engine) Report(ctx context.Context, matchID int64, side int, report domain.Report) error {
	m, ok := e.store.GetMatch(matchID)
	if !ok {
		return fmt.Errorf("match: report: unknown match %d", matchID)
	}
	if m.Result != nil && m.Result.IsTerminal() {
		return fmt.Errorf("match: report: match %d is already terminal", matchID)
	}

	if report == domain.ReportAbort {
		uid := m.Player1UID
		if side == 2 {
			uid = m.Player2UID
		}
		p, ok := e.store.GetPlayer(uid)
		if !ok {
			return fmt.Errorf("match: report: unknown player %d", uid)
		}
		if p.RemainingAborts <= 0 {
			return fmt.Errorf("match: report: player %d has no remaining aborts", uid)
		}
	}

	if _, err := e.store.UpdateMatchReport(ctx, matchID, side, report); err != nil {
		return fmt.Errorf("match: report: %w", err)
	}

	return e.checkCompletion(ctx, matchID)
}

// checkCompletion runs the completion check (spec.md §4.7 "Completion
// check") and, when a terminal result is reached, applies it.
func (e *Engine) checkCompletion(ctx context.Context, matchID int64) error {
	m, ok := e.store.GetMatch(matchID)
	if !ok {
		return fmt.Errorf("match: checkCompletion: unknown match %d", matchID)
	}
	if m.Result != nil && m.Result.IsTerminal() {
		return nil
	}

	r1, r2 := m.Player1Report, m.Player2Report

	switch {
	case r1 == nil || r2 == nil:
		// At least one side still missing: stay in REPORTING (or CREATED
		// if neither has reported, which is the same "no transition" case).
		return nil

	case *r1 == domain.ReportAbort && *r2 == domain.ReportAbort:
		return e.finalize(ctx, m, domain.ResultInvalidated, 0, func() error {
			return e.decrementAborts(ctx, m.Player1UID, m.Player2UID)
		})

	case *r1 == domain.ReportNoResponse && *r2 == domain.ReportNoResponse:
		return e.finalize(ctx, m, domain.ResultInvalidated, 0, nil)

	case *r1 == domain.ReportAbort || *r2 == domain.ReportAbort:
		// Exactly one manual abort: the non-aborting player wins.
		var result domain.MatchResult
		var abortingUID int64
		if *r2 == domain.ReportAbort {
			result = domain.ResultP1Win
			abortingUID = m.Player2UID
		} else {
			result = domain.ResultP2Win
			abortingUID = m.Player1UID
		}
		return e.finalize(ctx, m, result, computeElo(e.store, m, result), func() error {
			return e.decrementAborts(ctx, abortingUID)
		})

	case *r1 == *r2 && (*r1 == domain.ReportP1Win || *r1 == domain.ReportP2Win || *r1 == domain.ReportDraw):
		result := domain.MatchResult(*r1)
		return e.finalize(ctx, m, result, computeElo(e.store, m, result), nil)

	default:
		// Reports disagree and neither is an abort/no-response: CONFLICT,
		// awaiting admin resolution. No match_result write here beyond
		// what UpdateMatchReport already persisted for the reports
		// themselves — spec.md leaves match_result null until an admin
		// (or a later compatible report change) resolves it, but we
		// record the CONFLICT marker so callers can query match status.
		_, err := e.store.UpdateMatchResultAndMMRChange(ctx, matchID, domain.ResultConflict, 0)
		return err
	}
}

// computeElo returns 0 for invalidation-equivalent results and the Elo
// delta otherwise (spec.md §4.7 "Terminal MMR application").
func computeElo(s Store, m domain.Match, result domain.MatchResult) int {
	if result != domain.ResultP1Win && result != domain.ResultP2Win && result != domain.ResultDraw {
		return 0
	}
	p1Rating, _ := s.GetRating(m.Player1UID, m.Player1Race)
	p2Rating, _ := s.GetRating(m.Player2UID, m.Player2Race)

	var rr rating.Result
	switch result {
	case domain.ResultP1Win:
		rr = rating.Player1Won
	case domain.ResultP2Win:
		rr = rating.Player2Won
	default:
		rr = rating.Draw
	}
	return rating.Change(m.P1MMR, m.P2MMR, rr, p1Rating.GamesPlayed, p2Rating.GamesPlayed)
}

// finalize persists the terminal result, applies MMR changes (unless the
// result is an invalidation), runs extra (side-effecting) logic, clears
// both players' lifecycle back to idle, and emits result notifications.
func (e *Engine) finalize(ctx context.Context, m domain.Match, result domain.MatchResult, mmrChange int, extra func() error) error {
	if t, ok := e.timers[m.ID]; ok {
		t.Stop()
		delete(e.timers, m.ID)
	}

	if _, err := e.store.UpdateMatchResultAndMMRChange(ctx, m.ID, result, mmrChange); err != nil {
		return fmt.Errorf("match: finalize: %w", err)
	}

	if result == domain.ResultP1Win || result == domain.ResultP2Win || result == domain.ResultDraw {
		p1Won, p1Lost, p1Drawn := outcomeFlags(result, true)
		p2Won, p2Lost, p2Drawn := outcomeFlags(result, false)
		if _, err := e.store.RecordMatchOutcome(ctx, m.Player1UID, m.Player1Race, mmrChange, p1Won, p1Lost, p1Drawn); err != nil {
			return fmt.Errorf("match: finalize: record p1 outcome: %w", err)
		}
		if _, err := e.store.RecordMatchOutcome(ctx, m.Player2UID, m.Player2Race, -mmrChange, p2Won, p2Lost, p2Drawn); err != nil {
			return fmt.Errorf("match: finalize: record p2 outcome: %w", err)
		}
	}

	if extra != nil {
		if err := extra(); err != nil {
			return fmt.Errorf("match: finalize: %w", err)
		}
	}

	if err := e.store.SetPlayerState(ctx, m.Player1UID, domain.StateIdle); err != nil {
		return fmt.Errorf("match: finalize: set p1 idle: %w", err)
	}
	if err := e.store.SetPlayerState(ctx, m.Player2UID, domain.StateIdle); err != nil {
		return fmt.Errorf("match: finalize: set p2 idle: %w", err)
	}

	p1After, _ := e.store.GetRating(m.Player1UID, m.Player1Race)
	p2After, _ := e.store.GetRating(m.Player2UID, m.Player2Race)
	if err := e.notifier.NotifyResultFinalized(ctx, ResultFinalizedEvent{
		MatchID: m.ID, RecipientUID: m.Player1UID, Result: result, MMRChange: mmrChange,
		MMRBefore: m.P1MMR, MMRAfter: p1After.MMR,
	}); err != nil {
		e.logger.Warn().Err(err).Int64("match_id", m.ID).Msg("match: notify p1 result failed")
	}
	if err := e.notifier.NotifyResultFinalized(ctx, ResultFinalizedEvent{
		MatchID: m.ID, RecipientUID: m.Player2UID, Result: result, MMRChange: -mmrChange,
		MMRBefore: m.P2MMR, MMRAfter: p2After.MMR,
	}); err != nil {
		e.logger.Warn().Err(err).Int64("match_id", m.ID).Msg("match: notify p2 result failed")
	}
	return nil
}

func outcomeFlags(result domain.MatchResult, isPlayer1 bool) (won, lost, drawn bool) {
	switch result {
	case domain.ResultDraw:
		return false, false, true
	case domain.ResultP1Win:
		return isPlayer1, !isPlayer1, false
	case domain.ResultP2Win:
		return !isPlayer1, isPlayer1, false
	default:
		return false, false, false
	}
}

func (e *Engine) decrementAborts(ctx context.Context, uids ...int64) error {
	for _, uid := range uids {
		p, ok := e.store.GetPlayer(uid)
		if !ok {
			continue
		}
		if err := e.store.SetRemainingAborts(ctx, uid, p.RemainingAborts-1); err != nil {
			return err
		}
	}
	return nil
}
