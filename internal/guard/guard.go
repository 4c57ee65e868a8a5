// Package guard provides small, composable precondition checks shared by
// every player-facing command (queue up, report, upload replay, and so
// on). The original service expressed these as exception-raising
// decorators stacked above each command handler; Go has no equivalent
// control-flow exception, so each precondition here is a plain function
// returning an *errs.Error, and Run stops at the first one that fails —
// the same "first violated guard wins" ordering the decorator chain gave,
// without the control-flow exceptions.
package guard

import (
	"evoladder/internal/domain"
	"evoladder/internal/errs"
)

// Check is one precondition. A nil return means the check passed.
type Check func() *errs.Error

// Run evaluates checks in order and returns the first failure, or nil if
// every check passed.
func Run(checks ...Check) *errs.Error {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// NotBanned rejects a banned player.
func NotBanned(p domain.Player) Check {
	return func() *errs.Error {
		if p.IsBanned {
			return errs.New(errs.Authorization, "you are banned from the ladder")
		}
		return nil
	}
}

// SetupComplete rejects a player who hasn't finished onboarding: TOS
// acceptance first, then the setup-complete flag. The Shield Battery
// acknowledgement is not checked here.
func SetupComplete(p domain.Player) Check {
	return func() *errs.Error {
		if !p.AcceptedTOS {
			return errs.New(errs.State, "you must accept the terms of service before doing this")
		}
		if !p.SetupComplete {
			return errs.New(errs.State, "finish account setup before doing this")
		}
		return nil
	}
}

// QueueChecker is the subset of internal/queue.Queue NotQueued needs.
type QueueChecker interface {
	IsQueued(uid int64) bool
}

// NotQueued rejects a player who already has a queue entry.
func NotQueued(q QueueChecker, uid int64) Check {
	return func() *errs.Error {
		if q.IsQueued(uid) {
			return errs.New(errs.State, "you are already in queue")
		}
		return nil
	}
}

// IsParticipant rejects a caller who is neither side of the match.
func IsParticipant(m domain.Match, uid int64) Check {
	return func() *errs.Error {
		if uid != m.Player1UID && uid != m.Player2UID {
			return errs.New(errs.Authorization, "you are not a participant in this match")
		}
		return nil
	}
}

// HasAbortsRemaining rejects a player with no aborts left.
func HasAbortsRemaining(p domain.Player) Check {
	return func() *errs.Error {
		if p.RemainingAborts <= 0 {
			return errs.New(errs.State, "you have no aborts remaining")
		}
		return nil
	}
}
