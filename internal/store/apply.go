package store

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"evoladder/internal/writelog"
)

// Apply bridges writelog.ApplyFunc to the concrete Persister: it decodes
// a job's JSON payload by JobType and dispatches to the matching
// Persister method. Wired via log.SetApply(store.Apply) at startup, and
// reused verbatim by Recover's replay path (spec.md §4.3's idempotency
// requirement lives in the Persister implementation, not here).
func (s *Store) Apply(persister Persister) writelog.ApplyFunc {
	return func(ctx context.Context, job writelog.Job) error {
		switch job.Type {
		case writelog.JobCreatePlayer:
			var p CreatePlayerPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.CreatePlayer(ctx, p)

		case writelog.JobUpdatePlayerInfo:
			var p UpdatePlayerInfoPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdatePlayerInfo(ctx, p)

		case writelog.JobUpdateMMR:
			var p UpdateMMRPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateMMR(ctx, p)

		case writelog.JobCreateMatch:
			var p CreateMatchPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.CreateMatch(ctx, p)

		case writelog.JobUpdateMatchReport:
			var p UpdateMatchReportPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateMatchReport(ctx, p)

		case writelog.JobUpdateMatchResultAndMMRChange:
			var p UpdateMatchResultPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateMatchResultAndMMRChange(ctx, p)

		case writelog.JobUpdateMatchReplayPath:
			var p UpdateMatchReplayPathPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateMatchReplayPath(ctx, p)

		case writelog.JobAdminResolveMatch:
			var p AdminResolveMatchPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.AdminResolveMatch(ctx, p)

		case writelog.JobClearMatchReports:
			var p ClearMatchReportsPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.ClearMatchReports(ctx, p)

		case writelog.JobUpsertReplay:
			var p UpsertReplayPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpsertReplay(ctx, p)

		case writelog.JobUpdateRemainingAborts:
			var p UpdateRemainingAbortsPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateRemainingAborts(ctx, p)

		case writelog.JobUpdateIsBanned:
			var p UpdateIsBannedPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateIsBanned(ctx, p)

		case writelog.JobUpdateShieldBatteryBug:
			var p UpdateShieldBatteryBugPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.UpdateShieldBatteryBug(ctx, p)

		case writelog.JobLogAdminAction:
			var p LogAdminActionPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.LogAdminAction(ctx, p)

		case writelog.JobLogPlayerAction:
			var p LogPlayerActionPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.LogPlayerAction(ctx, p)

		case writelog.JobLogCommandCall:
			var p LogCommandCallPayload
			if err := json.Unmarshal(job.Data, &p); err != nil {
				return fmt.Errorf("apply %s: %w", job.Type, err)
			}
			return persister.LogCommandCall(ctx, p)

		default:
			return fmt.Errorf("apply: unknown job type %q", job.Type)
		}
	}
}
