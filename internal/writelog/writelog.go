// Package writelog is the durable, append-only write-behind job queue
// (spec.md §4.3). Appends are synchronous and durable (a row is committed
// to a local modernc.org/sqlite file before Append returns); draining to
// the real SQL store happens on a single background worker, strictly
// FIFO, with bounded retry.
//
// Grounded on the teacher's internal/storage/rotator.go: a single
// mutex-guarded writer, an explicit "flush before anything else can see
// this as durable" step, and a hot/warm/cold lifecycle that this package
// mirrors as PENDING/COMPLETED/FAILED row status instead of file
// directories — spec.md's persisted write_log table layout (§6) wants a
// queryable row set, not rotating files, so sqlite replaces the
// bufio.Writer/os.Rename pair while keeping the same "one writer, strict
// order, durable before the caller is told so" contract.
package writelog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// JobType enumerates the fixed set of mutations the write log carries,
// per spec.md §4.3.
type JobType string

const (
	JobCreatePlayer                    JobType = "create_player"
	JobUpdatePlayerInfo                JobType = "update_player_info"
	JobUpdateMMR                       JobType = "update_mmr"
	JobCreateMatch                     JobType = "create_match"
	JobUpdateMatchReport               JobType = "update_match_report"
	JobUpdateMatchResultAndMMRChange   JobType = "update_match_result_and_mmr_change"
	JobUpdateMatchReplayPath           JobType = "update_match_replay_path"
	JobAdminResolveMatch               JobType = "admin_resolve_match"
	JobUpsertReplay                    JobType = "upsert_replay"
	JobUpdateRemainingAborts           JobType = "update_remaining_aborts"
	JobUpdateIsBanned                  JobType = "update_is_banned"
	JobUpdateShieldBatteryBug          JobType = "update_shield_battery_bug"
	JobLogAdminAction                  JobType = "log_admin_action"
	JobLogPlayerAction                 JobType = "log_player_action"
	JobLogCommandCall                  JobType = "log_command_call"
	JobClearMatchReports               JobType = "clear_match_reports"
)

// Status is the job's lifecycle stage.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Job is one row of the durable log.
type Job struct {
	ID          int64
	Type        JobType
	Data        []byte // JSON payload, decoded by the ApplyFunc per job type
	Status      Status
	Attempts    int
	LastError   string
	EnqueuedAt  time.Time
	CompletedAt *time.Time
}

// ApplyFunc applies one job's mutation to the SQL store of record. It
// must be idempotent under replay (spec.md §4.3's idempotency
// requirement) — the store package supplies the concrete implementation.
type ApplyFunc func(ctx context.Context, job Job) error

const defaultMaxAttempts = 5

// Log is the durable write-behind queue.
type Log struct {
	mu          sync.Mutex
	db          *sql.DB
	apply       ApplyFunc
	maxAttempts int
	logger      zerolog.Logger

	started bool
	wake    chan struct{}
	closing chan struct{}
	done    chan struct{}
}

// Open opens (creating if absent) the sqlite-backed log file at path and
// ensures its schema exists. apply is wired in after Open so the caller
// can construct the store first if it needs the Log for its own writes —
// callers should call SetApply before Start.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("writelog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer sqlite file, avoid lock contention

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS write_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_type TEXT NOT NULL,
			data_json TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			enqueued_at DATETIME NOT NULL,
			completed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_write_log_status_id ON write_log(status, id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("writelog: create schema: %w", err)
	}

	return &Log{
		db:          db,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
		wake:        make(chan struct{}, 1),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// SetApply wires the function used to drain jobs into the SQL store of
// record. Must be called before Start.
func (l *Log) SetApply(apply ApplyFunc) { l.apply = apply }

// Append synchronously and durably records a job. It returns only once
// the row is committed — the sqlite driver's transaction commit is the
// fsync-equivalent durability point the teacher's rotator.go achieves via
// bufio.Writer.Flush + os.File fsync-on-close.
func (l *Log) Append(ctx context.Context, jobType JobType, data interface{}) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("writelog: marshal %s payload: %w", jobType, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO write_log (job_type, data_json, status, attempts, enqueued_at)
		VALUES (?, ?, ?, 0, ?)
	`, string(jobType), string(payload), string(StatusPending), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("writelog: append %s: %w", jobType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("writelog: last insert id: %w", err)
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return id, nil
}

// PendingCount reports the current backlog size, used by the orchestrator
// for both the health sampler (SPEC_FULL.md §4) and graceful shutdown's
// drain-to-zero wait.
func (l *Log) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM write_log WHERE status = ?`, string(StatusPending)).Scan(&n)
	return n, err
}

// Recover re-applies any PENDING jobs left over from a prior process,
// in insertion order, before the orchestrator begins serving requests
// (spec.md §4.3 "Restart recovery"). It blocks until the backlog existing
// at call time is drained (or permanently failed).
func (l *Log) Recover(ctx context.Context) error {
	for {
		job, ok, err := l.nextPending(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		l.processOne(ctx, job)
	}
}

// Start launches the single background drain worker. It runs until
// Close is called.
func (l *Log) Start(ctx context.Context) {
	l.started = true
	go l.drainLoop(ctx)
}

// Close stops the drain worker, if Start launched one, and closes the
// sqlite handle. It does not wait for the backlog to empty — callers
// wanting a drained shutdown should poll PendingCount first (spec.md
// §4.11 shutdown step 4).
func (l *Log) Close() error {
	close(l.closing)
	if l.started {
		<-l.done
	}
	return l.db.Close()
}

func (l *Log) drainLoop(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-l.closing:
			return
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-ticker.C:
		}

		for {
			job, ok, err := l.nextPending(ctx)
			if err != nil {
				l.logger.Error().Err(err).Msg("writelog: fetch next pending job failed")
				break
			}
			if !ok {
				break
			}
			l.processOne(ctx, job)

			select {
			case <-l.closing:
				return
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func (l *Log) nextPending(ctx context.Context) (Job, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, job_type, data_json, status, attempts, last_error, enqueued_at, completed_at
		FROM write_log WHERE status = ? ORDER BY id ASC LIMIT 1
	`, string(StatusPending))

	var j Job
	var data string
	var lastErr sql.NullString
	var completedAt sql.NullTime
	var status string
	if err := row.Scan(&j.ID, &j.Type, &data, &status, &j.Attempts, &lastErr, &j.EnqueuedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("writelog: scan next pending: %w", err)
	}
	j.Data = []byte(data)
	j.Status = Status(status)
	j.LastError = lastErr.String
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, true, nil
}

// processOne applies a single job and records the outcome. A job that
// fails stays PENDING (to be retried in place, preserving strict FIFO)
// until maxAttempts is exhausted, at which point it is marked FAILED —
// an alertable terminal condition per spec.md §4.3.
func (l *Log) processOne(ctx context.Context, job Job) {
	if l.apply == nil {
		l.logger.Warn().Int64("job_id", job.ID).Msg("writelog: no apply function wired, job left pending")
		return
	}

	err := l.apply(ctx, job)
	if err == nil {
		_, execErr := l.db.ExecContext(ctx, `
			UPDATE write_log SET status = ?, completed_at = ? WHERE id = ?
		`, string(StatusCompleted), time.Now().UTC(), job.ID)
		if execErr != nil {
			l.logger.Error().Err(execErr).Int64("job_id", job.ID).Msg("writelog: mark completed failed")
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= l.maxAttempts {
		l.logger.Error().Err(err).Int64("job_id", job.ID).Str("job_type", string(job.Type)).
			Int("attempts", attempts).Msg("writelog: job permanently failed, alerting")
		if _, execErr := l.db.ExecContext(ctx, `
			UPDATE write_log SET status = ?, attempts = ?, last_error = ? WHERE id = ?
		`, string(StatusFailed), attempts, err.Error(), job.ID); execErr != nil {
			l.logger.Error().Err(execErr).Int64("job_id", job.ID).Msg("writelog: mark failed failed")
		}
		return
	}

	l.logger.Warn().Err(err).Int64("job_id", job.ID).Int("attempts", attempts).Msg("writelog: job apply failed, will retry")
	if _, execErr := l.db.ExecContext(ctx, `
		UPDATE write_log SET attempts = ?, last_error = ? WHERE id = ?
	`, attempts, err.Error(), job.ID); execErr != nil {
		l.logger.Error().Err(execErr).Int64("job_id", job.ID).Msg("writelog: record attempt failed")
	}
	time.Sleep(backoff(attempts))
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 200 * time.Millisecond
	if d > 2*time.Second {
		return 2 * time.Second
	}
	return d
}
