package writelog

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "writelog.db")
	l, err := Open(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendIsDurableBeforeReturn(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	id, err := l.Append(ctx, JobCreatePlayer, map[string]any{"discord_uid": 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == 0 {
		t.Fatal("expected nonzero job id")
	}

	n, err := l.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 1 {
		t.Errorf("PendingCount = %d, want 1", n)
	}
}

func TestDrainAppliesInFIFOOrder(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	var seen []int64
	l.SetApply(func(ctx context.Context, job Job) error {
		seen = append(seen, job.ID)
		return nil
	})

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := l.Append(ctx, JobUpdateMMR, map[string]any{"i": i})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, id)
	}

	l.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		n, err := l.PendingCount(ctx)
		if err != nil {
			t.Fatalf("PendingCount: %v", err)
		}
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("drain did not finish, %d still pending", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(seen) != len(ids) {
		t.Fatalf("processed %d jobs, want %d", len(seen), len(ids))
	}
	for i, id := range ids {
		if seen[i] != id {
			t.Errorf("processed order[%d] = %d, want %d (FIFO)", i, seen[i], id)
		}
	}
}

func TestPermanentFailureMarksFailedAfterMaxAttempts(t *testing.T) {
	l := newTestLog(t)
	l.maxAttempts = 2
	ctx := context.Background()

	var calls atomic.Int32
	l.SetApply(func(ctx context.Context, job Job) error {
		calls.Add(1)
		return errors.New("boom")
	})

	id, err := l.Append(ctx, JobLogAdminAction, map[string]any{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	l.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		job, ok, err := l.nextFor(ctx, id)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if ok && job.Status == StatusFailed {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached FAILED; last status=%v", job.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	if got := calls.Load(); got != int32(l.maxAttempts) {
		t.Errorf("apply called %d times, want %d", got, l.maxAttempts)
	}
}

// nextFor is a test-only lookup helper.
func (l *Log) nextFor(ctx context.Context, id int64) (Job, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, job_type, data_json, status, attempts, last_error, enqueued_at, completed_at
		FROM write_log WHERE id = ?
	`, id)
	var j Job
	var data, status string
	var lastErr, completedAt any
	if err := row.Scan(&j.ID, &j.Type, &data, &status, &j.Attempts, &lastErr, &j.EnqueuedAt, &completedAt); err != nil {
		return Job{}, false, err
	}
	j.Data = []byte(data)
	j.Status = Status(status)
	return j, true, nil
}
