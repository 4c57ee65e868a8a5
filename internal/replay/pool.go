// Package replay is replay ingestion (spec.md C8): artifact persistence,
// a sandboxed subprocess worker pool for parsing, and verification of
// parsed metadata against a Match.
//
// The worker pool is grounded on the teacher's cmd/pipeline's
// os/exec-based subprocess orchestration (runCommand in
// data-analyzer/cmd/pipeline/main.go): plain exec.Command, explicit
// stdin/stdout wiring, no subprocess library. Generalized from a
// one-shot "run and wait" invocation into a small pool of worker
// goroutines, each starting one parser subprocess per task, that marks
// itself unhealthy on a parser crash or a failed ping.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"evoladder/internal/domain"
)

// parseTask is one unit of work submitted to the pool.
type parseTask struct {
	binary []byte
	result chan<- parseOutcome
}

type parseOutcome struct {
	metadata domain.ReplayMetadata
	err      error
}

// WorkerPool runs replay binaries through an external parser executable,
// one subprocess invocation per task, bounded by a small worker count
// (spec.md §4.8 "a small worker pool, size configurable, e.g., 1").
type WorkerPool struct {
	parserPath string
	size       int
	timeout    time.Duration
	logger     zerolog.Logger

	tasks chan parseTask

	mu      sync.Mutex
	healthy bool
}

// NewWorkerPool constructs a pool that shells out to parserPath for each
// task. parserPath is expected to read a replay binary on stdin and write
// JSON-encoded domain.ReplayMetadata on stdout, exiting zero on success.
func NewWorkerPool(parserPath string, size int, timeout time.Duration, logger zerolog.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	p := &WorkerPool{
		parserPath: parserPath,
		size:       size,
		timeout:    timeout,
		logger:     logger,
		tasks:      make(chan parseTask, size*4),
		healthy:    true,
	}
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	for task := range p.tasks {
		metadata, err := p.runOnce(task.binary)
		task.result <- parseOutcome{metadata: metadata, err: err}
		if err != nil && isCrash(err) {
			p.logger.Error().Int("worker", id).Err(err).Msg("replay: worker subprocess crashed, pool marked unhealthy")
			p.markUnhealthy()
		}
	}
}

// runOnce invokes the parser subprocess once for a single binary, exactly
// the "hand the binary to a sandboxed worker" step of spec.md §4.8.
func (p *WorkerPool) runOnce(binary []byte) (domain.ReplayMetadata, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.parserPath)
	cmd.Stdin = bytes.NewReader(binary)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return domain.ReplayMetadata{}, fmt.Errorf("replay: parser failed: %w: %s", err, stderr.String())
	}

	var meta domain.ReplayMetadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return domain.ReplayMetadata{}, fmt.Errorf("replay: decode parser output: %w", err)
	}
	return meta, nil
}

// Submit queues a binary for parsing and blocks for the result, up to the
// pool's per-task timeout.
func (p *WorkerPool) Submit(ctx context.Context, binary []byte) (domain.ReplayMetadata, error) {
	result := make(chan parseOutcome, 1)
	select {
	case p.tasks <- parseTask{binary: binary, result: result}:
	case <-ctx.Done():
		return domain.ReplayMetadata{}, ctx.Err()
	}

	select {
	case out := <-result:
		return out.metadata, out.err
	case <-ctx.Done():
		return domain.ReplayMetadata{}, ctx.Err()
	}
}

// HealthCheck pings the parser binary once with a trivial task
// ("--ping") to detect a wedged pool (spec.md §4.8's health-check
// requirement). A failing ping marks the pool unhealthy; Restart
// recreates the workers. The orchestrator calls neither HealthCheck nor
// Restart.
func (p *WorkerPool) HealthCheck(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.parserPath, "--ping")
	if err := cmd.Run(); err != nil {
		p.markUnhealthy()
		return fmt.Errorf("replay: health check failed: %w", err)
	}
	return nil
}

func (p *WorkerPool) markUnhealthy() {
	p.mu.Lock()
	p.healthy = false
	p.mu.Unlock()
}

// Healthy reports whether the pool last observed a clean worker/ping.
func (p *WorkerPool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

// Restart disposes the current task channel and workers, and starts a
// fresh set — the "dispose and recreate on crash or wedge" behavior of
// spec.md §4.8.
func (p *WorkerPool) Restart() {
	close(p.tasks)
	p.tasks = make(chan parseTask, p.size*4)
	for i := 0; i < p.size; i++ {
		go p.worker(i)
	}
	p.mu.Lock()
	p.healthy = true
	p.mu.Unlock()
}

// isCrash reports whether err represents the subprocess itself exiting
// non-zero or being killed, as opposed to a pipe/encoding error on our
// side — only the former means the pool's workers are suspect.
func isCrash(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
