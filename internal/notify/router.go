// Package notify is the outbound Notification Router (spec.md C9): a
// prioritized two-tier queue, a global rate limiter, and bounded retry
// with a preserved result handle per job.
//
// Grounded on two teacher shapes generalized together: the sliding-window
// rate limiter in data-analyzer/internal/riot/client.go (sleep the
// remainder of a fixed interval rather than drop the request), and the
// bounded-retry-then-give-up loop in data-analyzer/internal/discord/
// webhook.go's sendPayload (here widened from "retry on 429" to "retry on
// any dispatch failure, up to 3 attempts, then surface the error").
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Priority selects which of the router's two queues a job enters.
type Priority int

const (
	// PriorityHigh carries responses to user-initiated commands/interactions.
	PriorityHigh Priority = iota
	// PriorityLow carries match notifications, admin broadcasts, reminders.
	PriorityLow
)

const maxDispatchAttempts = 3

// Message is one outbound payload to a single recipient.
type Message struct {
	RecipientUID int64
	Title        string
	Body         string
	Fields       map[string]string
}

// Dispatcher sends a Message to the chat platform. The concrete
// implementation (dispatcher_ws.go) is gorilla/websocket-backed.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

type job struct {
	priority Priority
	msg      Message
	attempts int
	result   chan error
}

// Router is the single-threaded priority dispatch loop.
type Router struct {
	dispatcher Dispatcher
	minGap     time.Duration // 1 / R dispatches per second
	logger     zerolog.Logger

	mu       sync.Mutex
	high     []*job
	low      []*job
	lastSend time.Time
}

// NewRouter constructs a Router dispatching at most ratePerSecond messages
// per second (spec.md §4.9 "at most R dispatches per second").
func NewRouter(dispatcher Dispatcher, ratePerSecond int, logger zerolog.Logger) *Router {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &Router{
		dispatcher: dispatcher,
		minGap:     time.Second / time.Duration(ratePerSecond),
		logger:     logger,
	}
}

// enqueue appends a job to its queue and returns a channel that receives
// nil on eventual success or the terminal error after maxDispatchAttempts.
func (r *Router) enqueue(priority Priority, msg Message) <-chan error {
	j := &job{priority: priority, msg: msg, result: make(chan error, 1)}
	r.mu.Lock()
	if priority == PriorityHigh {
		r.high = append(r.high, j)
	} else {
		r.low = append(r.low, j)
	}
	r.mu.Unlock()
	return j.result
}

// Enqueue submits msg at the given priority and waits for the result (or
// ctx cancellation). MatchNotifier and the admin engine deliver through
// it, as do command-response callers.
func (r *Router) Enqueue(ctx context.Context, priority Priority, msg Message) error {
	resultCh := r.enqueue(priority, msg)
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the dispatch loop until ctx is cancelled. It should be
// started once by the orchestrator.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Millisecond * 5)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.processRound(ctx)
		}
	}
}

// processRound fully drains the high queue, then — if the high queue is
// empty — dispatches exactly one low-queue job (spec.md §4.9: "always
// fully drains the high queue before touching the low queue; after each
// low-queue job, it re-checks the high queue").
func (r *Router) processRound(ctx context.Context) {
	for {
		j := r.popHigh()
		if j == nil {
			break
		}
		r.dispatch(ctx, j)
	}
	if j := r.popLow(); j != nil {
		r.dispatch(ctx, j)
	}
}

func (r *Router) popHigh() *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.high) == 0 {
		return nil
	}
	j := r.high[0]
	r.high = r.high[1:]
	return j
}

func (r *Router) popLow() *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.low) == 0 {
		return nil
	}
	j := r.low[0]
	r.low = r.low[1:]
	return j
}

// requeue pushes a retried job to the back of its own queue, preserving
// its result channel so the original caller still observes the eventual
// outcome (spec.md §4.9 "same Future/continuation handle is preserved").
func (r *Router) requeue(j *job) {
	r.mu.Lock()
	if j.priority == PriorityHigh {
		r.high = append(r.high, j)
	} else {
		r.low = append(r.low, j)
	}
	r.mu.Unlock()
}

func (r *Router) dispatch(ctx context.Context, j *job) {
	r.throttle(ctx)

	err := r.dispatcher.Send(ctx, j.msg)
	if err == nil {
		j.result <- nil
		return
	}

	j.attempts++
	if j.attempts >= maxDispatchAttempts {
		j.result <- fmt.Errorf("notify: dispatch failed after %d attempts: %w", j.attempts, err)
		return
	}
	r.logger.Warn().Err(err).Int("attempt", j.attempts).Int64("recipient", j.msg.RecipientUID).Msg("notify: dispatch failed, retrying")
	r.requeue(j)
}

// throttle sleeps (or blocks on ctx) until minGap has elapsed since the
// last dispatch, enforcing the router-wide rate limit.
func (r *Router) throttle(ctx context.Context) {
	r.mu.Lock()
	wait := r.minGap - time.Since(r.lastSend)
	r.mu.Unlock()
	if wait <= 0 {
		r.markSent()
		return
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	r.markSent()
}

func (r *Router) markSent() {
	r.mu.Lock()
	r.lastSend = time.Now()
	r.mu.Unlock()
}

// Pending reports the current high/low queue depths, for health sampling.
func (r *Router) Pending() (high, low int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.high), len(r.low)
}
