// Package queue is the matchmaking queue engine (spec.md C5): a single
// mutex-guarded entry table, wave-tick scheduling, and the bw/sc2
// categorization-and-bridging split that feeds the pairing algorithm
// (internal/pairing) each wave.
//
// Grounded on the teacher's internal/collector continuous-polling loop
// (continuous.go): a ticker-driven goroutine that takes a snapshot, does
// work with it outside any lock, and reschedules — generalized here from
// a single poll-and-store loop into a poll-snapshot-pair-commit cycle.
package queue

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/rs/zerolog"

	"evoladder/internal/domain"
)

// Category is the cross-game bucket a queued player's race selection
// falls into (spec.md §4.5).
type Category int

const (
	CategoryBWOnly Category = iota
	CategorySC2Only
	CategoryBoth
)

// Entry is one queued player (spec.md §4.5 "Player-in-Queue record").
type Entry struct {
	PlayerUID      int64
	Races          []domain.Race // immutable selected-races set
	Category       Category
	MMR            map[domain.Race]int // snapshot at enqueue time, refreshed each wave
	QueueStart     time.Time
	WaveCount      int
	insertionOrder int64
}

// RemoveReason distinguishes a successful match removal from every other
// exit path, since only non-match removals emit a cancellation
// notification (spec.md §4.5 "remove").
type RemoveReason int

const (
	ReasonMatched RemoveReason = iota
	ReasonManualDequeue
	ReasonAdminForceDequeue
	ReasonAdminEmergencyClear
	ReasonBanned
)

// StateSetter is the subset of internal/store.Store the queue needs to
// flip a player's lifecycle state; kept as an interface so queue tests
// don't need a full store.
type StateSetter interface {
	SetPlayerState(ctx context.Context, uid int64, state domain.PlayerState) error
}

// queuedHintEstimate sizes the "maybe queued" pre-check for a generous
// number of distinct players enqueued over a process's uptime; the filter
// is never reset, so its false-positive rate only ever climbs slightly as
// it fills, the same trade-off the teacher's spider accepts for a single
// crawl run.
const queuedHintEstimate = 50000

// Queue is the process-wide entry table.
type Queue struct {
	mu      sync.Mutex
	entries map[int64]*Entry
	nextSeq int64

	// queuedHint is an O(1) probabilistic pre-check answering "could uid be
	// queued" without taking mu, the same lock-avoidance shape as the
	// teacher's visitedMatches/visitedPUUIDs filters. A negative is
	// authoritative; a positive still falls through to the locked map
	// lookup, so false positives cost a lock, never correctness.
	queuedHint   *bloom.BloomFilter
	queuedHintMu sync.Mutex

	store  StateSetter
	logger zerolog.Logger
}

// New constructs an empty queue.
func New(store StateSetter, logger zerolog.Logger) *Queue {
	return &Queue{
		entries:    make(map[int64]*Entry),
		queuedHint: bloom.NewWithEstimates(queuedHintEstimate, 0.001),
		store:      store,
		logger:     logger,
	}
}

func uidKey(uid int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(uid))
	return b[:]
}

// mightBeQueued reports whether uid could be in the entry table. false is
// authoritative; true requires the caller to confirm under mu.
func (q *Queue) mightBeQueued(uid int64) bool {
	q.queuedHintMu.Lock()
	defer q.queuedHintMu.Unlock()
	return q.queuedHint.Test(uidKey(uid))
}

func (q *Queue) markQueuedHint(uid int64) {
	q.queuedHintMu.Lock()
	defer q.queuedHintMu.Unlock()
	q.queuedHint.Add(uidKey(uid))
}

// Add enqueues a player. Rejects if already queued, banned, or in a live
// match (spec.md §4.5 "add").
func (q *Queue) Add(ctx context.Context, uid int64, isBanned bool, playerState domain.PlayerState, races []domain.Race, mmr map[domain.Race]int) error {
	q.mu.Lock()
	if _, ok := q.entries[uid]; ok {
		q.mu.Unlock()
		return fmt.Errorf("queue: player %d already queued", uid)
	}
	if isBanned {
		q.mu.Unlock()
		return fmt.Errorf("queue: player %d is banned", uid)
	}
	if playerState == domain.StateMatched || playerState == domain.StateReporting {
		q.mu.Unlock()
		return fmt.Errorf("queue: player %d is in a live match", uid)
	}

	e := &Entry{
		PlayerUID:      uid,
		Races:          append([]domain.Race(nil), races...),
		Category:       categorize(races),
		MMR:            copyMMR(mmr),
		QueueStart:     time.Now(),
		insertionOrder: q.nextSeq,
	}
	q.nextSeq++
	q.entries[uid] = e
	q.mu.Unlock()
	q.markQueuedHint(uid)

	return q.store.SetPlayerState(ctx, uid, domain.StateQueued)
}

// Remove unconditionally removes a player from the queue.
func (q *Queue) Remove(ctx context.Context, uid int64, reason RemoveReason) error {
	q.mu.Lock()
	_, ok := q.entries[uid]
	delete(q.entries, uid)
	q.mu.Unlock()
	if !ok {
		return nil
	}

	// A matched removal's lifecycle transition (queued -> matched) is
	// owned by the match-creation flow, which runs before this call;
	// forcing it back to idle here would stomp that transition.
	if reason != ReasonMatched {
		if err := q.store.SetPlayerState(ctx, uid, domain.StateIdle); err != nil {
			return fmt.Errorf("queue: remove %d: set idle: %w", uid, err)
		}
	}
	// Cancellation notifications for non-match removals are emitted by
	// the caller (internal/orchestrator wires notify.Router), since the
	// queue package has no dependency on internal/notify by design —
	// it just needs to report why the removal happened.
	return nil
}

// Snapshot returns a copy of every current entry, ordered by insertion,
// for a pairing wave (spec.md §4.5 "snapshot").
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].insertionOrder < out[j].insertionOrder })
	return out
}

// IsQueued reports whether a player currently has an entry. Backed by a
// probabilistic pre-check (spec.md C5) so the common "definitely not
// queued" case, hit on every guard check before a command runs, never
// takes the entry-table lock.
func (q *Queue) IsQueued(uid int64) bool {
	if !q.mightBeQueued(uid) {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[uid]
	return ok
}

// Size returns the current queue size N.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IncrementWaves bumps the wave counter for every entry still present in
// ids (entries matched this wave are excluded by the caller).
func (q *Queue) IncrementWaves(ids []int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		if e, ok := q.entries[id]; ok {
			e.WaveCount++
		}
	}
}

// RefreshMMR overwrites an entry's MMR snapshot, used right before a wave
// so pairing sees current ratings rather than stale enqueue-time values.
func (q *Queue) RefreshMMR(uid int64, mmr map[domain.Race]int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[uid]; ok {
		e.MMR = copyMMR(mmr)
	}
}

func categorize(races []domain.Race) Category {
	hasBW, hasSC2 := false, false
	for _, r := range races {
		if isBWRace(r) {
			hasBW = true
		} else {
			hasSC2 = true
		}
	}
	switch {
	case hasBW && hasSC2:
		return CategoryBoth
	case hasBW:
		return CategoryBWOnly
	default:
		return CategorySC2Only
	}
}

func isBWRace(r domain.Race) bool {
	switch r {
	case "bw_terran", "bw_protoss", "bw_zerg":
		return true
	default:
		return false
	}
}

func copyMMR(in map[domain.Race]int) map[domain.Race]int {
	out := make(map[domain.Race]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
