// Package orchestrator wires every subsystem together and owns the
// process lifecycle (spec.md C11): startup order, a periodic health
// sample, and a graceful, deadline-bounded shutdown.
//
// Grounded on the teacher's cmd/server/main.go and cmd/pipeline/main.go:
// both build their dependency graph bottom-up in main, wire a
// signal-driven context, and shut components down in reverse
// construction order. This package lifts that sequence out of main into
// a single testable Orchestrator so cmd/ladderd stays a thin entrypoint.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/admin"
	"evoladder/internal/catalog"
	"evoladder/internal/config"
	"evoladder/internal/logging"
	"evoladder/internal/match"
	"evoladder/internal/notify"
	"evoladder/internal/pairing"
	"evoladder/internal/queue"
	"evoladder/internal/replay"
	"evoladder/internal/store"
	"evoladder/internal/writelog"
)

// Orchestrator owns every long-lived subsystem and the goroutines driving
// them.
type Orchestrator struct {
	cfg    *config.Config
	logger zerolog.Logger

	persister *store.PGPersister
	log       *writelog.Log
	catalog   *catalog.Catalog
	store     *store.Store

	queue       *queue.Queue
	scheduler   *queue.Scheduler
	matchEng    *match.Engine
	router      *notify.Router
	dispatcher  *notify.WebSocketDispatcher
	replayPool  *replay.WorkerPool
	replayCache *replay.TursoMetadataCache // nil when TURSO_DATABASE_URL is unset
	replayEng   *replay.Engine
	adminEng    *admin.Engine
	allowlist   *admin.Allowlist

	started    bool
	healthStop chan struct{}
	healthDone chan struct{}
}

// Player, Ratings, Matches, etc. accessors used by cmd/ladderd's command
// surface are intentionally not part of this package: orchestrator's job
// is lifecycle, not request handling.

// Store exposes the in-memory store for the command-handling layer.
func (o *Orchestrator) Store() *store.Store { return o.store }

// Queue exposes the queue engine for the command-handling layer.
func (o *Orchestrator) Queue() *queue.Queue { return o.queue }

// Match exposes the match engine for the command-handling layer.
func (o *Orchestrator) Match() *match.Engine { return o.matchEng }

// Replay exposes the replay ingestion engine for the command-handling layer.
func (o *Orchestrator) Replay() *replay.Engine { return o.replayEng }

// Admin exposes the admin override engine for the command-handling layer.
func (o *Orchestrator) Admin() *admin.Engine { return o.adminEng }

// Catalog exposes the reference-data catalog for the command-handling layer.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

// New constructs every subsystem in dependency order and opens its
// connections (spec.md §4.11 startup steps 1-3). The only goroutines it
// starts are the replay worker pool's workers, which wait for tasks;
// Start begins serving.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Orchestrator, error) {
	persister, err := store.NewPGPersister(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connect database: %w", err)
	}

	cat, err := catalog.Load(ctx)
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("orchestrator: load catalog: %w", err)
	}

	log, err := writelog.Open(ctx, cfg.WriteLogPath, logging.Component(logger, "writelog"))
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("orchestrator: open write log: %w", err)
	}

	allowlist, err := admin.LoadAllowlist(cfg.AdminAllowlistPath)
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("orchestrator: load admin allowlist: %w", err)
	}

	st := store.New(log, logging.Component(logger, "store"))
	log.SetApply(st.Apply(persister))

	dispatcher := notify.NewWebSocketDispatcher(cfg.NotifyGatewayURL, logging.Component(logger, "notify.dispatcher"))
	router := notify.NewRouter(dispatcher, cfg.MessageRateLimitPerSec, logging.Component(logger, "notify.router"))
	matchNotifier := notify.NewMatchNotifier(router)

	q := queue.New(st, logging.Component(logger, "queue"))
	pairer := pairing.New(string(cfg.MatchWindowProfile))
	matchEng := match.New(st, cat, matchNotifier, cfg.AbandonmentTimeout, logging.Component(logger, "match"))
	scheduler := queue.NewScheduler(q, pairer, matchEng, st, cfg.WaveInterval, logging.Component(logger, "queue.scheduler"))

	pool := replay.NewWorkerPool(cfg.ReplayParserPath, cfg.WorkerPoolSize, cfg.ReplayParserTimeout, logging.Component(logger, "replay.pool"))

	var replayCache *replay.TursoMetadataCache
	var replayEng *replay.Engine
	if cfg.TursoURL != "" {
		replayCache, err = replay.NewTursoMetadataCache(ctx, cfg.TursoURL, cfg.TursoAuthToken)
		if err != nil {
			persister.Close()
			log.Close()
			return nil, fmt.Errorf("orchestrator: connect replay metadata cache: %w", err)
		}
		replayEng = replay.NewWithCache(pool, st, replayCache)
	} else {
		logger.Info().Msg("orchestrator: replay metadata cache disabled, TURSO_DATABASE_URL not set")
		replayEng = replay.New(pool, st)
	}

	adminEng := admin.New(allowlist, st, q, matchEng, router, logging.Component(logger, "admin"))

	return &Orchestrator{
		cfg: cfg, logger: logger,
		persister: persister, log: log, catalog: cat, store: st,
		queue: q, scheduler: scheduler, matchEng: matchEng,
		router: router, dispatcher: dispatcher,
		replayPool: pool, replayCache: replayCache, replayEng: replayEng,
		adminEng: adminEng, allowlist: allowlist,
		healthStop: make(chan struct{}),
		healthDone: make(chan struct{}),
	}, nil
}

// Start runs the remaining startup steps (spec.md §4.11 steps 4-8): load
// the in-memory store from the DB, replay any pending write-log jobs,
// re-arm abandonment monitors for matches still in flight, connect the
// notification dispatcher, and launch the background loops. It is an
// Integrity violation to call Start twice on the same Orchestrator.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.started {
		return fmt.Errorf("orchestrator: already started")
	}

	snap, err := o.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: load snapshot: %w", err)
	}
	o.store.Load(snap)

	if err := o.log.Recover(ctx); err != nil {
		return fmt.Errorf("orchestrator: recover write log: %w", err)
	}

	resumed := 0
	for _, m := range snap.Matches {
		if m.Result != nil && m.Result.IsTerminal() {
			continue
		}
		o.matchEng.ResumeAbandonmentMonitor(m.ID)
		resumed++
	}
	o.logger.Info().Int("count", resumed).Msg("orchestrator: resumed abandonment monitors for in-flight matches")

	if err := o.dispatcher.Connect(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator: notification gateway connect failed, will retry lazily on first send")
	}

	o.log.Start(ctx)
	go o.router.Run(ctx)
	go o.scheduler.Run(ctx)
	go o.runHealthSampler(ctx, 30*time.Second)

	o.started = true
	o.logger.Info().Msg("orchestrator: started")
	return nil
}

// Snapshot is a point-in-time health sample (spec.md SPEC_FULL.md §4's
// performance_service.py/memory_monitor.py supplement): queue depth,
// write-log backlog, notification router backlog, and process memory.
type Snapshot struct {
	QueueSize           int
	WriteLogPending     int
	NotifyHighPending   int
	NotifyLowPending    int
	HeapAllocBytes      uint64
	ActivePopulation24h int
}

// HealthSnapshot samples the current state of every backlog-bearing
// subsystem, the same read-only projection shape as the profile/
// leaderboard commands.
func (o *Orchestrator) HealthSnapshot(ctx context.Context) Snapshot {
	pending, err := o.log.PendingCount(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator: health sample: write log pending count failed")
	}
	high, low := o.router.Pending()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Snapshot{
		QueueSize:           o.queue.Size(),
		WriteLogPending:     pending,
		NotifyHighPending:   high,
		NotifyLowPending:    low,
		HeapAllocBytes:      mem.HeapAlloc,
		ActivePopulation24h: o.store.RecentActivePopulation(24 * time.Hour),
	}
}

func (o *Orchestrator) runHealthSampler(ctx context.Context, interval time.Duration) {
	defer close(o.healthDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.healthStop:
			return
		case <-ticker.C:
			snap := o.HealthSnapshot(ctx)
			o.logger.Info().
				Int("queue_size", snap.QueueSize).
				Int("write_log_pending", snap.WriteLogPending).
				Int("notify_high_pending", snap.NotifyHighPending).
				Int("notify_low_pending", snap.NotifyLowPending).
				Uint64("heap_alloc_bytes", snap.HeapAllocBytes).
				Int("active_population_24h", snap.ActivePopulation24h).
				Msg("orchestrator: health sample")
		}
	}
}

// drainDeadline bounds how long Shutdown waits for the write log to empty.
const drainDeadline = 30 * time.Second

// Shutdown runs the shutdown sequence (spec.md §4.11): the caller is
// expected to have already stopped accepting new external commands and
// cancelled the context passed to Start's background loops (which stops
// the wave timer and the notification router and write-log drain loops).
// Shutdown then drains what's left: it waits for the write log to empty
// (or the deadline), closes the write log and the replay metadata cache,
// disconnects the notification gateway, and closes the catalog and the
// database pool. The replay worker pool is not stopped.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	close(o.healthStop)
	<-o.healthDone

	deadline := time.Now().Add(drainDeadline)
	for time.Now().Before(deadline) {
		pending, err := o.log.PendingCount(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("orchestrator: shutdown: write log pending count failed")
			break
		}
		if pending == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	high, low := o.router.Pending()
	if high+low > 0 {
		o.logger.Warn().Int("high", high).Int("low", low).Msg("orchestrator: shutdown: notification router backlog not fully drained")
	}

	if err := o.log.Close(); err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: shutdown: write log close failed")
	}
	if o.replayCache != nil {
		if err := o.replayCache.Close(); err != nil {
			o.logger.Error().Err(err).Msg("orchestrator: shutdown: replay metadata cache close failed")
		}
	}
	o.dispatcher.Disconnect()
	if err := o.catalog.Close(); err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: shutdown: catalog close failed")
	}
	o.persister.Close()

	o.logger.Info().Msg("orchestrator: shutdown complete")
	return nil
}
