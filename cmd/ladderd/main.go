package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/config"
	"evoladder/internal/logging"
	"evoladder/internal/orchestrator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ladderd: load config: %v", err)
	}

	logger := logging.New(os.Stdout, parseLevel(os.Getenv("LOG_LEVEL")))

	ctx := setupSignalHandler()

	o, err := orchestrator.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ladderd: construct orchestrator failed")
	}
	if err := o.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ladderd: start orchestrator failed")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	if err := o.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ladderd: shutdown failed")
	}
}

// setupSignalHandler returns a context cancelled on the first SIGINT or
// SIGTERM; a second signal forces an immediate exit. Grounded on the
// teacher's internal/collector.SetupSignalHandler shape, simplified to
// drop the callback parameter — ladderd's shutdown work happens after
// ctx.Done() in main rather than inside the signal goroutine.
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("ladderd: received %v, initiating graceful shutdown", sig)
		cancel()

		sig = <-sigCh
		log.Printf("ladderd: received second %v, forcing exit", sig)
		os.Exit(1)
	}()

	return ctx
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
