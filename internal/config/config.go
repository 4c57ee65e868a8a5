// Package config loads the engine's environment-driven configuration.
// Grounded on the teacher's cmd/server and cmd/pipeline main.go, which
// both probe a short list of candidate .env paths via godotenv before
// falling back to process environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// WindowProfile selects the (base, growth) tuning table used by the
// pairing algorithm's window function (spec.md §4.6).
type WindowProfile string

const (
	ProfileAggressive WindowProfile = "aggressive"
	ProfileBalanced   WindowProfile = "balanced"
	ProfileStrict     WindowProfile = "strict"
)

// Config is the full set of environment-driven knobs from spec.md §6.
type Config struct {
	DatabaseURL            string
	WriteLogPath           string
	WaveInterval           time.Duration
	AbandonmentTimeout     time.Duration
	WorkerPoolSize         int
	ReplayParserPath       string
	ReplayParserTimeout    time.Duration
	MessageRateLimitPerSec int
	NotifyGatewayURL       string
	AdminAllowlistPath     string
	MatchWindowProfile     WindowProfile
	TursoURL               string
	TursoAuthToken         string
}

// candidateEnvPaths mirrors cmd/pipeline/main.go's multi-path .env probe.
var candidateEnvPaths = []string{".env", "../.env", "../../.env"}

// Load reads configuration from the process environment, having first
// attempted to populate it from a .env file. A malformed numeric or enum
// value is a fatal startup error (an Integrity violation, not a silent
// default), per spec.md §7.
func Load() (*Config, error) {
	for _, p := range candidateEnvPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	cfg := &Config{
		DatabaseURL:        getenv("DATABASE_URL", ""),
		WriteLogPath:       getenv("WRITE_LOG_PATH", "./writelog.db"),
		ReplayParserPath:   getenv("REPLAY_PARSER_PATH", "./bin/replay-parser"),
		NotifyGatewayURL:   getenv("NOTIFY_GATEWAY_URL", "ws://localhost:8765/gateway"),
		AdminAllowlistPath: getenv("ADMIN_ALLOWLIST_PATH", "./admin_allowlist.json"),
		// Turso is optional, matching the teacher's own "disabled unless
		// TURSO_DATABASE_URL is set" default for its analytics push.
		TursoURL:       getenv("TURSO_DATABASE_URL", ""),
		TursoAuthToken: getenv("TURSO_AUTH_TOKEN", ""),
	}

	waveSec, err := getenvInt("WAVE_INTERVAL_SEC", 15)
	if err != nil {
		return nil, err
	}
	if waveSec < 1 {
		return nil, fmt.Errorf("WAVE_INTERVAL_SEC must be >= 1, got %d", waveSec)
	}
	cfg.WaveInterval = time.Duration(waveSec) * time.Second

	abandonSec, err := getenvInt("ABANDONMENT_TIMEOUT_SEC", 1800)
	if err != nil {
		return nil, err
	}
	cfg.AbandonmentTimeout = time.Duration(abandonSec) * time.Second

	poolSize, err := getenvInt("WORKER_POOL_SIZE", 1)
	if err != nil {
		return nil, err
	}
	if poolSize < 1 {
		return nil, fmt.Errorf("WORKER_POOL_SIZE must be >= 1, got %d", poolSize)
	}
	cfg.WorkerPoolSize = poolSize

	parserTimeoutSec, err := getenvInt("REPLAY_PARSER_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.ReplayParserTimeout = time.Duration(parserTimeoutSec) * time.Second

	rate, err := getenvInt("MESSAGE_RATE_LIMIT_PER_SEC", 40)
	if err != nil {
		return nil, err
	}
	if rate < 1 {
		return nil, fmt.Errorf("MESSAGE_RATE_LIMIT_PER_SEC must be >= 1, got %d", rate)
	}
	cfg.MessageRateLimitPerSec = rate

	profile := WindowProfile(getenv("MATCH_WINDOW_PROFILE", string(ProfileBalanced)))
	switch profile {
	case ProfileAggressive, ProfileBalanced, ProfileStrict:
		cfg.MatchWindowProfile = profile
	default:
		return nil, fmt.Errorf("MATCH_WINDOW_PROFILE must be one of aggressive|balanced|strict, got %q", profile)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}
