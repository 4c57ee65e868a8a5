package replay

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"evoladder/internal/domain"
)

// MetadataCache is the authoritative store behind the duplicate-upload
// short-circuit: once a binary's parsed metadata is known, a byte-identical
// re-upload returns the cached result instead of paying for another
// parser-subprocess round trip (spec.md C8). The in-memory bloom filter in
// Engine is only ever a pre-check in front of this; Get is the ground
// truth a positive hint must confirm.
type MetadataCache interface {
	Get(ctx context.Context, sha256Hex string) (domain.ReplayMetadata, bool, error)
	Put(ctx context.Context, sha256Hex string, meta domain.ReplayMetadata) error
}

// TursoMetadataCache is a MetadataCache backed by a remote libSQL/Turso
// database, grounded on the teacher's data-analyzer/internal/db.TursoClient:
// a database/sql connection opened against the "libsql" driver, URL plus
// optional bearer auth token appended as a query parameter.
type TursoMetadataCache struct {
	db *sql.DB
}

// NewTursoMetadataCache connects to a libSQL/Turso database and ensures the
// cache table exists. An empty url disables the cache: a NullMetadataCache
// (what New uses) takes its place in that case, the same "disabled if unset" default
// the teacher's pipeline/reducer commands apply to Turso.
func NewTursoMetadataCache(ctx context.Context, url, authToken string) (*TursoMetadataCache, error) {
	connStr := url
	if authToken != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("replay: turso cache: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("replay: turso cache: ping: %w", err)
	}

	const createTable = `CREATE TABLE IF NOT EXISTS replay_metadata_cache (
		sha256 TEXT PRIMARY KEY,
		metadata_json TEXT NOT NULL,
		cached_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("replay: turso cache: create table: %w", err)
	}

	return &TursoMetadataCache{db: db}, nil
}

// Get returns the metadata cached for a binary's sha256 digest.
func (c *TursoMetadataCache) Get(ctx context.Context, sha256Hex string) (domain.ReplayMetadata, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		"SELECT metadata_json FROM replay_metadata_cache WHERE sha256 = ?", sha256Hex,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.ReplayMetadata{}, false, nil
	}
	if err != nil {
		return domain.ReplayMetadata{}, false, fmt.Errorf("replay: turso cache: get: %w", err)
	}
	var meta domain.ReplayMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return domain.ReplayMetadata{}, false, fmt.Errorf("replay: turso cache: decode: %w", err)
	}
	return meta, true, nil
}

// Put stores metadata for a binary's sha256 digest, upserting in case a
// concurrent parse of the same binary raced this one.
func (c *TursoMetadataCache) Put(ctx context.Context, sha256Hex string, meta domain.ReplayMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("replay: turso cache: encode: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO replay_metadata_cache (sha256, metadata_json, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(sha256) DO UPDATE SET metadata_json = excluded.metadata_json, cached_at = excluded.cached_at`,
		sha256Hex, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("replay: turso cache: put: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *TursoMetadataCache) Close() error {
	return c.db.Close()
}

// NullMetadataCache is the no-op cache used when no Turso URL is
// configured: every lookup misses, every put is discarded. Engine still
// gets its bloom pre-check and parses fresh every time, matching the
// teacher's own behavior with Turso push disabled.
type NullMetadataCache struct{}

func (NullMetadataCache) Get(ctx context.Context, sha256Hex string) (domain.ReplayMetadata, bool, error) {
	return domain.ReplayMetadata{}, false, nil
}

func (NullMetadataCache) Put(ctx context.Context, sha256Hex string, meta domain.ReplayMetadata) error {
	return nil
}

func hexDigest(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}
