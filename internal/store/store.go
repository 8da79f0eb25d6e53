// Package store provides a SQLite-backed cache for session artifacts
// that are expensive to recompute — chiefly the last-computed sort
// order per game profile, so it survives an orchestrator restart.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loot-core/loot/internal/gameid"
)

// Common errors returned by the store.
var (
	ErrNotFound = errors.New("cache entry not found")
	ErrExpired  = errors.New("cache entry expired")
)

// Config holds configuration for the store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TTL is the default time-to-live for cache entries.
	TTL time.Duration
}

// Store provides SQLite-backed caching for sort results and other
// per-profile artifacts.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// New creates a new store with the given configuration.
func New(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &Store{db: db, ttl: ttl}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_cache (
			cache_key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_cache_expires ON session_cache(expires_at);
	`
	_, err := db.Exec(schema)
	return err
}

// ProfileKey builds the cache key for a game profile's last-computed
// sort, namespaced by the Data folder's modification time so a stale
// entry from before new plugins were installed never matches.
func ProfileKey(game gameid.ID, dataDirModTime int64) string {
	return fmt.Sprintf("sort:%s:%d", game, dataDirModTime)
}

// Get retrieves a cached entry into dest.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	var data string
	var expiresAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT data, expires_at FROM session_cache WHERE cache_key = ?
	`, key).Scan(&data, &expiresAt)

	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query cache: %w", err)
	}

	if time.Now().UnixMilli() > expiresAt {
		s.db.ExecContext(ctx, "DELETE FROM session_cache WHERE cache_key = ?", key)
		return ErrExpired
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("unmarshal cache data: %w", err)
	}
	return nil
}

// Set stores an entry using the store's default TTL.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

// SetWithTTL stores an entry with a custom TTL.
func (s *Store) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache data: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_cache (cache_key, data, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, key, string(data), now.UnixMilli(), expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry from the store.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_cache WHERE cache_key = ?", key)
	return err
}

// Cleanup removes expired entries.
func (s *Store) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_cache WHERE expires_at < ?", time.Now().UnixMilli())
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
