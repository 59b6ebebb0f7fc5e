// Package cache keeps the last saved progress on disk so a session can
// start when the API is unreachable.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

const (
	sqlCreate = `CREATE TABLE IF NOT EXISTS progress_cache (
		key        TEXT PRIMARY KEY,
		progress   TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	sqlSelect = `SELECT progress FROM progress_cache WHERE key = ?`
	sqlUpsert = `INSERT INTO progress_cache (key, progress, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET progress = excluded.progress, updated_at = excluded.updated_at`
	sqlDelete = `DELETE FROM progress_cache WHERE key = ?`
)

// Cache is a schemas.ProgressCache backed by a SQLite file.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the database file and its parent directories if needed.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache: path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlCreate); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	logger = logger.Named("cache")
	logger.Debug("Progress cache opened.", zap.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

// Get returns the cached record for key. The bool is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (schemas.PlayerProgress, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, sqlSelect, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.PlayerProgress{}, false, nil
	}
	if err != nil {
		return schemas.PlayerProgress{}, false, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}

	var progress schemas.PlayerProgress
	if err := schemas.JSON.UnmarshalFromString(raw, &progress); err != nil {
		// A corrupt entry is treated as a miss so the caller falls through.
		c.logger.Warn("Discarding unreadable cache entry.", zap.String("key", key), zap.Error(err))
		return schemas.PlayerProgress{}, false, nil
	}
	progress.Normalize()
	return progress, true, nil
}

// Put stores progress under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, progress schemas.PlayerProgress) error {
	progress.Normalize()
	raw, err := schemas.JSON.MarshalToString(progress)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, sqlUpsert, key, raw, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, sqlDelete, key); err != nil {
		return fmt.Errorf("failed to delete cache entry %q: %w", key, err)
	}
	return nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
