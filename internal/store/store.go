package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

// ErrNotFound is returned when a player or item has no row.
var ErrNotFound = errors.New("store: not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateTables = `
        CREATE TABLE IF NOT EXISTS skill_progress (
            player_id  TEXT PRIMARY KEY,
            progress   JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS skill_progress_history (
            id          BIGSERIAL PRIMARY KEY,
            player_id   TEXT NOT NULL,
            progress    JSONB NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS items (
            id           TEXT PRIMARY KEY,
            name         TEXT NOT NULL,
            description  TEXT NOT NULL DEFAULT '',
            effect_type  TEXT NOT NULL,
            effect_value JSONB NOT NULL
        );
    `
	sqlSelectProgress = `SELECT progress FROM skill_progress WHERE player_id = $1;`
	sqlUpsertProgress = `
        INSERT INTO skill_progress (player_id, progress, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (player_id) DO UPDATE SET
            progress = EXCLUDED.progress,
            updated_at = EXCLUDED.updated_at
        RETURNING progress;
    `
	sqlInsertHistory = `
        INSERT INTO skill_progress_history (player_id, progress, recorded_at)
        VALUES ($1, $2, $3);
    `
	sqlSelectItem = `SELECT id, name, description, effect_type, effect_value FROM items WHERE id = $1;`
	sqlUpsertItem = `
        INSERT INTO items (id, name, description, effect_type, effect_value)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            effect_type = EXCLUDED.effect_type,
            effect_value = EXCLUDED.effect_value;
    `
)

// Store provides a PostgreSQL implementation of schemas.PlayerProgressRepository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateTables); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetProgress returns the stored record for playerID or ErrNotFound.
func (s *Store) GetProgress(ctx context.Context, playerID string) (schemas.PlayerProgress, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, sqlSelectProgress, playerID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.PlayerProgress{}, ErrNotFound
		}
		return schemas.PlayerProgress{}, fmt.Errorf("failed to query progress: %w", err)
	}
	return decodeProgress(raw)
}

// PutProgress replaces the player's record and appends it to the history
// table in one transaction. It returns the row as stored.
func (s *Store) PutProgress(ctx context.Context, playerID string, progress schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	progress.Normalize()
	payload, err := schemas.JSON.Marshal(progress)
	if err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to encode progress: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	var stored []byte
	if err := tx.QueryRow(ctx, sqlUpsertProgress, playerID, payload, now).Scan(&stored); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to upsert progress: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlInsertHistory, playerID, payload, now); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to record progress history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Progress stored.", zap.String("player_id", playerID), zap.Int("unlocked", len(progress.UnlockedSkills)))
	return decodeProgress(stored)
}

// GetItem returns the item with the given id or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, itemID string) (schemas.Item, error) {
	var (
		item       schemas.Item
		effectType string
		rawValue   []byte
	)
	err := s.pool.QueryRow(ctx, sqlSelectItem, itemID).Scan(&item.ID, &item.Name, &item.Description, &effectType, &rawValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.Item{}, ErrNotFound
		}
		return schemas.Item{}, fmt.Errorf("failed to query item: %w", err)
	}
	item.Effect.Type = schemas.EffectType(effectType)
	if err := schemas.JSON.Unmarshal(rawValue, &item.Effect.Value); err != nil {
		return schemas.Item{}, fmt.Errorf("failed to decode effect value of item %s: %w", itemID, err)
	}
	return item, nil
}

// PutItems upserts item definitions in a single batch.
func (s *Store) PutItems(ctx context.Context, items []schemas.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	for _, item := range items {
		value, err := schemas.JSON.Marshal(item.Effect.Value)
		if err != nil {
			return fmt.Errorf("failed to encode effect value of item %s: %w", item.ID, err)
		}
		batch.Queue(sqlUpsertItem, item.ID, item.Name, item.Description, string(item.Effect.Type), value)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to upsert item %s (index %d): %w", items[i].ID, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Items stored.", zap.Int("count", len(items)))
	return nil
}

func decodeProgress(raw []byte) (schemas.PlayerProgress, error) {
	var progress schemas.PlayerProgress
	if err := schemas.JSON.Unmarshal(raw, &progress); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to decode stored progress: %w", err)
	}
	progress.Normalize()
	return progress, nil
}
