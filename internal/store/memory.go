package store

import (
	"context"
	"sync"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

// Memory is an in-process schemas.PlayerProgressRepository. Records are
// cloned on the way in and out.
type Memory struct {
	mu       sync.RWMutex
	progress map[string]schemas.PlayerProgress
	items    map[string]schemas.Item
}

// NewMemory returns an empty repository seeded with items.
func NewMemory(items ...schemas.Item) *Memory {
	m := &Memory{
		progress: make(map[string]schemas.PlayerProgress),
		items:    make(map[string]schemas.Item, len(items)),
	}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *Memory) GetProgress(ctx context.Context, playerID string) (schemas.PlayerProgress, error) {
	if err := ctx.Err(); err != nil {
		return schemas.PlayerProgress{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[playerID]
	if !ok {
		return schemas.PlayerProgress{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) PutProgress(ctx context.Context, playerID string, progress schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	if err := ctx.Err(); err != nil {
		return schemas.PlayerProgress{}, err
	}
	progress = progress.Clone()
	progress.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[playerID] = progress
	return progress.Clone(), nil
}

func (m *Memory) GetItem(ctx context.Context, itemID string) (schemas.Item, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Item{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[itemID]
	if !ok {
		return schemas.Item{}, ErrNotFound
	}
	return it, nil
}

// PutItems adds or replaces item definitions.
func (m *Memory) PutItems(_ context.Context, items []schemas.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = it
	}
	return nil
}
