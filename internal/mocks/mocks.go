// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) API() config.APIConfig {
	args := m.Called()
	return args.Get(0).(config.APIConfig)
}

func (m *MockConfig) Tree() config.TreeConfig {
	args := m.Called()
	return args.Get(0).(config.TreeConfig)
}

func (m *MockConfig) Progress() config.ProgressConfig {
	args := m.Called()
	return args.Get(0).(config.ProgressConfig)
}

func (m *MockConfig) Cache() config.CacheConfig {
	args := m.Called()
	return args.Get(0).(config.CacheConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Auth() config.AuthConfig {
	args := m.Called()
	return args.Get(0).(config.AuthConfig)
}

// --- Setters ---

func (m *MockConfig) SetAPIBaseURL(u string)   { m.Called(u) }
func (m *MockConfig) SetTreePath(p string)     { m.Called(p) }
func (m *MockConfig) SetProgressPath(p string) { m.Called(p) }

// -- Persistence Mocks --

// MockTreeSource mocks schemas.TreeSource.
type MockTreeSource struct {
	mock.Mock
}

func (m *MockTreeSource) FetchTree(ctx context.Context) (schemas.SkillTreeData, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return schemas.SkillTreeData{}, args.Error(1)
	}
	return args.Get(0).(schemas.SkillTreeData), args.Error(1)
}

// MockProgressStore mocks schemas.ProgressStore.
type MockProgressStore struct {
	mock.Mock
}

func (m *MockProgressStore) LoadProgress(ctx context.Context) (schemas.PlayerProgress, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return schemas.PlayerProgress{}, args.Error(1)
	}
	return args.Get(0).(schemas.PlayerProgress), args.Error(1)
}

// SaveProgress echoes the submitted progress when the expectation returns nil
// as its first value, mimicking a server that stored exactly what it got.
func (m *MockProgressStore) SaveProgress(ctx context.Context, progress schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	select {
	case <-ctx.Done():
		return schemas.PlayerProgress{}, ctx.Err()
	default:
	}
	args := m.Called(ctx, progress)
	if args.Get(0) == nil {
		return progress.Clone(), args.Error(1)
	}
	return args.Get(0).(schemas.PlayerProgress), args.Error(1)
}

// MockProgressCache mocks schemas.ProgressCache.
type MockProgressCache struct {
	mock.Mock
}

func (m *MockProgressCache) Get(ctx context.Context, key string) (schemas.PlayerProgress, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return schemas.PlayerProgress{}, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(schemas.PlayerProgress), args.Bool(1), args.Error(2)
}

func (m *MockProgressCache) Put(ctx context.Context, key string, progress schemas.PlayerProgress) error {
	return m.Called(ctx, key, progress).Error(0)
}

// MockItemSource mocks schemas.ItemSource.
type MockItemSource struct {
	mock.Mock
}

func (m *MockItemSource) FetchItem(ctx context.Context, id string) (schemas.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return schemas.Item{}, args.Error(1)
	}
	return args.Get(0).(schemas.Item), args.Error(1)
}

// MockRepository mocks schemas.PlayerProgressRepository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetProgress(ctx context.Context, playerID string) (schemas.PlayerProgress, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return schemas.PlayerProgress{}, args.Error(1)
	}
	return args.Get(0).(schemas.PlayerProgress), args.Error(1)
}

func (m *MockRepository) PutProgress(ctx context.Context, playerID string, progress schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	args := m.Called(ctx, playerID, progress)
	if args.Get(0) == nil {
		return progress.Clone(), args.Error(1)
	}
	return args.Get(0).(schemas.PlayerProgress), args.Error(1)
}

func (m *MockRepository) GetItem(ctx context.Context, itemID string) (schemas.Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return schemas.Item{}, args.Error(1)
	}
	return args.Get(0).(schemas.Item), args.Error(1)
}

// -- Presentation Mocks --

// RecordingRenderer implements schemas.RenderAdapter and records every push.
// It is safe for concurrent use.
type RecordingRenderer struct {
	mu      sync.Mutex
	Loads   []RenderPush
	Updates []RenderPush
	Tree    schemas.SkillTreeData
}

// RenderPush is one recorded call.
type RenderPush struct {
	Unlocked  []string
	Available []string
}

func (r *RecordingRenderer) LoadSkillTree(tree schemas.SkillTreeData, unlockedIDs, availableIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tree = tree
	r.Loads = append(r.Loads, RenderPush{Unlocked: unlockedIDs, Available: availableIDs})
}

func (r *RecordingRenderer) UpdateNodeStates(unlockedIDs, availableIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updates = append(r.Updates, RenderPush{Unlocked: unlockedIDs, Available: availableIDs})
}

// LastUpdate returns the most recent UpdateNodeStates push.
func (r *RecordingRenderer) LastUpdate() (RenderPush, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Updates) == 0 {
		return RenderPush{}, false
	}
	return r.Updates[len(r.Updates)-1], true
}

// Counts returns the number of loads and updates received.
func (r *RecordingRenderer) Counts() (loads, updates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Loads), len(r.Updates)
}
