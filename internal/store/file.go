package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

// FileTree reads a skill tree document from disk. It implements
// schemas.TreeSource.
type FileTree struct {
	Path string
}

func (f FileTree) FetchTree(ctx context.Context) (schemas.SkillTreeData, error) {
	if err := ctx.Err(); err != nil {
		return schemas.SkillTreeData{}, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return schemas.SkillTreeData{}, fmt.Errorf("failed to open skill tree: %w", err)
	}
	defer file.Close()
	return schemas.DecodeTree(file)
}

// FileProgress keeps a single player's progress in a JSON file. It implements
// schemas.ProgressStore. A missing file reads as Start.
type FileProgress struct {
	mu    sync.Mutex
	path  string
	start schemas.PlayerProgress
}

// NewFileProgress returns a store backed by path.
func NewFileProgress(path string, start schemas.PlayerProgress) *FileProgress {
	start = start.Clone()
	start.Normalize()
	return &FileProgress{path: path, start: start}
}

func (f *FileProgress) LoadProgress(ctx context.Context) (schemas.PlayerProgress, error) {
	if err := ctx.Err(); err != nil {
		return schemas.PlayerProgress{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f.start.Clone(), nil
	}
	if err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to open progress file: %w", err)
	}
	defer file.Close()
	return schemas.DecodeProgress(file)
}

// SaveProgress writes to a temporary file and renames it over the target, so
// readers never see a partial document.
func (f *FileProgress) SaveProgress(ctx context.Context, progress schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	if err := ctx.Err(); err != nil {
		return schemas.PlayerProgress{}, err
	}
	progress = progress.Clone()
	progress.Normalize()
	data, err := schemas.JSON.MarshalIndent(progress, "", "  ")
	if err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to encode progress: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to create progress directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to create temporary progress file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return schemas.PlayerProgress{}, fmt.Errorf("failed to write progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to write progress: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to replace progress file: %w", err)
	}
	return progress, nil
}

// LoadItems reads a JSON array of item definitions.
func LoadItems(path string) ([]schemas.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	var items []schemas.Item
	if err := schemas.JSON.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("item at index %d has no id", i)
		}
	}
	return items, nil
}
