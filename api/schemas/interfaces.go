package schemas

import "context"

// -- Persistence Interfaces --

// TreeSource supplies the skill tree document. Implemented by the HTTP API
// client and by file loaders.
type TreeSource interface {
	FetchTree(ctx context.Context) (SkillTreeData, error)
}

// ProgressStore loads and saves a player's progress. Save returns the state
// the backend actually stored, which callers adopt as the new truth.
//
//go:generate mockery --name ProgressStore --output ../../internal/mocks --outpkg mocks
type ProgressStore interface {
	LoadProgress(ctx context.Context) (PlayerProgress, error)
	SaveProgress(ctx context.Context, progress PlayerProgress) (PlayerProgress, error)
}

// PlayerProgressRepository is the server-side, multi-player store.
type PlayerProgressRepository interface {
	GetProgress(ctx context.Context, playerID string) (PlayerProgress, error)
	PutProgress(ctx context.Context, playerID string, progress PlayerProgress) (PlayerProgress, error)
	GetItem(ctx context.Context, itemID string) (Item, error)
}

// ProgressCache is an optional client-side cache keyed by a string identifier.
type ProgressCache interface {
	Get(ctx context.Context, key string) (PlayerProgress, bool, error)
	Put(ctx context.Context, key string, progress PlayerProgress) error
}

// ItemSource resolves item definitions for effect-driven reward flows.
type ItemSource interface {
	FetchItem(ctx context.Context, id string) (Item, error)
}

// -- Presentation Interfaces --

// RenderAdapter receives pure data pushes from the controller. Implementations
// get their own copies of the tree and id slices and may keep them.
type RenderAdapter interface {
	LoadSkillTree(tree SkillTreeData, unlockedIDs, availableIDs []string)
	UpdateNodeStates(unlockedIDs, availableIDs []string)
}
