// File: internal/controller/controller.go
//
// Package controller orchestrates a skill tree session: it loads the tree and
// the player's progress, derives node availability, applies unlock
// transactions and keeps the active effect set in step with progress.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/condition"
	"github.com/xkilldash9x/skilltree/internal/effects"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
)

// Controller owns the graph, the player's progress and the active effect set
// for one session. Its methods are safe for concurrent use; at most one
// unlock is processed at a time.
type Controller struct {
	mu sync.RWMutex

	graph      *skillgraph.Graph
	aggregator *effects.Aggregator
	store      schemas.ProgressStore
	progress   schemas.PlayerProgress

	source    schemas.TreeSource
	fallback  *schemas.SkillTreeData
	graphOpts skillgraph.Options
	cache     schemas.ProgressCache
	cacheKey  string
	renderers []schemas.RenderAdapter

	// inflight admits a single unlock at a time.
	inflight *semaphore.Weighted
	// generation is bumped by Reset so late persistence results are discarded.
	generation uint64
	sessionID  string

	logger *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The controller logs under a "controller" child.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithTreeSource makes Load fetch the tree instead of using the graph given to New.
func WithTreeSource(src schemas.TreeSource, opts skillgraph.Options) Option {
	return func(c *Controller) {
		c.source = src
		c.graphOpts = opts
	}
}

// WithFallbackTree sets the tree used when the fetched one is unusable.
func WithFallbackTree(data schemas.SkillTreeData) Option {
	return func(c *Controller) {
		d := data.Clone()
		c.fallback = &d
	}
}

// WithCache enables the local progress cache under key.
func WithCache(cache schemas.ProgressCache, key string) Option {
	return func(c *Controller) {
		c.cache = cache
		c.cacheKey = key
	}
}

// WithRenderer subscribes a render adapter.
func WithRenderer(r schemas.RenderAdapter) Option {
	return func(c *Controller) { c.renderers = append(c.renderers, r) }
}

// New creates a controller. graph may be nil when a tree source is
// configured; aggregator may be nil to use one over the default registry.
func New(graph *skillgraph.Graph, aggregator *effects.Aggregator, store schemas.ProgressStore, opts ...Option) *Controller {
	c := &Controller{
		graph:     graph,
		store:     store,
		progress:  schemas.NewPlayerProgress(0, 0),
		inflight:  semaphore.NewWeighted(1),
		sessionID: uuid.NewString(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("controller").With(zap.String("session_id", c.sessionID))
	if aggregator == nil {
		aggregator = effects.NewAggregator(nil, c.logger)
	}
	c.aggregator = aggregator
	return c
}

// AddRenderer subscribes a render adapter after construction. It receives
// the current tree immediately when one is loaded.
func (c *Controller) AddRenderer(r schemas.RenderAdapter) {
	c.mu.Lock()
	c.renderers = append(c.renderers, r)
	var push *loadPush
	if c.graph != nil {
		p := c.loadPushLocked()
		push = &p
	}
	c.mu.Unlock()

	if push != nil {
		r.LoadSkillTree(push.tree, push.unlocked, push.available)
	}
}

// -- Loading --

// Load fetches the tree (when a source is configured) and the player's
// progress concurrently, then activates the effects of every unlocked skill
// and pushes the tree to the render adapters.
func (c *Controller) Load(ctx context.Context) error {
	var (
		graph    *skillgraph.Graph
		progress schemas.PlayerProgress
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		graph, err = c.resolveGraph(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		progress, err = c.loadProgress(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.graph = graph
	c.generation++
	c.adoptLocked(progress)
	push := c.loadPushLocked()
	renderers := append([]schemas.RenderAdapter(nil), c.renderers...)
	c.mu.Unlock()

	c.logger.Info("Skill tree session loaded.",
		zap.String("tree_version", graph.Version()),
		zap.Int("unlocked", len(progress.UnlockedSkills)),
		zap.Int("available", len(push.available)))

	for _, r := range renderers {
		r.LoadSkillTree(push.tree, push.unlocked, push.available)
	}
	return nil
}

// resolveGraph returns the fetched tree, or the fallback when the fetched
// tree cannot be used.
func (c *Controller) resolveGraph(ctx context.Context) (*skillgraph.Graph, error) {
	if c.source == nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.graph == nil {
			return nil, ErrNoTree
		}
		return c.graph, nil
	}

	data, err := c.source.FetchTree(ctx)
	if err == nil {
		var graph *skillgraph.Graph
		graph, _, err = skillgraph.Load(data, c.graphOpts)
		if err == nil {
			return graph, nil
		}
	}
	if c.fallback == nil {
		return nil, fmt.Errorf("failed to load skill tree: %w", err)
	}

	c.logger.Warn("Skill tree unusable, falling back to the cached tree.", zap.Error(err))
	graph, _, ferr := skillgraph.Load(*c.fallback, c.graphOpts)
	if ferr != nil {
		return nil, fmt.Errorf("%w: fetched tree failed (%v) and fallback tree failed: %w", ErrNoTree, err, ferr)
	}
	return graph, nil
}

func (c *Controller) loadProgress(ctx context.Context) (schemas.PlayerProgress, error) {
	progress, err := c.store.LoadProgress(ctx)
	if err == nil {
		progress = progress.Clone()
		progress.Normalize()
		return progress, nil
	}
	if c.cache == nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to load player progress: %w", err)
	}

	cached, ok, cerr := c.cache.Get(ctx, c.cacheKey)
	if cerr != nil || !ok {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to load player progress and no cached copy is available: %w", errors.Join(err, cerr))
	}
	c.logger.Warn("Progress load failed, using the locally cached copy.", zap.Error(err))
	cached = cached.Clone()
	cached.Normalize()
	return cached, nil
}

// Reset starts a new run with the given progress. Pending unlocks from the
// previous run are discarded when they complete.
func (c *Controller) Reset(progress schemas.PlayerProgress) error {
	c.mu.Lock()
	if c.graph == nil {
		c.mu.Unlock()
		return ErrNoTree
	}
	c.generation++
	progress = progress.Clone()
	progress.Normalize()
	c.adoptLocked(progress)
	push := c.loadPushLocked()
	renderers := append([]schemas.RenderAdapter(nil), c.renderers...)
	c.mu.Unlock()

	c.logger.Info("Session reset.", zap.Int("unlocked", len(progress.UnlockedSkills)))
	for _, r := range renderers {
		r.LoadSkillTree(push.tree, push.unlocked, push.available)
	}
	return nil
}

// adoptLocked replaces progress and rebuilds the active effect set from it.
func (c *Controller) adoptLocked(progress schemas.PlayerProgress) {
	for _, id := range progress.UnlockedSkills {
		if !c.graph.Has(id) {
			c.logger.Warn("Progress lists a skill the tree does not contain.", zap.String("node_id", id))
		}
	}
	c.progress = progress
	c.syncEffectsLocked()
}

// syncEffectsLocked activates exactly the effects of the root and every
// unlocked skill.
func (c *Controller) syncEffectsLocked() {
	c.aggregator.Reset()
	if root, ok := c.graph.Node(c.graph.Root()); ok {
		c.aggregator.Activate(root)
	}
	for _, id := range c.progress.UnlockedSkills {
		if node, ok := c.graph.Node(id); ok && id != c.graph.Root() {
			c.aggregator.Activate(node)
		}
	}
}

// -- Unlock transaction --

// UnlockNode unlocks a node, persists the new progress and returns it.
//
// Validation failures (ErrNodeNotFound, *AvailabilityError,
// *InsufficientResourcesError) leave the controller untouched. Unlocking a
// node that is already unlocked returns the current progress without
// charging again. A second call while one is awaiting persistence fails
// with ErrUnlockInFlight. When the save fails the local state is rolled
// back and a *PersistenceError is returned.
func (c *Controller) UnlockNode(ctx context.Context, nodeID string) (schemas.PlayerProgress, error) {
	if !c.inflight.TryAcquire(1) {
		return schemas.PlayerProgress{}, ErrUnlockInFlight
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	if c.graph == nil {
		c.mu.Unlock()
		return schemas.PlayerProgress{}, ErrNoTree
	}
	node, ok := c.graph.Node(nodeID)
	if !ok {
		c.mu.Unlock()
		return schemas.PlayerProgress{}, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	if c.progress.HasUnlocked(nodeID) || nodeID == c.graph.Root() {
		current := c.progress.Clone()
		c.mu.Unlock()
		c.logger.Debug("Node already unlocked.", zap.String("node_id", nodeID))
		return current, nil
	}
	unlocked := c.progress.UnlockedSet()
	if c.graph.Status(nodeID, unlocked) != schemas.StatusUnlockable {
		missing := c.graph.MissingPrerequisites(nodeID, unlocked)
		c.mu.Unlock()
		return schemas.PlayerProgress{}, &AvailabilityError{NodeID: nodeID, Missing: missing}
	}
	if !affordable(node.Cost, c.progress) {
		err := &InsufficientResourcesError{NodeID: nodeID, Cost: node.Cost, Available: wallet(c.progress)}
		c.mu.Unlock()
		return schemas.PlayerProgress{}, err
	}

	// Optimistic local update with a snapshot to roll back to.
	generation := c.generation
	snapshot := c.progress.Clone()
	effectSnapshot := c.aggregator.Snapshot()

	c.progress.Reputation -= node.Cost.Reputation
	c.progress.SkillPointsAvailable -= node.Cost.SkillPoints
	c.progress.UnlockedSkills = append(c.progress.UnlockedSkills, nodeID)
	if spec := node.SpecializationID(); spec != "" {
		c.progress.SpecializationProgress[spec]++
	}
	c.aggregator.Activate(node)
	pending := c.progress.Clone()
	c.mu.Unlock()

	saved, saveErr := c.store.SaveProgress(ctx, pending)

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		c.logger.Info("Discarding unlock result from a previous session state.", zap.String("node_id", nodeID))
		return schemas.PlayerProgress{}, ErrSessionReset
	}
	if saveErr != nil {
		c.progress = snapshot
		c.aggregator.Restore(effectSnapshot)
		c.mu.Unlock()
		c.logger.Error("Failed to persist unlock, rolled back.", zap.String("node_id", nodeID), zap.Error(saveErr))
		return schemas.PlayerProgress{}, &PersistenceError{NodeID: nodeID, Err: saveErr}
	}

	saved = saved.Clone()
	saved.Normalize()
	if !saved.Equal(pending) {
		c.logger.Warn("Server stored a different progress than submitted, adopting it.", zap.String("node_id", nodeID))
		c.progress = saved
		c.syncEffectsLocked()
	}
	result := c.progress.Clone()
	unlockedIDs, availableIDs := c.idsLocked()
	renderers := append([]schemas.RenderAdapter(nil), c.renderers...)
	c.mu.Unlock()

	c.logger.Info("Node unlocked.",
		zap.String("node_id", nodeID),
		zap.Int("reputation", result.Reputation),
		zap.Int("skill_points", result.SkillPointsAvailable))

	c.writeCache(ctx, result)
	for _, r := range renderers {
		r.UpdateNodeStates(append([]string(nil), unlockedIDs...), append([]string(nil), availableIDs...))
	}
	return result, nil
}

func (c *Controller) writeCache(ctx context.Context, progress schemas.PlayerProgress) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, c.cacheKey, progress); err != nil {
		c.logger.Warn("Failed to update the local progress cache.", zap.Error(err))
	}
}

func affordable(cost schemas.Cost, p schemas.PlayerProgress) bool {
	return p.Reputation >= cost.Reputation && p.SkillPointsAvailable >= cost.SkillPoints
}

func wallet(p schemas.PlayerProgress) schemas.Cost {
	return schemas.Cost{Reputation: p.Reputation, SkillPoints: p.SkillPointsAvailable}
}

// -- Queries --

// NodeInfo answers the node-selected event of the render layer.
type NodeInfo struct {
	Node                 schemas.SkillNode
	Status               schemas.NodeStatus
	Prerequisites        []string
	MissingPrerequisites []string
	Affordable           bool
	Shortfall            schemas.Cost
	Rank                 skillgraph.Rank
}

// SelectNode describes a node for an info panel: its state, prerequisites
// and whether the player can pay for it.
func (c *Controller) SelectNode(nodeID string) (NodeInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return NodeInfo{}, ErrNoTree
	}
	node, ok := c.graph.Node(nodeID)
	if !ok {
		return NodeInfo{}, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	unlocked := c.progress.UnlockedSet()
	info := NodeInfo{
		Node:                 node,
		Status:               c.statusLocked(nodeID, unlocked),
		Prerequisites:        c.graph.Prerequisites(nodeID),
		MissingPrerequisites: c.graph.MissingPrerequisites(nodeID, unlocked),
		Affordable:           affordable(node.Cost, c.progress),
		Shortfall:            shortfall(node.Cost, wallet(c.progress)),
		Rank:                 skillgraph.RankNone,
	}
	if spec := node.SpecializationID(); spec != "" {
		if rank, err := c.graph.SpecializationRank(spec, c.progress.SpecializationProgress[spec]); err == nil {
			info.Rank = rank
		}
	}
	return info, nil
}

// Status returns the state of a node. Every unlocked node has its effects
// registered with the aggregator, so there is no separate active state.
func (c *Controller) Status(nodeID string) schemas.NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return schemas.StatusLocked
	}
	return c.statusLocked(nodeID, c.progress.UnlockedSet())
}

func (c *Controller) statusLocked(nodeID string, unlocked map[string]bool) schemas.NodeStatus {
	return c.graph.Status(nodeID, unlocked)
}

// Statuses returns the state of every node.
func (c *Controller) Statuses() map[string]schemas.NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := map[string]schemas.NodeStatus{}
	if c.graph == nil {
		return out
	}
	unlocked := c.progress.UnlockedSet()
	for _, id := range c.graph.IDs() {
		out[id] = c.statusLocked(id, unlocked)
	}
	return out
}

// Available returns the sorted ids of nodes that can be unlocked now.
func (c *Controller) Available() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return nil
	}
	return c.graph.Unlockable(c.progress.UnlockedSet())
}

// Affordable returns the sorted ids of available nodes the player can pay for.
func (c *Controller) Affordable() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return nil
	}
	var out []string
	for _, id := range c.graph.Unlockable(c.progress.UnlockedSet()) {
		if node, ok := c.graph.Node(id); ok && affordable(node.Cost, c.progress) {
			out = append(out, id)
		}
	}
	return out
}

// Progress returns a copy of the player's progress.
func (c *Controller) Progress() schemas.PlayerProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress.Clone()
}

// Graph returns the loaded graph, or nil.
func (c *Controller) Graph() *skillgraph.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// SessionID identifies this controller in logs.
func (c *Controller) SessionID() string { return c.sessionID }

// Bonus is the read API for gameplay systems.
func (c *Controller) Bonus(name string, ctx condition.Context) (any, error) {
	return c.aggregator.GetBonus(name, ctx)
}

// Bonuses returns the unconditional bonus record.
func (c *Controller) Bonuses() schemas.CalculatedBonuses {
	return c.aggregator.GetAllBonuses()
}

// BonusesFor returns the bonus record with conditional effects evaluated against ctx.
func (c *Controller) BonusesFor(ctx condition.Context) schemas.CalculatedBonuses {
	return c.aggregator.BonusesFor(ctx)
}

// ActiveEffects returns the effects currently contributing to bonuses.
func (c *Controller) ActiveEffects() []schemas.ActiveEffect {
	return c.aggregator.Active()
}

// -- Render pushes --

type loadPush struct {
	tree      schemas.SkillTreeData
	unlocked  []string
	available []string
}

func (c *Controller) loadPushLocked() loadPush {
	unlocked, available := c.idsLocked()
	return loadPush{tree: c.graph.Data(), unlocked: unlocked, available: available}
}

// idsLocked returns the sorted unlocked ids, the root included, and the
// sorted unlockable ids.
func (c *Controller) idsLocked() (unlocked, available []string) {
	set := c.progress.UnlockedSet()
	for id := range set {
		if c.graph.Has(id) {
			unlocked = append(unlocked, id)
		}
	}
	if root := c.graph.Root(); !set[root] {
		unlocked = append(unlocked, root)
	}
	sort.Strings(unlocked)
	return unlocked, c.graph.Unlockable(set)
}
