package controller

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/condition"
	"github.com/xkilldash9x/skilltree/internal/mocks"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/skillgraph/skillgraphtest"
)

// -- Test Helpers --

type fixture struct {
	ctrl     *Controller
	store    *mocks.MockProgressStore
	renderer *mocks.RecordingRenderer
}

func newFixture(t *testing.T, data schemas.SkillTreeData, progress schemas.PlayerProgress, opts ...Option) *fixture {
	t.Helper()
	store := new(mocks.MockProgressStore)
	store.On("LoadProgress", mock.Anything).Return(progress, nil).Maybe()

	renderer := &mocks.RecordingRenderer{}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithRenderer(renderer)}, opts...)
	ctrl := New(skillgraphtest.MustLoad(t, data), nil, store, opts...)
	require.NoError(t, ctrl.Load(context.Background()))
	return &fixture{ctrl: ctrl, store: store, renderer: renderer}
}

func (f *fixture) echoSaves() {
	f.store.On("SaveProgress", mock.Anything, mock.Anything).Return(nil, nil)
}

// -- Scenarios --

func TestUnlockScenario(t *testing.T) {
	t.Run("without specialization", func(t *testing.T) {
		f := newFixture(t, skillgraphtest.ScenarioTree(nil), schemas.NewPlayerProgress(20, 2))
		f.echoSaves()

		// The root is unlocked by convention, so adv is available at once.
		assert.Equal(t, schemas.StatusUnlockable, f.ctrl.Status("adv"))
		assert.Equal(t, []string{"adv"}, f.ctrl.Available())

		got, err := f.ctrl.UnlockNode(context.Background(), "adv")
		require.NoError(t, err)

		want := schemas.PlayerProgress{
			Reputation:             10,
			SkillPointsAvailable:   1,
			UnlockedSkills:         []string{"adv"},
			SpecializationProgress: map[string]int{},
		}
		assert.Empty(t, cmp.Diff(want, got))
		assert.Empty(t, cmp.Diff(want, f.ctrl.Progress()))
		assert.Equal(t, schemas.StatusUnlocked, f.ctrl.Status("adv"))
		assert.Empty(t, f.ctrl.Available())
		f.store.AssertNumberOfCalls(t, "SaveProgress", 1)
	})

	t.Run("with specialization", func(t *testing.T) {
		f := newFixture(t, skillgraphtest.ScenarioTree(skillgraphtest.Spec("spec1")), schemas.NewPlayerProgress(20, 2))
		f.echoSaves()

		got, err := f.ctrl.UnlockNode(context.Background(), "adv")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"spec1": 1}, got.SpecializationProgress)

		info, err := f.ctrl.SelectNode("adv")
		require.NoError(t, err)
		assert.Equal(t, skillgraph.RankSpecialist, info.Rank)
	})

	t.Run("insufficient skill points", func(t *testing.T) {
		f := newFixture(t, skillgraphtest.ScenarioTree(nil), schemas.NewPlayerProgress(20, 0))
		before := f.ctrl.Progress()
		bonusesBefore := f.ctrl.Bonuses()

		_, err := f.ctrl.UnlockNode(context.Background(), "adv")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientResources)

		var insufficient *InsufficientResourcesError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, schemas.Cost{SkillPoints: 1}, insufficient.Shortfall())

		assert.Empty(t, cmp.Diff(before, f.ctrl.Progress()))
		assert.Equal(t, bonusesBefore, f.ctrl.Bonuses())
		f.store.AssertNotCalled(t, "SaveProgress", mock.Anything, mock.Anything)
	})
}

// -- Transaction validation --

func TestUnlockValidation(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	before := f.ctrl.Progress()

	_, err := f.ctrl.UnlockNode(context.Background(), "warp_drive")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = f.ctrl.UnlockNode(context.Background(), "dose_mastery")
	assert.ErrorIs(t, err, ErrNotUnlockable)
	var availability *AvailabilityError
	require.True(t, errors.As(err, &availability))
	assert.Equal(t, []string{"ct_recon", "tld_reader"}, availability.Missing)

	assert.Empty(t, cmp.Diff(before, f.ctrl.Progress()))
	f.store.AssertNotCalled(t, "SaveProgress", mock.Anything, mock.Anything)
}

func TestUnlockIsIdempotent(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	f.echoSaves()

	first, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	require.NoError(t, err)
	second, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
	assert.Equal(t, 90, second.Reputation)
	assert.Equal(t, []string{"dosimetry_basics"}, second.UnlockedSkills)
	f.store.AssertNumberOfCalls(t, "SaveProgress", 1)

	// The root is never charged for either.
	root, err := f.ctrl.UnlockNode(context.Background(), "core")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(second, root))
}

func TestUnlockRollsBackOnPersistenceFailure(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	saveErr := errors.New("connection reset by peer")
	f.store.On("SaveProgress", mock.Anything, mock.Anything).Return(nil, saveErr).Once()

	before := f.ctrl.Progress()
	bonusesBefore := f.ctrl.Bonuses()

	_, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	require.Error(t, err)
	var persistence *PersistenceError
	require.True(t, errors.As(err, &persistence))
	assert.Equal(t, "dosimetry_basics", persistence.NodeID)
	assert.ErrorIs(t, err, saveErr)

	assert.Empty(t, cmp.Diff(before, f.ctrl.Progress()))
	assert.Equal(t, bonusesBefore, f.ctrl.Bonuses())
	assert.Equal(t, schemas.StatusUnlockable, f.ctrl.Status("dosimetry_basics"))
	_, updates := f.renderer.Counts()
	assert.Zero(t, updates)

	// A retry after the failure succeeds.
	f.echoSaves()
	got, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	require.NoError(t, err)
	assert.Equal(t, 90, got.Reputation)
}

func TestUnlockAdoptsServerState(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	serverState := schemas.PlayerProgress{
		Reputation:             95, // server granted a discount
		SkillPointsAvailable:   4,
		UnlockedSkills:         []string{"dosimetry_basics"},
		SpecializationProgress: map[string]int{"dosimetry": 1},
	}
	f.store.On("SaveProgress", mock.Anything, mock.Anything).Return(serverState, nil)

	got, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	require.NoError(t, err)
	assert.Equal(t, 95, got.Reputation)
	assert.Empty(t, cmp.Diff(serverState, f.ctrl.Progress()))
	assert.Equal(t, schemas.StatusUnlocked, f.ctrl.Status("dosimetry_basics"))
}

func TestUnlockedStatusIgnoresEffects(t *testing.T) {
	data := skillgraphtest.PhysicsTree()
	for i := range data.Nodes {
		if data.Nodes[i].ID == "imaging_basics" {
			data.Nodes[i].Effects = nil
		}
	}
	f := newFixture(t, data, schemas.NewPlayerProgress(100, 5))
	f.echoSaves()

	for _, id := range []string{"dosimetry_basics", "imaging_basics"} {
		_, err := f.ctrl.UnlockNode(context.Background(), id)
		require.NoError(t, err, id)
	}

	statuses := f.ctrl.Statuses()
	assert.Equal(t, schemas.StatusUnlocked, statuses["dosimetry_basics"])
	assert.Equal(t, schemas.StatusUnlocked, statuses["imaging_basics"])
	assert.Equal(t, schemas.StatusUnlocked, statuses["core"])
	assert.Equal(t, schemas.StatusUnlocked, f.ctrl.Status("imaging_basics"))
}

// -- Concurrency --

func blockingSave(store *mocks.MockProgressStore, entered chan<- struct{}, release <-chan struct{}) {
	store.On("SaveProgress", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			entered <- struct{}{}
			<-release
		}).
		Return(nil, nil).Once()
}

func TestConcurrentUnlockIsRejected(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	entered, release := make(chan struct{}, 1), make(chan struct{})
	blockingSave(f.store, entered, release)

	var (
		wg        sync.WaitGroup
		firstErr  error
		firstProg schemas.PlayerProgress
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstProg, firstErr = f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	}()
	<-entered

	// Same node and a different node are both rejected while the first is pending.
	_, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	assert.ErrorIs(t, err, ErrUnlockInFlight)
	_, err = f.ctrl.UnlockNode(context.Background(), "imaging_basics")
	assert.ErrorIs(t, err, ErrUnlockInFlight)

	// Readers observe the optimistic state while the save is outstanding.
	assert.Equal(t, 90, f.ctrl.Progress().Reputation)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 90, firstProg.Reputation)
	assert.Equal(t, 4, firstProg.SkillPointsAvailable)
	f.store.AssertNumberOfCalls(t, "SaveProgress", 1)
}

func TestResetDiscardsLateResult(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	entered, release := make(chan struct{}, 1), make(chan struct{})
	blockingSave(f.store, entered, release)

	var (
		wg      sync.WaitGroup
		lateErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, lateErr = f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
	}()
	<-entered

	fresh := schemas.NewPlayerProgress(5, 1)
	require.NoError(t, f.ctrl.Reset(fresh))
	close(release)
	wg.Wait()

	assert.ErrorIs(t, lateErr, ErrSessionReset)
	assert.Empty(t, cmp.Diff(fresh, f.ctrl.Progress()))
	assert.Equal(t, schemas.StatusUnlockable, f.ctrl.Status("dosimetry_basics"))
	assert.Len(t, f.ctrl.ActiveEffects(), 1, "only the root's effect survives the reset")
}

func TestUnlockHonoursContextCancellation(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := f.ctrl.Progress()
	_, err := f.ctrl.UnlockNode(ctx, "dosimetry_basics")
	var persistence *PersistenceError
	require.True(t, errors.As(err, &persistence))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, cmp.Diff(before, f.ctrl.Progress()))
}

// -- Properties --

func TestRandomUnlockSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree()).IDs()

	for run := 0; run < 20; run++ {
		f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(rng.Intn(120), rng.Intn(6)))
		f.echoSaves()

		for step := 0; step < 30; step++ {
			id := ids[rng.Intn(len(ids))]
			beforeStatus := f.ctrl.Statuses()
			before := f.ctrl.Progress()

			got, err := f.ctrl.UnlockNode(context.Background(), id)
			after := f.ctrl.Progress()
			if err != nil {
				assert.Empty(t, cmp.Diff(before, after), "failed unlock of %s mutated state", id)
				continue
			}

			assert.GreaterOrEqual(t, got.Reputation, 0)
			assert.GreaterOrEqual(t, got.SkillPointsAvailable, 0)

			seen := map[string]bool{}
			for _, u := range got.UnlockedSkills {
				assert.False(t, seen[u], "%s listed twice", u)
				seen[u] = true
			}

			afterStatus := f.ctrl.Statuses()
			for node, st := range beforeStatus {
				if st != schemas.StatusLocked {
					assert.NotEqual(t, schemas.StatusLocked, afterStatus[node], "%s regressed after unlocking %s", node, id)
				}
			}
		}
	}
}

// -- Loading --

func TestLoadFromSources(t *testing.T) {
	t.Run("fetches tree and progress", func(t *testing.T) {
		source := new(mocks.MockTreeSource)
		source.On("FetchTree", mock.Anything).Return(skillgraphtest.PhysicsTree(), nil)
		store := new(mocks.MockProgressStore)
		progress := schemas.PlayerProgress{
			Reputation: 40, SkillPointsAvailable: 2,
			UnlockedSkills:         []string{"dosimetry_basics"},
			SpecializationProgress: map[string]int{"dosimetry": 1},
		}
		store.On("LoadProgress", mock.Anything).Return(progress, nil)
		renderer := &mocks.RecordingRenderer{}

		ctrl := New(nil, nil, store,
			WithLogger(zaptest.NewLogger(t)),
			WithTreeSource(source, skillgraph.Options{}),
			WithRenderer(renderer))
		require.NoError(t, ctrl.Load(context.Background()))

		require.NotNil(t, ctrl.Graph())
		assert.Equal(t, "2026.1", ctrl.Graph().Version())
		assert.Equal(t, []string{"imaging_basics", "tld_reader"}, ctrl.Available())
		assert.InDelta(t, 1.2, ctrl.Bonuses().InsightGain, 1e-9)
		assert.Equal(t, 1.0, ctrl.Bonuses().InsightGainFlat, "root effects are always active")

		loads, _ := renderer.Counts()
		require.Equal(t, 1, loads)
		assert.Equal(t, []string{"core", "dosimetry_basics"}, renderer.Loads[0].Unlocked)
		assert.Equal(t, []string{"imaging_basics", "tld_reader"}, renderer.Loads[0].Available)
		assert.Len(t, renderer.Tree.Nodes, 7)
	})

	t.Run("falls back to the cached tree", func(t *testing.T) {
		broken := skillgraphtest.PhysicsTree()
		broken.Nodes[0].Connections = append(broken.Nodes[0].Connections, "missing")
		source := new(mocks.MockTreeSource)
		source.On("FetchTree", mock.Anything).Return(broken, nil)
		store := new(mocks.MockProgressStore)
		store.On("LoadProgress", mock.Anything).Return(schemas.NewPlayerProgress(0, 0), nil)

		ctrl := New(nil, nil, store,
			WithLogger(zaptest.NewLogger(t)),
			WithTreeSource(source, skillgraph.Options{}),
			WithFallbackTree(skillgraphtest.ScenarioTree(nil)))
		require.NoError(t, ctrl.Load(context.Background()))
		assert.Equal(t, "scenario-1", ctrl.Graph().Version())
	})

	t.Run("fails closed without a fallback", func(t *testing.T) {
		source := new(mocks.MockTreeSource)
		source.On("FetchTree", mock.Anything).Return(nil, errors.New("503 service unavailable"))
		store := new(mocks.MockProgressStore)
		store.On("LoadProgress", mock.Anything).Return(schemas.NewPlayerProgress(0, 0), nil).Maybe()

		ctrl := New(nil, nil, store, WithLogger(zaptest.NewLogger(t)), WithTreeSource(source, skillgraph.Options{}))
		err := ctrl.Load(context.Background())
		require.Error(t, err)
		assert.Nil(t, ctrl.Graph())
		_, err = ctrl.UnlockNode(context.Background(), "core")
		assert.ErrorIs(t, err, ErrNoTree)
	})

	t.Run("no tree at all", func(t *testing.T) {
		store := new(mocks.MockProgressStore)
		store.On("LoadProgress", mock.Anything).Return(schemas.NewPlayerProgress(0, 0), nil).Maybe()
		ctrl := New(nil, nil, store)
		assert.ErrorIs(t, ctrl.Load(context.Background()), ErrNoTree)
	})
}

func TestProgressCache(t *testing.T) {
	t.Run("used when the progress load fails", func(t *testing.T) {
		store := new(mocks.MockProgressStore)
		store.On("LoadProgress", mock.Anything).Return(nil, errors.New("offline"))
		cache := new(mocks.MockProgressCache)
		cached := schemas.NewPlayerProgress(33, 3)
		cache.On("Get", mock.Anything, "skill-progress").Return(cached, true, nil)

		ctrl := New(skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree()), nil, store,
			WithLogger(zaptest.NewLogger(t)), WithCache(cache, "skill-progress"))
		require.NoError(t, ctrl.Load(context.Background()))
		assert.Equal(t, 33, ctrl.Progress().Reputation)
	})

	t.Run("miss surfaces the load error", func(t *testing.T) {
		store := new(mocks.MockProgressStore)
		store.On("LoadProgress", mock.Anything).Return(nil, errors.New("offline"))
		cache := new(mocks.MockProgressCache)
		cache.On("Get", mock.Anything, "k").Return(nil, false, nil)

		ctrl := New(skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree()), nil, store,
			WithLogger(zaptest.NewLogger(t)), WithCache(cache, "k"))
		err := ctrl.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "offline")
	})

	t.Run("written after a successful unlock", func(t *testing.T) {
		cache := new(mocks.MockProgressCache)
		cache.On("Put", mock.Anything, "k", mock.MatchedBy(func(p schemas.PlayerProgress) bool {
			return p.HasUnlocked("dosimetry_basics")
		})).Return(nil).Once()

		f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5), WithCache(cache, "k"))
		f.echoSaves()
		_, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})

	t.Run("write failures are not fatal", func(t *testing.T) {
		cache := new(mocks.MockProgressCache)
		cache.On("Put", mock.Anything, "k", mock.Anything).Return(errors.New("disk full"))

		f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5), WithCache(cache, "k"))
		f.echoSaves()
		_, err := f.ctrl.UnlockNode(context.Background(), "dosimetry_basics")
		assert.NoError(t, err)
	})
}

// -- Queries and render pushes --

func TestSelectNode(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(15, 1))

	info, err := f.ctrl.SelectNode("tld_reader")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusLocked, info.Status)
	assert.Equal(t, []string{"dosimetry_basics"}, info.Prerequisites)
	assert.Equal(t, []string{"dosimetry_basics"}, info.MissingPrerequisites)
	assert.False(t, info.Affordable)
	assert.Equal(t, schemas.Cost{Reputation: 5}, info.Shortfall)

	info, err = f.ctrl.SelectNode("dosimetry_basics")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusUnlockable, info.Status)
	assert.True(t, info.Affordable)
	assert.Equal(t, []string{"dosimetry_basics", "imaging_basics"}, f.ctrl.Affordable())

	_, err = f.ctrl.SelectNode("nope")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRenderUpdatesAfterUnlock(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	f.echoSaves()

	_, err := f.ctrl.UnlockNode(context.Background(), "imaging_basics")
	require.NoError(t, err)

	last, ok := f.renderer.LastUpdate()
	require.True(t, ok)
	assert.Equal(t, []string{"core", "imaging_basics"}, last.Unlocked)
	assert.Equal(t, []string{"ct_recon", "dosimetry_basics", "mri_safety"}, last.Available)

	// Mutating a pushed slice cannot reach back into the controller.
	last.Unlocked[0] = "tampered"
	assert.Equal(t, schemas.StatusUnlocked, f.ctrl.Status("core"))

	late := &mocks.RecordingRenderer{}
	f.ctrl.AddRenderer(late)
	loads, _ := late.Counts()
	assert.Equal(t, 1, loads)
}

func TestBonusReadAPI(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(100, 5))
	f.echoSaves()
	for _, id := range []string{"dosimetry_basics", "tld_reader"} {
		_, err := f.ctrl.UnlockNode(context.Background(), id)
		require.NoError(t, err)
	}

	v, err := f.ctrl.Bonus(schemas.BonusInsightGain, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, v.(float64), 1e-9)

	v, err = f.ctrl.Bonus(schemas.BonusInsightGain, condition.Context{"question": map[string]any{"category": "dosimetry"}})
	require.NoError(t, err)
	assert.InDelta(t, 1.8, v.(float64), 1e-9)

	_, err = f.ctrl.Bonus("nonsense", nil)
	assert.Error(t, err)
}

func TestSessionID(t *testing.T) {
	a := New(nil, nil, new(mocks.MockProgressStore))
	b := New(nil, nil, new(mocks.MockProgressStore))
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestConcurrentReaders(t *testing.T) {
	f := newFixture(t, skillgraphtest.PhysicsTree(), schemas.NewPlayerProgress(1000, 50))
	f.echoSaves()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = f.ctrl.Statuses()
				_ = f.ctrl.Bonuses()
				_ = f.ctrl.Progress()
			}
		}()
	}
	for _, id := range f.ctrl.Graph().TopoOrder() {
		for {
			_, err := f.ctrl.UnlockNode(ctx, id)
			if !errors.Is(err, ErrUnlockInFlight) {
				require.NoError(t, err)
				break
			}
		}
	}
	wg.Wait()
	assert.Len(t, f.ctrl.Progress().UnlockedSkills, 6)
}
