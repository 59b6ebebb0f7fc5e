package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/skillgraph/skillgraphtest"
)

func TestCompute_Tiered(t *testing.T) {
	g := skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree())

	positions, err := Compute(g, Options{})
	require.NoError(t, err)

	expected := map[string]schemas.Position{
		"core":             {X: 0, Y: 0},
		"dosimetry_basics": {X: -70, Y: 120},
		"imaging_basics":   {X: 70, Y: 120},
		"tld_reader":       {X: -140, Y: 240},
		"ct_recon":         {X: 0, Y: 240},
		"mri_safety":       {X: 140, Y: 240},
		"dose_mastery":     {X: 0, Y: 360},
	}
	assert.Equal(t, expected, positions)
}

func TestCompute_Radial(t *testing.T) {
	g := skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree())

	positions, err := Compute(g, Options{Mode: Radial, TierSpacing: 100})
	require.NoError(t, err)

	assert.Equal(t, schemas.Position{X: 0, Y: 0}, positions["core"])
	assert.Equal(t, schemas.Position{X: 0, Y: -100}, positions["dosimetry_basics"])
	assert.Equal(t, schemas.Position{X: 0, Y: 100}, positions["imaging_basics"])
	// Third ring, first node at twelve o'clock.
	assert.Equal(t, schemas.Position{X: 0, Y: -200}, positions["tld_reader"])
	assert.Equal(t, schemas.Position{X: 0, Y: -300}, positions["dose_mastery"])
}

func TestCompute_DerivedTiers(t *testing.T) {
	data := skillgraphtest.PhysicsTree()
	// Authored tiers that disagree with the structure are corrected by DerivedTiers.
	for i := range data.Nodes {
		if data.Nodes[i].ID == "dose_mastery" {
			data.Nodes[i].Tier = 9
		}
	}
	g, _, err := skillgraph.Load(data, skillgraph.Options{})
	require.NoError(t, err)

	authored, err := Compute(g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 9*DefaultTierSpacing, authored["dose_mastery"].Y)

	derived, err := Compute(g, Options{Tiers: DerivedTiers})
	require.NoError(t, err)
	assert.Equal(t, 3*DefaultTierSpacing, derived["dose_mastery"].Y)
}

func TestCompute_RejectsUnknownOptions(t *testing.T) {
	g := skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree())

	_, err := Compute(g, Options{Mode: "spiral"})
	assert.ErrorContains(t, err, `unknown mode "spiral"`)

	_, err = Compute(g, Options{Tiers: "guessed"})
	assert.ErrorContains(t, err, `unknown tier source "guessed"`)
}

func TestFromPrerequisites(t *testing.T) {
	positions, err := FromPrerequisites(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}, Options{NodeSpacing: 10, TierSpacing: 10})
	require.NoError(t, err)

	assert.Equal(t, schemas.Position{X: 0, Y: 0}, positions["a"])
	assert.Equal(t, schemas.Position{X: -5, Y: 10}, positions["b"])
	assert.Equal(t, schemas.Position{X: 5, Y: 10}, positions["c"])
	assert.Equal(t, schemas.Position{X: 0, Y: 20}, positions["d"])
}

func TestFromPrerequisites_Cycle(t *testing.T) {
	_, err := FromPrerequisites(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, skillgraph.ErrCycleDetected)
}

func TestApply(t *testing.T) {
	data := skillgraphtest.PhysicsTree()
	out := Apply(data, map[string]schemas.Position{"core": {X: 3, Y: 4}})

	for _, n := range out.Nodes {
		if n.ID == "core" {
			assert.Equal(t, schemas.Position{X: 3, Y: 4}, n.Position)
		}
	}
	assert.Equal(t, schemas.Position{}, data.Nodes[0].Position, "input must not be modified")
}

func TestBounds(t *testing.T) {
	assert.Equal(t, Rect{}, Bounds(nil))

	r := Bounds(map[string]schemas.Position{
		"a": {X: -10, Y: 5},
		"b": {X: 30, Y: -15},
	})
	assert.Equal(t, Rect{X: -10, Y: -15, Width: 40, Height: 20}, r)
	assert.Equal(t, Rect{X: -20, Y: -25, Width: 60, Height: 40}, r.ExpandedBy(10))
}

func TestForTree_MatchesCompute(t *testing.T) {
	data := skillgraphtest.PhysicsTree()
	g := skillgraphtest.MustLoad(t, data)

	for _, opts := range []Options{{}, {Mode: Radial}, {Tiers: DerivedTiers}} {
		fromGraph, err := Compute(g, opts)
		require.NoError(t, err)
		fromTree, err := ForTree(data, opts)
		require.NoError(t, err)
		assert.Equal(t, fromGraph, fromTree, "options %+v", opts)
	}
}

func TestForTree_DanglingConnection(t *testing.T) {
	data := skillgraphtest.PhysicsTree()
	data.Nodes[0].Connections = append(data.Nodes[0].Connections, "nowhere")

	_, err := ForTree(data, Options{Tiers: DerivedTiers})
	assert.ErrorIs(t, err, skillgraph.ErrUnknownNode)
}
