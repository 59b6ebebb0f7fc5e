package skillgraph_test

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/skillgraph/skillgraphtest"
)

func node(id string, tier int, connections ...string) schemas.SkillNode {
	return schemas.SkillNode{ID: id, Name: id, Tier: tier, Connections: connections}
}

func tree(nodes ...schemas.SkillNode) schemas.SkillTreeData {
	return schemas.SkillTreeData{TreeVersion: "test", Nodes: nodes}
}

func codes(issues []skillgraph.Issue) []skillgraph.Code {
	out := make([]skillgraph.Code, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestLoadValidTree(t *testing.T) {
	g, report, err := skillgraph.Load(skillgraphtest.PhysicsTree(), skillgraph.Options{})
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.True(t, report.Valid())
	assert.Empty(t, report.Warnings)

	assert.Equal(t, "2026.1", g.Version())
	assert.Equal(t, "core", g.Root())
	assert.Equal(t, 7, g.Len())
	assert.Equal(t, []string{"ct_recon", "tld_reader"}, g.Prerequisites("dose_mastery"))
	assert.Equal(t, []string{"core"}, g.Prerequisites("imaging_basics"))
	assert.Empty(t, g.Prerequisites("core"))
	assert.Equal(t, []string{"ct_recon", "mri_safety"}, g.Dependents("imaging_basics"))

	tier, err := g.TierOf("tld_reader")
	require.NoError(t, err)
	assert.Equal(t, 2, tier)
	_, err = g.TierOf("nope")
	assert.ErrorIs(t, err, skillgraph.ErrUnknownNode)

	depth, err := g.DepthOf("dose_mastery")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	spec, ok := g.Specialization("imaging")
	require.True(t, ok)
	assert.Equal(t, "#2980B9", spec.Color)
	assert.Len(t, g.Specializations(), 2)
}

func TestLoadDoesNotAliasInput(t *testing.T) {
	data := skillgraphtest.PhysicsTree()
	g := skillgraphtest.MustLoad(t, data)

	data.Nodes[0].Name = "mutated"
	data.Nodes[0].Connections[0] = "mutated"
	n, ok := g.Node("core")
	require.True(t, ok)
	assert.Equal(t, "Foundations of Medical Physics", n.Name)
	assert.Equal(t, "dosimetry_basics", n.Connections[0])

	n.Connections[0] = "mutated again"
	again, _ := g.Node("core")
	assert.Equal(t, "dosimetry_basics", again.Connections[0])
}

func TestTopoOrder(t *testing.T) {
	g := skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree())
	order := g.TopoOrder()
	require.Len(t, order, g.Len())

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range order {
		for _, p := range g.Prerequisites(id) {
			assert.Less(t, pos[p], pos[id], "%s must come before %s", p, id)
		}
	}
	assert.Equal(t, "core", order[0])
}

func TestLoadCycleFailsClosed(t *testing.T) {
	data := tree(
		node("core", 0, "a"),
		node("a", 1, "b"),
		node("b", 2, "c"),
		node("c", 3, "a"),
	)
	g, report, err := skillgraph.Load(data, skillgraph.Options{})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, skillgraph.ErrInvalidTree)
	assert.ErrorIs(t, err, skillgraph.ErrCycleDetected)
	assert.Contains(t, codes(report.Errors), skillgraph.CodeCycle)
	assert.Contains(t, err.Error(), "a, b, c")
}

func TestLoadStructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     schemas.SkillTreeData
		code     skillgraph.Code
		sentinel error
		suggest  string
	}{
		{
			name:     "dangling connection",
			data:     tree(node("core", 0, "advanced"), node("advance", 1)),
			code:     skillgraph.CodeDanglingConnection,
			sentinel: skillgraph.ErrDanglingReference,
			suggest:  "advance",
		},
		{
			name:     "duplicate node id",
			data:     tree(node("core", 0, "a"), node("a", 1), node("a", 1)),
			code:     skillgraph.CodeDuplicateID,
			sentinel: skillgraph.ErrDuplicateID,
		},
		{
			name: "self loop",
			data: tree(node("core", 0, "a"), node("a", 1, "a")),
			code: skillgraph.CodeSelfLoop,
		},
		{
			name: "missing id",
			data: tree(node("core", 0), node("", 1)),
			code: skillgraph.CodeMissingField,
		},
		{
			name: "missing name",
			data: tree(node("core", 0, "a"), schemas.SkillNode{ID: "a", Tier: 1}),
			code: skillgraph.CodeMissingField,
		},
		{
			name: "negative cost",
			data: tree(node("core", 0, "a"), schemas.SkillNode{ID: "a", Name: "a", Tier: 1, Cost: schemas.Cost{Reputation: -1}}),
			code: skillgraph.CodeInvalidValue,
		},
		{
			name: "negative tier",
			data: tree(node("core", 0, "a"), node("a", -1)),
			code: skillgraph.CodeInvalidValue,
		},
		{
			name: "bad visual size",
			data: tree(node("core", 0, "a"), schemas.SkillNode{ID: "a", Name: "a", Tier: 1, Visual: schemas.Visual{Size: "huge"}}),
			code: skillgraph.CodeInvalidValue,
		},
		{
			name:    "missing root",
			data:    tree(node("cores", 0)),
			code:    skillgraph.CodeMissingRoot,
			suggest: "cores",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, report, err := skillgraph.Load(tt.data, skillgraph.Options{})
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, skillgraph.ErrInvalidTree)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			require.Contains(t, codes(report.Errors), tt.code)
			if tt.suggest != "" {
				var found bool
				for _, issue := range report.Errors {
					if issue.Code == tt.code {
						assert.Equal(t, tt.suggest, issue.Suggestion)
						found = true
					}
				}
				assert.True(t, found)
			}
		})
	}
}

func TestLoadSpecializationChecks(t *testing.T) {
	data := skillgraphtest.ScenarioTree(skillgraphtest.Spec("spec2"))
	data.Specializations = append(data.Specializations,
		schemas.Specialization{ID: "imaging", Name: "Imaging", Color: "blue"},
		schemas.Specialization{ID: "spec1", Name: "Again", Color: "#000000"},
	)

	_, report, err := skillgraph.Load(data, skillgraph.Options{})
	require.Error(t, err)

	got := codes(report.Errors)
	assert.Contains(t, got, skillgraph.CodeUnknownSpec)
	assert.Contains(t, got, skillgraph.CodeInvalidColor)
	assert.Contains(t, got, skillgraph.CodeDuplicateID)
	for _, issue := range report.Errors {
		if issue.Code == skillgraph.CodeUnknownSpec {
			assert.Equal(t, "spec1", issue.Suggestion)
		}
	}
}

func TestLoadTopLevelConnections(t *testing.T) {
	t.Run("consistent array is accepted", func(t *testing.T) {
		data := skillgraphtest.ScenarioTree(nil)
		data.Connections = []schemas.Connection{{Source: "core", Target: "adv"}}
		_, _, err := skillgraph.Load(data, skillgraph.Options{})
		assert.NoError(t, err)
	})

	t.Run("edge missing from node connections", func(t *testing.T) {
		data := skillgraphtest.ScenarioTree(nil)
		data.Connections = []schemas.Connection{{Source: "core", Target: "adv"}, {Source: "adv", Target: "core"}}
		_, report, err := skillgraph.Load(data, skillgraph.Options{})
		require.Error(t, err)
		assert.Contains(t, codes(report.Errors), skillgraph.CodeConnectionMismatch)
	})

	t.Run("node edge missing from array", func(t *testing.T) {
		data := skillgraphtest.PhysicsTree()
		data.Connections = []schemas.Connection{{Source: "core", Target: "dosimetry_basics"}}
		_, report, err := skillgraph.Load(data, skillgraph.Options{})
		require.Error(t, err)
		assert.Contains(t, codes(report.Errors), skillgraph.CodeConnectionMismatch)
	})

	t.Run("array with unknown ids", func(t *testing.T) {
		data := skillgraphtest.ScenarioTree(nil)
		data.Connections = []schemas.Connection{{Source: "core", Target: "adv"}, {Source: "ghost", Target: "adv"}}
		_, report, err := skillgraph.Load(data, skillgraph.Options{})
		require.Error(t, err)
		assert.Contains(t, codes(report.Errors), skillgraph.CodeDanglingConnection)
	})
}

func TestLoadWarningsDoNotBlock(t *testing.T) {
	data := tree(
		node("core", 0, "a", "a"),
		schemas.SkillNode{ID: "a", Name: "a", Tier: 1, Position: schemas.Position{X: 10, Y: 10},
			Cost: schemas.Cost{Reputation: 900, SkillPoints: 20}},
		schemas.SkillNode{ID: "lonely", Name: "lonely", Tier: 1, Position: schemas.Position{X: 10, Y: 10},
			Effects: []schemas.Effect{
				{Type: "telepathy", Value: schemas.Number(1)},
				{Type: schemas.EffectInsightGainFlat, Value: schemas.Number(1), Condition: "question.category ="},
			}},
	)
	data.TreeVersion = ""

	core, logs := observer.New(zapcore.WarnLevel)
	opts := skillgraph.NewOptions(config.TreeConfig{RootNodeID: "core", MaxReputationCost: 500, MaxSkillPointCost: 10}, zap.New(core))

	g, report, err := skillgraph.Load(data, opts)
	require.NoError(t, err)
	require.NotNil(t, g)

	got := codes(report.Warnings)
	for _, want := range []skillgraph.Code{
		skillgraph.CodeOrphan,
		skillgraph.CodeDuplicatePosition,
		skillgraph.CodeExcessiveCost,
		skillgraph.CodeDuplicateEdge,
		skillgraph.CodeUnknownEffect,
		skillgraph.CodeMalformedCondition,
		skillgraph.CodeMissingVersion,
	} {
		assert.Contains(t, got, want)
	}
	assert.Equal(t, len(report.Warnings), logs.FilterMessage("Skill tree validation warning.").Len())
	assert.Equal(t, []string{"core"}, g.Prerequisites("a"), "duplicate edges collapse")
}

func TestTierOrderWarning(t *testing.T) {
	report := skillgraph.Validate(tree(node("core", 0, "a"), node("a", 0)), skillgraph.Options{})
	assert.True(t, report.Valid())
	assert.True(t, report.HasCode(skillgraph.CodeTierOrder))
}

func TestCustomRoot(t *testing.T) {
	data := tree(node("foundations", 0, "a"), node("a", 1))
	_, _, err := skillgraph.Load(data, skillgraph.Options{})
	require.Error(t, err, "the default root does not exist")

	g, _, err := skillgraph.Load(data, skillgraph.Options{RootNodeID: "foundations"})
	require.NoError(t, err)
	assert.Equal(t, "foundations", g.Root())
}

func TestReportErr(t *testing.T) {
	report := skillgraph.Validate(tree(node("core", 0, "x")), skillgraph.Options{})
	err := report.Err()
	require.Error(t, err)

	var issue skillgraph.Issue
	require.True(t, errors.As(err, &issue))
	assert.Equal(t, skillgraph.CodeDanglingConnection, issue.Code)
	assert.Contains(t, issue.Error(), "dangling_connection [core]")
}

func TestDataRoundTrip(t *testing.T) {
	g := skillgraphtest.MustLoad(t, skillgraphtest.PhysicsTree())
	data := g.Data()
	assert.Len(t, data.Nodes, 7)
	assert.Len(t, data.Connections, 7)

	again, _, err := skillgraph.Load(data, skillgraph.Options{})
	require.NoError(t, err)
	assert.Equal(t, g.TopoOrder(), again.TopoOrder())
}

func FuzzLoad(f *testing.F) {
	f.Add([]byte("core"))
	f.Add([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a})
	f.Fuzz(func(t *testing.T, data []byte) {
		fc := fuzz.NewConsumer(data)
		doc := schemas.SkillTreeData{}
		if err := fc.GenerateStruct(&doc); err != nil {
			return
		}
		g, report, err := skillgraph.Load(doc, skillgraph.Options{})
		require.NotNil(t, report)
		if err != nil {
			assert.Nil(t, g)
			assert.False(t, report.Valid())
			return
		}
		// A loaded graph always has a complete topological order.
		assert.Len(t, g.TopoOrder(), g.Len())
	})
}
