// Package skillgraphtest provides skill tree fixtures for tests in other
// packages.
package skillgraphtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
)

// Spec returns a pointer suitable for SkillNode.Specialization.
func Spec(id string) *string { return &id }

// ScenarioTree is the two node tree: core unlocks adv.
func ScenarioTree(advSpec *string) schemas.SkillTreeData {
	return schemas.SkillTreeData{
		TreeVersion: "scenario-1",
		Specializations: []schemas.Specialization{
			{ID: "spec1", Name: "Dosimetry", Color: "#3A7BD5", Threshold: 1, MasteryThreshold: 2},
		},
		Nodes: []schemas.SkillNode{
			{
				ID: "core", Name: "Core Physics", Tier: 0,
				Connections: []string{"adv"},
				Visual:      schemas.Visual{Size: schemas.NodeSizeCore, Icon: "atom"},
			},
			{
				ID: "adv", Name: "Advanced Dosimetry", Tier: 1,
				Specialization: advSpec,
				Cost:           schemas.Cost{Reputation: 10, SkillPoints: 1},
				Effects: []schemas.Effect{
					{Type: schemas.EffectInsightGainMultiplier, Value: schemas.Number(1.2)},
				},
				Visual: schemas.Visual{Size: schemas.NodeSizeMajor, Icon: "dose"},
			},
		},
	}
}

// PhysicsTree is a small but complete tree with two specializations, a
// diamond dependency and conditional effects.
//
//	core -> dosimetry_basics -> tld_reader -> dose_mastery
//	core -> imaging_basics   -> ct_recon   -> dose_mastery
//	imaging_basics -> mri_safety
func PhysicsTree() schemas.SkillTreeData {
	return schemas.SkillTreeData{
		TreeVersion: "2026.1",
		Specializations: []schemas.Specialization{
			{ID: "dosimetry", Name: "Dosimetry", Description: "Measuring absorbed dose.", Color: "#E67E22", Threshold: 2, MasteryThreshold: 3},
			{ID: "imaging", Name: "Imaging", Description: "Seeing inside patients.", Color: "#2980B9", Threshold: 2, MasteryThreshold: 3},
		},
		Nodes: []schemas.SkillNode{
			{
				ID: "core", Name: "Foundations of Medical Physics", Tier: 0,
				Connections: []string{"dosimetry_basics", "imaging_basics"},
				Effects:     []schemas.Effect{{Type: schemas.EffectInsightGainFlat, Value: schemas.Number(1)}},
				Visual:      schemas.Visual{Size: schemas.NodeSizeCore, Icon: "atom"},
			},
			{
				ID: "dosimetry_basics", Name: "Dosimetry Basics", Tier: 1, Specialization: Spec("dosimetry"),
				Connections: []string{"tld_reader"},
				Cost:        schemas.Cost{Reputation: 10, SkillPoints: 1},
				Effects:     []schemas.Effect{{Type: schemas.EffectInsightGainMultiplier, Value: schemas.Number(1.2)}},
				Visual:      schemas.Visual{Size: schemas.NodeSizeMajor, Icon: "dose"},
			},
			{
				ID: "imaging_basics", Name: "Imaging Basics", Tier: 1, Specialization: Spec("imaging"),
				Connections: []string{"ct_recon", "mri_safety"},
				Cost:        schemas.Cost{Reputation: 10, SkillPoints: 1},
				Effects:     []schemas.Effect{{Type: schemas.EffectRevealParameter, Value: schemas.Number(1)}},
				Visual:      schemas.Visual{Size: schemas.NodeSizeMajor, Icon: "scan"},
			},
			{
				ID: "tld_reader", Name: "TLD Reader", Tier: 2, Specialization: Spec("dosimetry"),
				Connections: []string{"dose_mastery"},
				Cost:        schemas.Cost{Reputation: 20, SkillPoints: 1},
				Effects: []schemas.Effect{{
					Type: schemas.EffectInsightGainMultiplier, Value: schemas.Number(1.5),
					Condition: "question.category == 'dosimetry'",
				}},
				Visual: schemas.Visual{Size: schemas.NodeSizeMinor, Icon: "chip"},
			},
			{
				ID: "ct_recon", Name: "CT Reconstruction", Tier: 2, Specialization: Spec("imaging"),
				Connections: []string{"dose_mastery"},
				Cost:        schemas.Cost{Reputation: 20, SkillPoints: 1},
				Effects:     []schemas.Effect{{Type: schemas.EffectEquipmentCostReduction, Value: schemas.Number(0.2)}},
				Visual:      schemas.Visual{Size: schemas.NodeSizeMinor, Icon: "ct"},
			},
			{
				ID: "mri_safety", Name: "MRI Safety", Tier: 2, Specialization: Spec("imaging"),
				Cost:    schemas.Cost{Reputation: 15, SkillPoints: 1},
				Effects: []schemas.Effect{{Type: schemas.EffectRecallSimilarQuestions, Value: schemas.Bool(true)}},
				Visual:  schemas.Visual{Size: schemas.NodeSizeMinor, Icon: "magnet"},
			},
			{
				ID: "dose_mastery", Name: "Dose Mastery", Tier: 3,
				Cost:    schemas.Cost{Reputation: 50, SkillPoints: 2},
				Effects: []schemas.Effect{{Type: schemas.EffectAutoSolveChance, Value: schemas.Number(0.1)}},
				Visual:  schemas.Visual{Size: schemas.NodeSizeMajor, Icon: "crown"},
			},
		},
	}
}

// MustLoad loads data with default options and fails the test on error.
func MustLoad(t testing.TB, data schemas.SkillTreeData) *skillgraph.Graph {
	t.Helper()
	g, _, err := skillgraph.Load(data, skillgraph.Options{})
	require.NoError(t, err)
	return g
}
