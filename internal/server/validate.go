package server

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
)

// ErrInvalidProgress is wrapped by every rejection from Reconcile.
var ErrInvalidProgress = errors.New("invalid progress")

// Reconcile checks a submitted record against the graph and the player's
// stored record and returns the record the server will store.
//
// The submission is trusted only for which skills are unlocked. Currencies
// are recomputed from the stored record minus the cost of newly unlocked
// skills, and specialization counts are derived from the unlocked set.
func Reconcile(g *skillgraph.Graph, stored, submitted schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	if submitted.Reputation < 0 || submitted.SkillPointsAvailable < 0 {
		return schemas.PlayerProgress{}, fmt.Errorf("%w: currencies must not be negative", ErrInvalidProgress)
	}

	unlocked := make(map[string]bool, len(submitted.UnlockedSkills))
	for _, id := range submitted.UnlockedSkills {
		if !g.Has(id) {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: unknown skill %q", ErrInvalidProgress, id)
		}
		if unlocked[id] {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: skill %q listed twice", ErrInvalidProgress, id)
		}
		unlocked[id] = true
	}

	for _, id := range submitted.UnlockedSkills {
		if missing := g.MissingPrerequisites(id, unlocked); len(missing) > 0 {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: skill %q is missing prerequisites %v", ErrInvalidProgress, id, missing)
		}
	}

	// Replay the new unlocks in topological order: each must be unlockable
	// from what was stored plus the unlocks before it. This rejects nodes
	// with no prerequisites, which are never unlockable.
	replay := stored.UnlockedSet()
	for _, id := range g.TopoOrder() {
		if !unlocked[id] || replay[id] || id == g.Root() {
			continue
		}
		if g.Status(id, replay) != schemas.StatusUnlockable {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: skill %q is not unlockable", ErrInvalidProgress, id)
		}
		replay[id] = true
	}

	counts := g.SpecializationCounts(submitted.UnlockedSkills)
	for spec, n := range submitted.SpecializationProgress {
		if _, ok := g.Specialization(spec); !ok {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: unknown specialization %q", ErrInvalidProgress, spec)
		}
		if n != counts[spec] {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: specialization %q count is %d, unlocked skills give %d", ErrInvalidProgress, spec, n, counts[spec])
		}
	}
	for spec, n := range counts {
		if n > 0 && submitted.SpecializationProgress[spec] != n {
			return schemas.PlayerProgress{}, fmt.Errorf("%w: specialization %q count is missing", ErrInvalidProgress, spec)
		}
	}

	var relocked []string
	for _, id := range stored.UnlockedSkills {
		if !unlocked[id] && id != g.Root() {
			relocked = append(relocked, id)
		}
	}
	if len(relocked) > 0 {
		sort.Strings(relocked)
		return schemas.PlayerProgress{}, fmt.Errorf("%w: skills cannot be relocked: %v", ErrInvalidProgress, relocked)
	}

	out := stored.Clone()
	storedSet := stored.UnlockedSet()
	for _, id := range submitted.UnlockedSkills {
		if storedSet[id] {
			continue
		}
		out.UnlockedSkills = append(out.UnlockedSkills, id)
		if id == g.Root() {
			continue
		}
		node, _ := g.Node(id)
		out.Reputation -= node.Cost.Reputation
		out.SkillPointsAvailable -= node.Cost.SkillPoints
	}
	if out.Reputation < 0 || out.SkillPointsAvailable < 0 {
		return schemas.PlayerProgress{}, fmt.Errorf("%w: not enough currency for the new unlocks (reputation %d, skill points %d)",
			ErrInvalidProgress, out.Reputation, out.SkillPointsAvailable)
	}
	out.SpecializationProgress = g.SpecializationCounts(out.UnlockedSkills)
	return out, nil
}
