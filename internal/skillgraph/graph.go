// Package skillgraph holds a validated skill tree and answers structural
// queries about it: prerequisites, tiers, topological order and the
// availability of nodes for a given set of unlocked skills.
//
// A Graph is immutable once loaded and safe for concurrent reads.
package skillgraph

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

// Graph is a validated skill tree. Obtain one through Load.
type Graph struct {
	version string
	root    string

	nodes map[string]*schemas.SkillNode
	order []string // authored order

	specs     map[string]schemas.Specialization
	specOrder []string

	prereqs    map[string][]string // inverted connections: who unlocks this node
	dependents map[string][]string // node.connections, validated

	topo  []string
	depth map[string]int
}

// Version returns the tree_version of the loaded document.
func (g *Graph) Version() string { return g.version }

// Root returns the designated root node id.
func (g *Graph) Root() string { return g.root }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (schemas.SkillNode, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return schemas.SkillNode{}, false
	}
	return cloneNode(*n), true
}

// Nodes returns copies of all nodes in authored order.
func (g *Graph) Nodes() []schemas.SkillNode {
	out := make([]schemas.SkillNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, cloneNode(*g.nodes[id]))
	}
	return out
}

// IDs returns node ids in authored order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Prerequisites returns the ids of every node whose connections include id,
// sorted. It is answered from an index built at load time.
func (g *Graph) Prerequisites(id string) []string {
	return append([]string(nil), g.prereqs[id]...)
}

// Dependents returns the ids a node unlocks, in authored order.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// TierOf returns the authored tier of a node.
func (g *Graph) TierOf(id string) (int, error) {
	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.Tier, nil
}

// DepthOf returns the tier derived from the prerequisite structure: roots
// are 0 and every node sits one above its deepest prerequisite.
func (g *Graph) DepthOf(id string) (int, error) {
	d, ok := g.depth[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return d, nil
}

// PrerequisiteMap returns the prerequisite index in the alternate
// prerequisite-array form accepted by ComputeTiers.
func (g *Graph) PrerequisiteMap() map[string][]string {
	out := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		out[id] = g.Prerequisites(id)
	}
	return out
}

// TopoOrder returns node ids ordered so that every node follows its
// prerequisites.
func (g *Graph) TopoOrder() []string {
	return append([]string(nil), g.topo...)
}

// Specializations returns the specializations in authored order.
func (g *Graph) Specializations() []schemas.Specialization {
	out := make([]schemas.Specialization, 0, len(g.specOrder))
	for _, id := range g.specOrder {
		out = append(out, g.specs[id])
	}
	return out
}

// Specialization returns the specialization with the given id.
func (g *Graph) Specialization(id string) (schemas.Specialization, bool) {
	s, ok := g.specs[id]
	return s, ok
}

// Data returns a copy of the validated document.
func (g *Graph) Data() schemas.SkillTreeData {
	data := schemas.SkillTreeData{
		TreeVersion:     g.version,
		Specializations: g.Specializations(),
		Nodes:           g.Nodes(),
	}
	for _, id := range g.order {
		for _, target := range g.dependents[id] {
			data.Connections = append(data.Connections, schemas.Connection{Source: id, Target: target})
		}
	}
	return data
}

// -- Availability --

// satisfied reports whether id counts as unlocked. The root is unlocked by
// convention even when progress does not list it.
func (g *Graph) satisfied(id string, unlocked map[string]bool) bool {
	return unlocked[id] || id == g.root
}

// Status derives the state of a node from the player's unlocked set.
// Unknown ids are reported as locked.
func (g *Graph) Status(id string, unlocked map[string]bool) schemas.NodeStatus {
	if _, ok := g.nodes[id]; !ok {
		return schemas.StatusLocked
	}
	if g.satisfied(id, unlocked) {
		return schemas.StatusUnlocked
	}
	reqs := g.prereqs[id]
	if len(reqs) == 0 {
		return schemas.StatusLocked
	}
	for _, p := range reqs {
		if !g.satisfied(p, unlocked) {
			return schemas.StatusLocked
		}
	}
	return schemas.StatusUnlockable
}

// Statuses derives the state of every node.
func (g *Graph) Statuses(unlocked map[string]bool) map[string]schemas.NodeStatus {
	out := make(map[string]schemas.NodeStatus, len(g.order))
	for _, id := range g.order {
		out[id] = g.Status(id, unlocked)
	}
	return out
}

// Unlockable returns the sorted ids of every node that can be unlocked now.
func (g *Graph) Unlockable(unlocked map[string]bool) []string {
	var out []string
	for _, id := range g.order {
		if g.Status(id, unlocked) == schemas.StatusUnlockable {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// MissingPrerequisites returns the prerequisites of id that are not yet
// satisfied, sorted.
func (g *Graph) MissingPrerequisites(id string, unlocked map[string]bool) []string {
	var out []string
	for _, p := range g.prereqs[id] {
		if !g.satisfied(p, unlocked) {
			out = append(out, p)
		}
	}
	return out
}

// -- Specializations --

// Rank is a player's standing within a specialization.
type Rank string

const (
	RankNone       Rank = "none"
	RankSpecialist Rank = "specialist"
	RankMaster     Rank = "master"
)

// SpecializationRank maps an unlock count to a rank using the
// specialization's thresholds. A zero threshold is never reached.
func (g *Graph) SpecializationRank(specID string, count int) (Rank, error) {
	spec, ok := g.specs[specID]
	if !ok {
		return RankNone, fmt.Errorf("unknown specialization %q", specID)
	}
	switch {
	case spec.MasteryThreshold > 0 && count >= spec.MasteryThreshold:
		return RankMaster, nil
	case spec.Threshold > 0 && count >= spec.Threshold:
		return RankSpecialist, nil
	default:
		return RankNone, nil
	}
}

// SpecializationCounts counts unlocked nodes per specialization. Unknown
// ids and duplicates are ignored.
func (g *Graph) SpecializationCounts(unlocked []string) map[string]int {
	counts := make(map[string]int)
	seen := make(map[string]bool, len(unlocked))
	for _, id := range unlocked {
		if seen[id] {
			continue
		}
		seen[id] = true
		if n, ok := g.nodes[id]; ok {
			if spec := n.SpecializationID(); spec != "" {
				counts[spec]++
			}
		}
	}
	return counts
}

func cloneNode(n schemas.SkillNode) schemas.SkillNode {
	out := n
	if n.Specialization != nil {
		s := *n.Specialization
		out.Specialization = &s
	}
	out.Effects = append([]schemas.Effect(nil), n.Effects...)
	out.Connections = append([]string(nil), n.Connections...)
	return out
}
