package skillgraph

import (
	"fmt"
	"sort"
	"strings"
)

// ComputeTiers layers a prerequisite map with Kahn's algorithm. Nodes with
// no prerequisites are tier 0; every other node sits one tier above its
// deepest prerequisite. Every id referenced as a prerequisite must also be
// a key. A cycle is reported with the ids that could not be placed.
func ComputeTiers(prereqs map[string][]string) (map[string]int, error) {
	dependents := make(map[string][]string, len(prereqs))
	inDegree := make(map[string]int, len(prereqs))
	for id, reqs := range prereqs {
		seen := make(map[string]bool, len(reqs))
		for _, req := range reqs {
			if _, ok := prereqs[req]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownNode, id, req)
			}
			if seen[req] {
				continue
			}
			seen[req] = true
			dependents[req] = append(dependents[req], id)
			inDegree[id]++
		}
	}

	tiers := make(map[string]int, len(prereqs))
	queue := make([]string, 0, len(prereqs))
	for id := range prereqs {
		if inDegree[id] == 0 {
			queue = append(queue, id)
			tiers[id] = 0
		}
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		next := dependents[curr]
		sort.Strings(next)
		for _, dep := range next {
			if t := tiers[curr] + 1; t > tiers[dep] {
				tiers[dep] = t
			}
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(tiers) != len(prereqs) || hasPending(inDegree) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: unresolved nodes %s", ErrCycleDetected, strings.Join(stuck, ", "))
	}
	return tiers, nil
}

func hasPending(inDegree map[string]int) bool {
	for _, deg := range inDegree {
		if deg > 0 {
			return true
		}
	}
	return false
}

// topoSort orders ids so every node follows all of its prerequisites. Ties
// are broken by authored order. It returns the ids left over by a cycle.
func topoSort(order []string, prereqs, dependents map[string][]string) (sorted, stuck []string) {
	position := make(map[string]int, len(order))
	inDegree := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
		inDegree[id] = len(prereqs[id])
	}

	var ready []string
	for _, id := range order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	for len(ready) > 0 {
		curr := ready[0]
		ready = ready[1:]
		sorted = append(sorted, curr)

		var released []string
		for _, dep := range dependents[curr] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Slice(released, func(i, j int) bool { return position[released[i]] < position[released[j]] })
		ready = append(ready, released...)
	}

	for _, id := range order {
		if inDegree[id] > 0 {
			stuck = append(stuck, id)
		}
	}
	return sorted, stuck
}
