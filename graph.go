package ecs

import (
	"fmt"
	"sort"
	"strings"
)

// dependencyGraph holds resolved ordering edges between systems, indexed by
// registration order.
type dependencyGraph struct {
	preds [][]int
	succs [][]int
}

// resolveEdges turns After/Before labels into edges. A label names either a
// system or a set. Unresolvable labels are skipped when lenient is set and
// reported as ErrUnknownDependency otherwise.
func resolveEdges(entries []*systemEntry, lenient bool) (dependencyGraph, error) {
	n := len(entries)
	g := dependencyGraph{preds: make([][]int, n), succs: make([][]int, n)}

	byName := make(map[string]int, n)
	bySet := make(map[string][]int)
	for i, e := range entries {
		byName[e.name] = i
		if e.desc.Set != "" {
			bySet[e.desc.Set] = append(bySet[e.desc.Set], i)
		}
	}
	targets := func(label string) ([]int, bool) {
		if i, ok := byName[label]; ok {
			return []int{i}, true
		}
		members, ok := bySet[label]
		return members, ok
	}

	seen := make(map[[2]int]struct{})
	addEdge := func(from, to int) {
		if from == to {
			return
		}
		key := [2]int{from, to}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		g.succs[from] = append(g.succs[from], to)
		g.preds[to] = append(g.preds[to], from)
	}

	for i, e := range entries {
		for _, label := range e.desc.After {
			ts, ok := targets(label)
			if !ok {
				if lenient {
					continue
				}
				return g, fmt.Errorf("%w: %s runs after %q", ErrUnknownDependency, e.name, label)
			}
			for _, t := range ts {
				addEdge(t, i)
			}
		}
		for _, label := range e.desc.Before {
			ts, ok := targets(label)
			if !ok {
				if lenient {
					continue
				}
				return g, fmt.Errorf("%w: %s runs before %q", ErrUnknownDependency, e.name, label)
			}
			for _, t := range ts {
				addEdge(i, t)
			}
		}
	}
	return g, nil
}

// topologicalOrder runs Kahn's algorithm, always taking the ready system that
// was registered first. Systems left over belong to a cycle and are returned
// as stuck.
func (g dependencyGraph) topologicalOrder() (order []int, stuck []int) {
	n := len(g.preds)
	indegree := make([]int, n)
	var ready []int
	for i := range g.preds {
		indegree[i] = len(g.preds[i])
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order = make([]int, 0, n)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, s := range g.succs[next] {
			indegree[s]--
			if indegree[s] == 0 {
				at := sort.SearchInts(ready, s)
				ready = append(ready, 0)
				copy(ready[at+1:], ready[at:])
				ready[at] = s
			}
		}
	}

	if len(order) != n {
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, i)
			}
		}
	}
	return order, stuck
}

// depths assigns each system its longest-path distance from a root.
func (g dependencyGraph) depths(order []int) []int {
	depth := make([]int, len(g.preds))
	for _, i := range order {
		for _, p := range g.preds[i] {
			if depth[p]+1 > depth[i] {
				depth[i] = depth[p] + 1
			}
		}
	}
	return depth
}

// reachability reports, for every system, which systems must run after it.
func (g dependencyGraph) reachability(order []int) [][]bool {
	n := len(g.preds)
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
	}
	for k := len(order) - 1; k >= 0; k-- {
		i := order[k]
		for _, s := range g.succs[i] {
			reach[i][s] = true
			for j, ok := range reach[s] {
				if ok {
					reach[i][j] = true
				}
			}
		}
	}
	return reach
}

// accessConflict describes the first component or resource that a and b
// cannot touch concurrently.
func accessConflict(a, b *systemEntry) (string, bool) {
	for t := range a.writes {
		if _, ok := b.writes[t]; ok {
			return fmt.Sprintf("component %s (write/write)", t), true
		}
		if _, ok := b.reads[t]; ok {
			return fmt.Sprintf("component %s (write/read)", t), true
		}
	}
	for t := range b.writes {
		if _, ok := a.reads[t]; ok {
			return fmt.Sprintf("component %s (read/write)", t), true
		}
	}
	for r := range a.resourceWrites {
		if _, ok := b.resourceWrites[r]; ok {
			return fmt.Sprintf("resource %s (write/write)", r), true
		}
		if _, ok := b.resourceReads[r]; ok {
			return fmt.Sprintf("resource %s (write/read)", r), true
		}
	}
	for r := range b.resourceWrites {
		if _, ok := a.resourceReads[r]; ok {
			return fmt.Sprintf("resource %s (read/write)", r), true
		}
	}
	return "", false
}

func entryNames(entries []*systemEntry, idx []int) string {
	names := make([]string, 0, len(idx))
	for _, i := range idx {
		names = append(names, entries[i].name)
	}
	return strings.Join(names, ", ")
}
