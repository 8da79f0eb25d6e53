package sortengine

import (
	"container/heap"
	"sort"

	"github.com/loot-core/loot/internal/pluginref"
)

// Warning records a non-fatal decision the sorter made while building
// the graph, such as dropping a group or overlap edge that would have
// introduced a cycle.
type Warning struct {
	Dropped Edge
}

// Result is the outcome of a successful sort.
type Result struct {
	Order    []pluginref.Ref
	Warnings []Warning
}

// Sort computes a new load order for the plugins named in in.Installed
//. It returns a *CyclicInteraction error if tiers 1-5 alone
// cycle; group and record-overlap edges that would cycle are instead
// dropped with a Warning.
//
// The result is partitioned into hard-coded-prefix, full, medium, and
// light plugins, each partition topologically sorted independently
// and the partitions concatenated in that fixed order, so a plugin
// never crosses partition boundaries regardless of metadata edges.
func Sort(in Input) (*Result, error) {
	vertices := make([]pluginref.Ref, 0, len(in.Installed))
	for _, pf := range in.Installed {
		vertices = append(vertices, pf.Name)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i].Key() < vertices[j].Key() })

	core := buildCoreGraph(vertices, in)
	if cyc := core.findCycle(); len(cyc) > 0 {
		return nil, &CyclicInteraction{Path: cyc}
	}

	reach := buildGroupReachability(in.Metadata.Groups())
	var warnings []Warning
	for _, dropped := range addGroupEdgesIfAcyclic(core, vertices, in.Installed, in.Metadata, reach) {
		warnings = append(warnings, Warning{Dropped: dropped})
	}

	beforeOverlap := snapshotEdges(core)
	addOverlapEdges(core, in.Installed)
	added := diffEdges(beforeOverlap, core)
	for _, e := range added {
		core.removeEdge(e.From, e.To)
	}
	for _, e := range added {
		if !tryAddEdge(core, e) {
			warnings = append(warnings, Warning{Dropped: e})
		}
	}

	idx := currentIndex(in.CurrentOrder)
	prefix := in.Game.HardcodedPrefix

	inPrefix := make(map[string]bool, len(prefix))
	for _, name := range prefix {
		inPrefix[pluginref.Ref(name).Key()] = true
	}

	var fullKeys, mediumKeys, lightKeys []string
	for _, v := range vertices {
		if inPrefix[v.Key()] {
			continue
		}
		pf := in.Installed[v.Key()]
		switch {
		case pf != nil && pf.IsLight:
			lightKeys = append(lightKeys, v.Key())
		case pf != nil && pf.IsMedium:
			mediumKeys = append(mediumKeys, v.Key())
		default:
			fullKeys = append(fullKeys, v.Key())
		}
	}

	var prefixKeys []string
	for _, name := range prefix {
		k := pluginref.Ref(name).Key()
		if _, ok := core.vertices[k]; ok {
			prefixKeys = append(prefixKeys, k)
		}
	}

	var order []pluginref.Ref
	for _, part := range [][]string{prefixKeys, fullKeys, mediumKeys, lightKeys} {
		sorted, err := kahnSort(core, part, idx)
		if err != nil {
			return nil, err
		}
		order = append(order, sorted...)
	}

	return &Result{Order: order, Warnings: warnings}, nil
}

// kahnSort runs Kahn's algorithm restricted to the vertex keys in
// part, using idx (current load order position) to break ties in
// favor of the plugin that is already earliest.
func kahnSort(g *graph, part []string, idx map[string]int) ([]pluginref.Ref, error) {
	if len(part) == 0 {
		return nil, nil
	}
	inPart := make(map[string]bool, len(part))
	for _, k := range part {
		inPart[k] = true
	}

	indegree := make(map[string]int, len(part))
	for _, k := range part {
		indegree[k] = 0
	}
	for _, k := range part {
		for to := range g.edges[k] {
			if inPart[to] {
				indegree[to]++
			}
		}
	}

	pq := &priorityQueue{idx: idx}
	for _, k := range part {
		if indegree[k] == 0 {
			heap.Push(pq, k)
		}
	}

	var result []pluginref.Ref
	for pq.Len() > 0 {
		k := heap.Pop(pq).(string)
		result = append(result, g.vertices[k])

		toKeys := make([]string, 0, len(g.edges[k]))
		for to := range g.edges[k] {
			if inPart[to] {
				toKeys = append(toKeys, to)
			}
		}
		sort.Strings(toKeys)
		for _, to := range toKeys {
			indegree[to]--
			if indegree[to] == 0 {
				heap.Push(pq, to)
			}
		}
	}

	if len(result) != len(part) {
		// Restricting the acyclic full graph to a partition subset
		// cannot itself introduce a cycle, but guard defensively.
		return nil, &CyclicInteraction{}
	}
	return result, nil
}

// priorityQueue is a container/heap of vertex keys ordered by current
// load order index (ties broken lexicographically for determinism),
// used so Kahn's algorithm prefers the plugin that is already
// earliest among ready vertices.
type priorityQueue struct {
	items []string
	idx   map[string]int
}

func (pq *priorityQueue) Len() int { return len(pq.items) }
func (pq *priorityQueue) Less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	ai, aok := pq.idx[a]
	bi, bok := pq.idx[b]
	switch {
	case aok && bok:
		if ai != bi {
			return ai < bi
		}
	case aok:
		return true
	case bok:
		return false
	}
	return a < b
}
func (pq *priorityQueue) Swap(i, j int) { pq.items[i], pq.items[j] = pq.items[j], pq.items[i] }
func (pq *priorityQueue) Push(x any)    { pq.items = append(pq.items, x.(string)) }
func (pq *priorityQueue) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	pq.items = old[:n-1]
	return item
}

// snapshotEdges and diffEdges let Sort add the whole batch of overlap
// edges at once and then identify exactly which ones survived
// addEdge's first-writer-wins rule, so each can be independently
// tested for cycle introduction.
func snapshotEdges(g *graph) map[[2]string]bool {
	out := make(map[[2]string]bool)
	for from, tos := range g.edges {
		for to := range tos {
			out[[2]string{from, to}] = true
		}
	}
	return out
}

func diffEdges(before map[[2]string]bool, g *graph) []Edge {
	var out []Edge
	for from, tos := range g.edges {
		for to, e := range tos {
			if !before[[2]string{from, to}] {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
