// Package sortengine implements the Sorting Engine: it
// builds a directed graph of installed plugins from hard-coded game
// rules, master dependencies, masterlist/userlist edges, group
// relationships, and record overlaps, detects cycles, and produces a
// topological order biased toward the plugins' current positions.
package sortengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/metadata"
	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
)

// EdgeKind names the rule that produced an edge.
type EdgeKind string

const (
	HardRule              EdgeKind = "HardRule"
	MasterFlag            EdgeKind = "MasterFlag"
	Master                EdgeKind = "Master"
	MasterlistLoadAfter   EdgeKind = "MasterlistLoadAfter"
	MasterlistRequirement EdgeKind = "MasterlistRequirement"
	UserLoadAfter         EdgeKind = "UserLoadAfter"
	UserRequirement       EdgeKind = "UserRequirement"
	GroupEdge             EdgeKind = "Group"
	Overlap               EdgeKind = "Overlap"
	TieBreak              EdgeKind = "TieBreak"
)

// Edge is a directed edge From -> To, meaning From must load before To.
type Edge struct {
	From pluginref.Ref
	To   pluginref.Ref
	Kind EdgeKind
}

// CyclicInteraction is returned when edges of precedence 1-5 alone
// form a cycle.
type CyclicInteraction struct {
	Path []Edge
}

func (e *CyclicInteraction) Error() string {
	var sb strings.Builder
	sb.WriteString("cyclic interaction: ")
	for i, edge := range e.Path {
		if i > 0 {
			sb.WriteString(" -> ")
		}
		fmt.Fprintf(&sb, "%s--%s-->%s", edge.From, edge.Kind, edge.To)
	}
	return sb.String()
}

// graph is a mutable adjacency-list digraph over plugin names.
type graph struct {
	vertices map[string]pluginref.Ref
	edges    map[string]map[string]Edge // from.Key() -> to.Key() -> Edge (first-writer per pair wins)
}

func newGraph(vertices []pluginref.Ref) *graph {
	g := &graph{
		vertices: make(map[string]pluginref.Ref, len(vertices)),
		edges:    make(map[string]map[string]Edge, len(vertices)),
	}
	for _, v := range vertices {
		g.vertices[v.Key()] = v
		g.edges[v.Key()] = make(map[string]Edge)
	}
	return g
}

// addEdge records From -> To if both are vertices and the edge is not
// a self-loop. It does not overwrite an
// existing edge for the same pair, since earlier-precedence calls
// always run first.
func (g *graph) addEdge(e Edge) bool {
	if e.From.Equal(e.To) {
		return false
	}
	if _, ok := g.vertices[e.From.Key()]; !ok {
		return false
	}
	if _, ok := g.vertices[e.To.Key()]; !ok {
		return false
	}
	if _, exists := g.edges[e.From.Key()][e.To.Key()]; exists {
		return false
	}
	g.edges[e.From.Key()][e.To.Key()] = e
	return true
}

func (g *graph) removeEdge(from, to pluginref.Ref) {
	delete(g.edges[from.Key()], to.Key())
}

// findCycle returns the edge path of a cycle in the graph, or nil if
// the graph is acyclic.
func (g *graph) findCycle() []Edge {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.vertices))
	var path []Edge
	var stackKeys []string

	var visit func(key string) []Edge
	visit = func(key string) []Edge {
		color[key] = gray
		stackKeys = append(stackKeys, key)

		keys := make([]string, 0, len(g.edges[key]))
		for to := range g.edges[key] {
			keys = append(keys, to)
		}
		sort.Strings(keys)

		for _, to := range keys {
			edge := g.edges[key][to]
			switch color[to] {
			case white:
				path = append(path, edge)
				if cyc := visit(to); cyc != nil {
					return cyc
				}
				path = path[:len(path)-1]
			case gray:
				// Found the back edge closing the cycle; return the
				// portion of path from "to" onward, plus this edge.
				start := 0
				for i, e := range path {
					if e.From.Equal(g.vertices[to]) {
						start = i
						break
					}
				}
				cyc := append([]Edge{}, path[start:]...)
				cyc = append(cyc, edge)
				return cyc
			}
		}

		color[key] = black
		stackKeys = stackKeys[:len(stackKeys)-1]
		return nil
	}

	keys := make([]string, 0, len(g.vertices))
	for k := range g.vertices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if color[k] == white {
			if cyc := visit(k); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// Input bundles everything the engine needs to build the graph.
type Input struct {
	Game         gameid.Table
	Installed    map[string]*plugin.Facts // keyed by pluginref.Ref.Key()
	Metadata     *metadata.Store
	CurrentOrder []pluginref.Ref
}

// currentIndex returns a lookup from plugin key to its position in
// CurrentOrder, used for the tie-break and for record-overlap
// ordering ties.
func currentIndex(order []pluginref.Ref) map[string]int {
	idx := make(map[string]int, len(order))
	for i, r := range order {
		idx[r.Key()] = i
	}
	return idx
}
