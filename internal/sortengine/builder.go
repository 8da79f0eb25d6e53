package sortengine

import (
	"github.com/loot-core/loot/internal/metadata"
	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
)

// buildCoreGraph assembles edge precedence tiers 1-5: the
// hard-coded game order, master-flag ordering, master dependencies,
// and masterlist/userlist load_after and requirement edges. These
// five tiers are the ones whose mutual cycles are fatal, so they are
// built together, ahead of groups and overlaps.
func buildCoreGraph(vertices []pluginref.Ref, in Input) *graph {
	g := newGraph(vertices)

	addHardcodedOrderEdges(g, in.Game.HardcodedPrefix)
	addMasterFlagEdges(g, vertices, in.Installed)
	addMasterDependencyEdges(g, in.Installed)
	addMetadataEdges(g, vertices, in.Metadata)

	return g
}

// addHardcodedOrderEdges chains the game's immovable prefix plugins in
// their declared order.
func addHardcodedOrderEdges(g *graph, prefix []string) {
	for i := 1; i < len(prefix); i++ {
		g.addEdge(Edge{
			From: pluginref.Ref(prefix[i-1]),
			To:   pluginref.Ref(prefix[i]),
			Kind: HardRule,
		})
	}
}

// addMasterFlagEdges orders every master-flagged plugin before every
// non-master plugin.
func addMasterFlagEdges(g *graph, vertices []pluginref.Ref, installed map[string]*plugin.Facts) {
	for _, p := range vertices {
		pf := installed[p.Key()]
		if pf == nil || !pf.IsMaster {
			continue
		}
		for _, q := range vertices {
			qf := installed[q.Key()]
			if qf == nil || qf.IsMaster || p.Equal(q) {
				continue
			}
			g.addEdge(Edge{From: p, To: q, Kind: MasterFlag})
		}
	}
}

// addMasterDependencyEdges adds an edge from each plugin's masters to
// the plugin itself.
func addMasterDependencyEdges(g *graph, installed map[string]*plugin.Facts) {
	for _, pf := range installed {
		for _, m := range pf.Masters {
			g.addEdge(Edge{From: m, To: pf.Name, Kind: Master})
		}
	}
}

// addMetadataEdges adds masterlist/userlist load_after and requirement
// edges, tagging each edge with the layer that
// contributed it.
func addMetadataEdges(g *graph, vertices []pluginref.Ref, store *metadata.Store) {
	if store == nil {
		return
	}
	for _, p := range vertices {
		masterlistMeta, userlistMeta := store.LookupLayered(p)

		for _, f := range masterlistMeta.LoadAfter {
			g.addEdge(Edge{From: pluginref.Ref(f.Name), To: p, Kind: MasterlistLoadAfter})
		}
		for _, f := range masterlistMeta.Requirements {
			g.addEdge(Edge{From: pluginref.Ref(f.Name), To: p, Kind: MasterlistRequirement})
		}
		for _, f := range userlistMeta.LoadAfter {
			g.addEdge(Edge{From: pluginref.Ref(f.Name), To: p, Kind: UserLoadAfter})
		}
		for _, f := range userlistMeta.Requirements {
			g.addEdge(Edge{From: pluginref.Ref(f.Name), To: p, Kind: UserRequirement})
		}
	}
}

// addGroupEdgesIfAcyclic adds one edge per (P in G1, Q in G2) pair
// where G2 reaches G1 in the group DAG, skipping (and reporting) any
// edge that would introduce a cycle.
func addGroupEdgesIfAcyclic(g *graph, vertices []pluginref.Ref, installed map[string]*plugin.Facts, store *metadata.Store, reach *groupReachability) []Edge {
	var dropped []Edge
	groupOf := make(map[string]string, len(vertices))
	for _, p := range vertices {
		masterlistMeta, userlistMeta := store.LookupLayered(p)
		switch {
		case userlistMeta.Group != "":
			groupOf[p.Key()] = userlistMeta.Group
		case masterlistMeta.Group != "":
			groupOf[p.Key()] = masterlistMeta.Group
		default:
			groupOf[p.Key()] = metadata.DefaultGroup
		}
	}

	for _, q := range vertices {
		g2 := groupOf[q.Key()]
		for _, p := range vertices {
			if p.Equal(q) {
				continue
			}
			g1 := groupOf[p.Key()]
			if !reach.Reaches(g2, g1) {
				continue
			}
			e := Edge{From: p, To: q, Kind: GroupEdge}
			if !tryAddEdge(g, e) {
				dropped = append(dropped, e)
			}
		}
	}
	return dropped
}

// tryAddEdge adds e only if doing so keeps the graph acyclic,
// reverting otherwise.
func tryAddEdge(g *graph, e Edge) bool {
	if !g.addEdge(e) {
		return true // duplicate or rejected for structural reasons, not a cycle
	}
	if cyc := g.findCycle(); len(cyc) > 0 {
		g.removeEdge(e.From, e.To)
		return false
	}
	return true
}
