package sortengine

import (
	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
)

// overlapCounts returns, for each installed plugin, the number of
// FormIDs it overrides (i.e. whose master index resolves to one of
// its masters, installed or not, rather than itself). This proxies for
// "how much of a shared master this plugin touches", used to break
// record-overlap ties.
func overlapCounts(installed map[string]*plugin.Facts) map[string]int {
	counts := make(map[string]int, len(installed))
	for key, facts := range installed {
		counts[key] = len(facts.FormIDs) - facts.NewObjectCount()
	}
	return counts
}

// sharedOverlapPairs finds every pair of installed plugins that both
// override at least one common record of some third (master) plugin.
func sharedOverlapPairs(installed map[string]*plugin.Facts) map[[2]string]int {
	byFormKey := make(map[plugin.FormKey][]string)

	for key, facts := range installed {
		for fk := range facts.FormIDs {
			if fk.Master.Equal(facts.Name) {
				continue // self-authored, not an override
			}
			byFormKey[fk] = append(byFormKey[fk], key)
		}
	}

	pairs := make(map[[2]string]int)
	for _, owners := range byFormKey {
		if len(owners) < 2 {
			continue
		}
		for i := 0; i < len(owners); i++ {
			for j := i + 1; j < len(owners); j++ {
				a, b := owners[i], owners[j]
				if a == b {
					continue
				}
				if a > b {
					a, b = b, a
				}
				pairs[[2]string{a, b}]++
			}
		}
	}
	return pairs
}

// addOverlapEdges adds a record-overlap edge for each overlapping
// pair, directed from the plugin that overrides less of the shared
// master toward the one that overrides more (which loads later), tie
// broken by (override_count, form_id_count, name) per rule 7.
func addOverlapEdges(g *graph, installed map[string]*plugin.Facts) {
	pairs := sharedOverlapPairs(installed)
	if len(pairs) == 0 {
		return
	}
	overrideCounts := overlapCounts(installed)

	for pair := range pairs {
		aKey, bKey := pair[0], pair[1]
		aFacts, bFacts := installed[aKey], installed[bKey]
		if aFacts == nil || bFacts == nil {
			continue
		}

		winner, loser := aFacts.Name, bFacts.Name
		if less(overrideCounts[aKey], len(aFacts.FormIDs), aFacts.Name, overrideCounts[bKey], len(bFacts.FormIDs), bFacts.Name) {
			winner, loser = bFacts.Name, aFacts.Name
		}

		g.addEdge(Edge{From: loser, To: winner, Kind: Overlap})
	}
}

// less compares (count, assetCount, name) lexicographically: a < b.
func less(aCount, aAssets int, aName pluginref.Ref, bCount, bAssets int, bName pluginref.Ref) bool {
	if aCount != bCount {
		return aCount < bCount
	}
	if aAssets != bAssets {
		return aAssets < bAssets
	}
	return aName.Key() < bName.Key()
}
