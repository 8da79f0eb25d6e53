package sortengine

import "github.com/loot-core/loot/internal/metadata"

// groupReachability answers "does group G2 reach group G1 in the
// group DAG".
type groupReachability struct {
	reaches map[string]map[string]bool // reaches[g2][g1] == true if g2 can reach g1
}

func buildGroupReachability(groups []metadata.Group) *groupReachability {
	adj := make(map[string][]string, len(groups))
	for _, g := range groups {
		adj[g.Name] = append(adj[g.Name], g.LoadAfter...)
	}

	reaches := make(map[string]map[string]bool, len(groups))
	var visit func(start, cur string, visited map[string]bool)
	visit = func(start, cur string, visited map[string]bool) {
		for _, next := range adj[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			if reaches[start] == nil {
				reaches[start] = make(map[string]bool)
			}
			reaches[start][next] = true
			visit(start, next, visited)
		}
	}

	for _, g := range groups {
		visit(g.Name, g.Name, map[string]bool{g.Name: true})
	}
	return &groupReachability{reaches: reaches}
}

// Reaches reports whether g2 reaches g1 in the group "load after" DAG.
func (r *groupReachability) Reaches(g2, g1 string) bool {
	if g2 == g1 {
		return false
	}
	return r.reaches[g2][g1]
}
