package rules

import (
	"slices"
	"sort"

	"github.com/roach88/nodom/internal/query"
)

// chainGraph maps an action to the actions its chained query can fire.
type chainGraph map[string][]string

// ResultKey is the data key a query's result set is written to, if present.
func ResultKey(queryID string) string {
	return queryID + "_result"
}

// buildChainGraph links each rule to the rules its chained query fires:
//   - the response fires rules whose action is the query_id
//   - a query result stored under <query_id>_result fires that key's
//     DataChange rules
func buildChainGraph(rules []Rule, dataKeys []string) chainGraph {
	graph := make(chainGraph)
	firesOn := func(action, event string) bool {
		for _, r := range rules {
			if r.Action == action && r.Matches(event) {
				return true
			}
		}
		return false
	}

	for _, r := range rules {
		if graph[r.Action] == nil {
			graph[r.Action] = []string{}
		}
		if r.Chain == nil {
			continue
		}
		qid := r.Chain.QueryID
		event := EventQueryResult
		if r.Chain.Op == query.OpScan {
			event = EventScanResult
		}
		if firesOn(qid, event) && !slices.Contains(graph[r.Action], qid) {
			graph[r.Action] = append(graph[r.Action], qid)
		}
		if r.Chain.Op == query.OpQuery {
			rk := ResultKey(qid)
			if slices.Contains(dataKeys, rk) && firesOn(rk, EventDataChange) && !slices.Contains(graph[r.Action], rk) {
				graph[r.Action] = append(graph[r.Action], rk)
			}
		}
	}
	return graph
}

// FindCycles returns every loop of chained queries as a closed path, such as
// [a a] for a self-chaining rule or [a b a].
func FindCycles(rules []Rule, dataKeys []string) [][]string {
	graph := buildChainGraph(rules, dataKeys)

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 {
			if slices.Contains(graph[scc[0]], scc[0]) {
				cycles = append(cycles, []string{scc[0], scc[0]})
			}
			continue
		}
		cycles = append(cycles, cyclePath(scc, graph))
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// tarjanSCC finds strongly connected components. Nodes are visited in sorted
// order so results are deterministic.
func tarjanSCC(graph chainGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath returns the shortest loop through the SCC's smallest member.
func cyclePath(scc []string, graph chainGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	sorted := slices.Clone(scc)
	sort.Strings(sorted)
	start := sorted[0]

	prev := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, w := range graph[cur] {
			if !members[w] {
				continue
			}
			if w == start {
				path := []string{start}
				for n := cur; n != start; n = prev[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := prev[w]; !seen {
				prev[w] = cur
				queue = append(queue, w)
			}
		}
	}
	return append(sorted, start)
}
