package ledger

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// topoOrder runs Kahn's algorithm over nodes and their blocked_by edges and
// returns the nodes ordered by (depth, id), where depth is the longest chain
// of dependencies below a node. Unknown edge targets are ignored here; they
// are rejected during validation.
func topoOrder(nodes []string, blockedBy map[string][]string) ([]string, map[string]int, error) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n] = true
	}

	inDegree := make(map[string]int, len(nodes))
	depth := make(map[string]int, len(nodes))
	forward := make(map[string][]string)
	for _, n := range nodes {
		inDegree[n] = 0
		depth[n] = 0
	}
	for node, deps := range blockedBy {
		if !known[node] {
			continue
		}
		for _, dep := range deps {
			if !known[dep] {
				continue
			}
			inDegree[node]++
			forward[dep] = append(forward[dep], node)
		}
	}

	remaining := make(map[string]int, len(inDegree))
	var queue []string
	for _, n := range nodes {
		remaining[n] = inDegree[n]
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++

		for _, dependent := range forward[node] {
			if depth[node]+1 > depth[dependent] {
				depth[dependent] = depth[node] + 1
			}
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if visited != len(nodes) {
		path := findCyclePath(nodes, blockedBy, remaining)
		return nil, nil, errors.Wrap(ErrCycle, strings.Join(path, " -> "))
	}

	sorted := append([]string(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool {
		if depth[sorted[i]] != depth[sorted[j]] {
			return depth[sorted[i]] < depth[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})
	return sorted, depth, nil
}

// findCyclePath walks the nodes left with unresolved in-degree and returns one
// cycle as a closed path.
func findCyclePath(nodes []string, blockedBy map[string][]string, remaining map[string]int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int)
	parent := make(map[string]string)
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range blockedBy[node] {
			switch color[dep] {
			case gray:
				cycle = []string{dep}
				for cur := node; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			case white:
				if _, ok := remaining[dep]; !ok {
					continue
				}
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodes {
		if remaining[n] > 0 && color[n] == white && dfs(n) {
			return cycle
		}
	}
	return []string{"(cycle detected)"}
}
