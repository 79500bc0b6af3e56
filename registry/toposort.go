package registry

import (
	"container/heap"
	"sort"

	"github.com/edgecomet/apcore/core"
)

// idHeap is a min-heap of module ids, used to pick the lexicographically
// smallest zero-in-degree id at each step of Kahn's algorithm so
// resolution order is deterministic (spec.md §4.4 step 7: "Initialize
// a min-heap (sorted queue) of zero-in-degree ids for determinism").
//
// Grounded on the shape/naming of the topological-sort reference files
// surveyed in other_examples/ (yesoreyeram-thaiyyal's engine.go
// TopologicalSort, smilemakc-mbflow's wave-based DAG test) — no
// complete example implementation exists to adapt, so the algorithm
// itself is implemented directly against spec.md's description using
// Go's container/heap.
type idHeap []string

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopoSort orders ids so that every edge in edges (dependent -> its
// dependencies) is emitted dependency-before-dependent, using Kahn's
// algorithm. edges maps a module id to the ids it depends on.
//
// Unknown dependency ids are the discovery pipeline's concern (step 7
// distinguishes unknown-required from unknown-optional before calling
// TopoSort); by the time edges reaches here every id on either side of
// an edge is expected to be a member of ids.
func TopoSort(ids []string, edges map[string][]string) ([]string, error) {
	inDegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids)) // dep -> ids that depend on it
	for _, id := range ids {
		inDegree[id] = 0
	}
	for id, deps := range edges {
		for _, dep := range deps {
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}

	h := &idHeap{}
	for _, id := range ids {
		if inDegree[id] == 0 {
			heap.Push(h, id)
		}
	}

	order := make([]string, 0, len(ids))
	for h.Len() > 0 {
		id := heap.Pop(h).(string)
		order = append(order, id)
		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				heap.Push(h, dependent)
			}
		}
	}

	if len(order) != len(ids) {
		cycle := extractCycle(ids, edges, order)
		return nil, core.NewError(core.CodeCircularDependency, "circular module dependency").
			WithDetail("cycle", cycle)
	}
	return order, nil
}

// extractCycle finds one cycle among the ids left over after Kahn's
// algorithm stalls, by walking dependency edges from an unresolved node
// until a node repeats.
func extractCycle(ids []string, edges map[string][]string, resolved []string) []string {
	resolvedSet := make(map[string]struct{}, len(resolved))
	for _, id := range resolved {
		resolvedSet[id] = struct{}{}
	}

	var start string
	for _, id := range ids {
		if _, done := resolvedSet[id]; !done {
			start = id
			break
		}
	}
	if start == "" {
		return nil
	}

	visited := make(map[string]int) // id -> position in path
	path := []string{}
	cur := start
	for {
		if pos, seen := visited[cur]; seen {
			return append(path[pos:], cur)
		}
		visited[cur] = len(path)
		path = append(path, cur)

		deps := edges[cur]
		next := ""
		for _, d := range deps {
			if _, done := resolvedSet[d]; !done {
				next = d
				break
			}
		}
		if next == "" {
			return path
		}
		cur = next
	}
}
