// Package graph maintains the dependency graph between source entities.
//
// Edges point from the dependent to the dependency. An edge may name an
// entity that is not (or no longer) in the graph; such edges are dangling
// and are kept so that the dependent is found again when the entity
// reappears or when its removal needs to be propagated.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/slate/internal/types"
)

// Node is one entity in the graph.
type Node struct {
	ID   string
	Kind types.Kind
	Hash string
	File *types.SourceFile
	// Payload holds the parsed form of the source (a content page, a
	// template's references) once edges have been derived.
	Payload any
}

// Graph is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	out   map[string][]types.Edge
	in    map[string]map[string]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]types.Edge),
		in:    make(map[string]map[string]struct{}),
	}
}

// InsertOrReplace stores n, dropping the outgoing edges of any node it
// replaces. Incoming edges are untouched.
func (g *Graph) InsertOrReplace(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clearOutLocked(n.ID)
	g.nodes[n.ID] = n
}

// SetEdges replaces the outgoing edges of from. Self edges and duplicate
// targets of the same kind are dropped.
func (g *Graph) SetEdges(from string, edges []types.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clearOutLocked(from)

	seen := make(map[types.Edge]struct{}, len(edges))
	kept := make([]types.Edge, 0, len(edges))
	for _, e := range edges {
		e.From = from
		if e.To == from {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		kept = append(kept, e)

		if g.in[e.To] == nil {
			g.in[e.To] = make(map[string]struct{})
		}
		g.in[e.To][from] = struct{}{}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].To != kept[j].To {
			return kept[i].To < kept[j].To
		}
		return kept[i].Kind < kept[j].Kind
	})
	if len(kept) > 0 {
		g.out[from] = kept
	}
}

// Remove deletes the node and its outgoing edges. Edges from other nodes
// into id remain and become dangling.
func (g *Graph) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return false
	}
	g.clearOutLocked(id)
	delete(g.nodes, id)
	return true
}

func (g *Graph) clearOutLocked(from string) {
	for _, e := range g.out[from] {
		if set := g.in[e.To]; set != nil {
			delete(set, from)
			if len(set) == 0 {
				delete(g.in, e.To)
			}
		}
	}
	delete(g.out, from)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// IDs returns every node id, sorted.
func (g *Graph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns every node, sorted by id.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// WithPrefix returns the ids that start with prefix, sorted.
func (g *Graph) WithPrefix(prefix string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id := range g.nodes {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Edges returns the outgoing edges of id, sorted by target.
func (g *Graph) Edges(id string) []types.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]types.Edge(nil), g.out[id]...)
}

// Dangling returns the outgoing edges of id whose target is not in the graph.
func (g *Graph) Dangling(id string) []types.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var dangling []types.Edge
	for _, e := range g.out[id] {
		if _, ok := g.nodes[e.To]; !ok {
			dangling = append(dangling, e)
		}
	}
	return dangling
}

// DependentsOf returns every id with a path to any of the seeds, found by
// a breadth-first walk over reverse edges. The seeds themselves are only
// included when a cycle leads back to them. Ids need not be in the graph,
// which is how removals reach their dependents.
func (g *Graph) DependentsOf(seeds ...string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	found := make(map[string]struct{})
	queue := append([]string(nil), seeds...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for from := range g.in[id] {
			if _, ok := found[from]; ok {
				continue
			}
			found[from] = struct{}{}
			queue = append(queue, from)
		}
	}

	result := make([]string, 0, len(found))
	for id := range found {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Reachable returns every id reachable from id along outgoing edges,
// excluding id itself, sorted. Dangling targets are included.
func (g *Graph) Reachable(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]struct{}{id: {}}
	stack := []string{id}
	var result []string
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.out[cur] {
			if _, ok := seen[e.To]; ok {
				continue
			}
			seen[e.To] = struct{}{}
			result = append(result, e.To)
			stack = append(stack, e.To)
		}
	}
	sort.Strings(result)
	return result
}

// CycleError reports entities that cannot be ordered.
type CycleError struct {
	// Cycles lists each loop found, closed by repeating its first id
	Cycles [][]string
	// Blocked are entities that depend on a cycle without being part of one
	Blocked []string
}

// Error implements the error interface
func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		parts = append(parts, strings.Join(c, " -> "))
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, "; "))
}

// Members returns every id that is part of a cycle, sorted.
func (e *CycleError) Members() []string {
	seen := make(map[string]struct{})
	for _, c := range e.Cycles {
		for _, id := range c {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TopologicalOrder returns the subset ordered so that every entity comes
// after the entities it depends on. Only edges between members of the
// subset constrain the order; ties are broken by id so the result is
// deterministic. When the subset cannot be ordered the error is a
// *CycleError and no order is returned.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members := make(map[string]struct{}, len(subset))
	for _, id := range subset {
		members[id] = struct{}{}
	}

	pending := make(map[string]int, len(members))
	dependents := make(map[string][]string, len(members))
	for id := range members {
		pending[id] = 0
	}
	for id := range members {
		for _, e := range g.out[id] {
			if _, ok := members[e.To]; !ok {
				continue
			}
			pending[id]++
			dependents[e.To] = append(dependents[e.To], id)
		}
	}

	ready := make([]string, 0)
	for id, n := range pending {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(members))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var released []string
		for _, dep := range dependents[id] {
			pending[dep]--
			if pending[dep] == 0 {
				released = append(released, dep)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(order) == len(members) {
		return order, nil
	}

	stuck := make(map[string]struct{})
	for id, n := range pending {
		if n > 0 {
			stuck[id] = struct{}{}
		}
	}
	return nil, g.describeCyclesLocked(stuck)
}

// describeCyclesLocked finds the loops among stuck nodes with a depth-first
// search and classifies the remainder as blocked.
func (g *Graph) describeCyclesLocked(stuck map[string]struct{}) *CycleError {
	ids := make([]string, 0, len(stuck))
	for id := range stuck {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	inCycle := make(map[string]bool)
	cerr := &CycleError{}

	var path []string
	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, e := range g.out[id] {
			if _, ok := stuck[e.To]; !ok {
				continue
			}
			if onStack[e.To] {
				start := 0
				for i, p := range path {
					if p == e.To {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), e.To)
				cerr.Cycles = append(cerr.Cycles, cycle)
				for _, c := range cycle {
					inCycle[c] = true
				}
				continue
			}
			if !visited[e.To] {
				visit(e.To)
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	for _, id := range ids {
		if !visited[id] {
			visit(id)
		}
	}

	for _, id := range ids {
		if !inCycle[id] {
			cerr.Blocked = append(cerr.Blocked, id)
		}
	}
	return cerr
}
