//go:build property

package graph

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/slate/internal/types"
)

// buildDAG wires node i to the nodes listed in picks that have a lower
// index, which can never form a loop.
func buildDAG(picks []int) *Graph {
	g := New()
	n := len(picks)
	for i := 0; i < n; i++ {
		g.InsertOrReplace(&Node{ID: fmt.Sprintf("n%03d", i)})
	}
	for i := 0; i < n; i++ {
		var edges []types.Edge
		for j := 0; j < i; j++ {
			if (picks[i]>>uint(j%16))&1 == 1 {
				edges = append(edges, types.Edge{To: fmt.Sprintf("n%03d", j), Kind: types.EdgeIncludes})
			}
		}
		g.SetEdges(fmt.Sprintf("n%03d", i), edges)
	}
	return g
}

func TestGraphProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("topological order respects every edge", prop.ForAll(
		func(picks []int) bool {
			g := buildDAG(picks)
			order, err := g.TopologicalOrder(g.IDs())
			if err != nil || len(order) != len(picks) {
				return false
			}
			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, id := range order {
				for _, e := range g.Edges(id) {
					if pos[e.To] >= pos[id] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 1<<16-1)),
	))

	properties.Property("topological order is deterministic", prop.ForAll(
		func(picks []int) bool {
			a, errA := buildDAG(picks).TopologicalOrder(buildDAG(picks).IDs())
			b, errB := buildDAG(picks).TopologicalOrder(buildDAG(picks).IDs())
			return errA == nil && errB == nil && fmt.Sprint(a) == fmt.Sprint(b)
		},
		gen.SliceOfN(15, gen.IntRange(0, 1<<16-1)),
	))

	properties.Property("dependents are exactly the nodes that reach the seed", prop.ForAll(
		func(picks []int, seed int) bool {
			g := buildDAG(picks)
			target := fmt.Sprintf("n%03d", seed%len(picks))

			want := map[string]bool{}
			for _, id := range g.IDs() {
				for _, r := range g.Reachable(id) {
					if r == target {
						want[id] = true
					}
				}
			}
			got := g.DependentsOf(target)
			if len(got) != len(want) {
				return false
			}
			for _, id := range got {
				if !want[id] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 1<<16-1)),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
