package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/types"
)

// edgeMap is an EdgeSource over a literal adjacency list.
type edgeMap map[string][]string

func (m edgeMap) Edges(id string) []types.Edge {
	var edges []types.Edge
	for _, to := range m[id] {
		edges = append(edges, types.Edge{From: id, To: to, Kind: types.EdgeIncludes})
	}
	return edges
}

func TestSchedulerRunsDependenciesFirst(t *testing.T) {
	deps := edgeMap{
		"page1":  {"layout"},
		"page2":  {"layout"},
		"page3":  {"layout", "data"},
		"layout": {"partial"},
	}
	order := []string{"data", "partial", "layout", "page1", "page2", "page3"}

	var mu sync.Mutex
	finished := map[string]bool{}
	failed := NewScheduler(4).Run(context.Background(), order, deps, func(_ context.Context, id string) error {
		mu.Lock()
		for _, dep := range deps[id] {
			if !finished[dep] {
				mu.Unlock()
				return fmt.Errorf("%s started before %s finished", id, dep)
			}
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)
		mu.Lock()
		finished[id] = true
		mu.Unlock()
		return nil
	})

	assert.Empty(t, failed)
	assert.Len(t, finished, len(order))
}

func TestSchedulerPropagatesFailure(t *testing.T) {
	deps := edgeMap{
		"layout": {"partial"},
		"page":   {"layout"},
	}
	order := []string{"other", "partial", "layout", "page"}

	var ran sync.Map
	failed := NewScheduler(2).Run(context.Background(), order, deps, func(_ context.Context, id string) error {
		ran.Store(id, true)
		if id == "partial" {
			return errors.NewSourceError("TEMPLATE", "bad partial", nil).WithEntity(id)
		}
		return nil
	})

	require.Len(t, failed, 3)
	assert.True(t, errors.IsSourceError(failed["layout"]))
	assert.Contains(t, failed["layout"].Error(), "partial")
	assert.Contains(t, failed["page"].Error(), "layout")

	_, ok := ran.Load("layout")
	assert.False(t, ok, "dependents of a failure are not run")
	_, ok = ran.Load("other")
	assert.True(t, ok)
}

func TestSchedulerBoundsParallelism(t *testing.T) {
	var order []string
	for i := 0; i < 32; i++ {
		order = append(order, fmt.Sprintf("page%02d", i))
	}

	var active, peak atomic.Int32
	failed := NewScheduler(3).Run(context.Background(), order, edgeMap{}, func(context.Context, string) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	assert.Empty(t, failed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestSchedulerSingleWorkerFollowsOrder(t *testing.T) {
	order := []string{"c", "a", "b"}
	var got []string
	NewScheduler(1).Run(context.Background(), order, edgeMap{}, func(_ context.Context, id string) error {
		got = append(got, id)
		return nil
	})
	assert.Equal(t, order, got)
}
