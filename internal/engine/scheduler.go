package engine

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/types"
)

// TaskFunc processes one entity.
type TaskFunc func(ctx context.Context, id string) error

// EdgeSource lists the outgoing edges of an entity.
type EdgeSource interface {
	Edges(id string) []types.Edge
}

// Scheduler runs tasks on a bounded pool, admitting an entity only once
// every entity it depends on within the same run has completed. An entity
// whose dependency failed is not run; it fails with DEPENDENCY_FAILED.
type Scheduler struct {
	workers int
}

// NewScheduler creates a scheduler with the given parallelism.
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{workers: workers}
}

type completion struct {
	id  string
	err error
}

// Run executes run for every id in order, which must be topologically
// sorted over edges. Among ready entities the one earliest in order is
// admitted first. The returned map holds the failed ids.
func (s *Scheduler) Run(ctx context.Context, order []string, edges EdgeSource, run TaskFunc) map[string]error {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	pending := make(map[string]int, len(order))
	dependents := make(map[string][]string, len(order))
	for _, id := range order {
		for _, e := range edges.Edges(id) {
			if _, ok := pos[e.To]; !ok {
				continue
			}
			pending[id]++
			dependents[e.To] = append(dependents[e.To], id)
		}
	}

	var ready []string
	for _, id := range order {
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	failed := make(map[string]error)
	blockedBy := make(map[string]string)
	remaining := len(order)

	complete := func(id string, err error) {
		remaining--
		if err != nil {
			failed[id] = err
		}
		for _, dep := range dependents[id] {
			if err != nil {
				if _, ok := blockedBy[dep]; !ok {
					blockedBy[dep] = id
				}
			}
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
	}

	results := make(chan completion, len(order))
	var g errgroup.Group
	g.SetLimit(s.workers)
	inflight := 0

	for remaining > 0 {
		for len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			if dep, ok := blockedBy[id]; ok {
				complete(id, dependencyError(id, dep))
				continue
			}
			inflight++
			g.Go(func() error {
				results <- completion{id: id, err: run(ctx, id)}
				return nil
			})
		}
		if inflight == 0 {
			break
		}
		c := <-results
		inflight--
		complete(c.id, c.err)
	}
	_ = g.Wait()

	// only reachable when order was not topologically sorted
	for _, id := range order {
		if pending[id] > 0 {
			failed[id] = errors.NewInternalError("UNSCHEDULED", fmt.Sprintf("%s was never admitted", id), nil).WithEntity(id)
		}
	}
	return failed
}

func dependencyError(id, dep string) error {
	return errors.NewSourceError("DEPENDENCY_FAILED",
		fmt.Sprintf("%s depends on %s, which failed", id, dep), nil).WithEntity(id).WithContext("dependency", dep)
}
