package watcher

import (
	"context"
	"sort"
	"time"

	"github.com/conneroisu/slate/internal/types"
)

// Debouncer groups rapid file changes together. A batch is emitted once
// no new path has arrived for the quiet window. Paths are never dropped:
// while the consumer is busy, settled batches are merged into the one
// waiting to be delivered.
type Debouncer struct {
	window time.Duration
	in     chan string
	out    chan types.ChangeBatch
	done   chan struct{}
	now    func() time.Time
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		in:     make(chan string, 256),
		out:    make(chan types.ChangeBatch),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Add records a changed path. It blocks only while the run loop is
// folding earlier paths and returns immediately once Run has stopped.
func (d *Debouncer) Add(path string) {
	select {
	case d.in <- path:
	case <-d.done:
	}
}

// Batches delivers coalesced batches. It is closed when Run returns.
func (d *Debouncer) Batches() <-chan types.ChangeBatch {
	return d.out
}

// Run folds paths into batches until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	defer close(d.out)
	defer close(d.done)

	timer := time.NewTimer(d.window)
	timer.Stop()

	pending := map[string]struct{}{}
	events := 0
	var ready *types.ChangeBatch

	for {
		// a nil channel disables delivery until a batch has settled
		var out chan<- types.ChangeBatch
		var next types.ChangeBatch
		if ready != nil {
			out = d.out
			next = *ready
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case p := <-d.in:
			pending[p] = struct{}{}
			events++
			timer.Reset(d.window)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := types.ChangeBatch{Paths: make([]string, 0, len(pending)), Events: events, At: d.now()}
			for p := range pending {
				batch.Paths = append(batch.Paths, p)
			}
			sort.Strings(batch.Paths)
			pending = map[string]struct{}{}
			events = 0

			if ready == nil {
				ready = &batch
			} else {
				ready.Merge(batch)
			}

		case out <- next:
			ready = nil
		}
	}
}
