package engine

import (
	"context"

	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/types"
)

// ReportFunc receives the report of every finished cycle.
type ReportFunc func(*BuildReport)

// Orchestrator feeds change batches into a session. Batches arriving while
// a cycle runs are merged into one pending batch and supersede the running
// cycle, so at most one cycle runs and at most one waits. A requested full
// rebuild takes the same path and absorbs whatever batch is pending.
type Orchestrator struct {
	session  *Session
	logger   logging.Logger
	onReport []ReportFunc
	rebuild  chan struct{}
}

// NewOrchestrator creates an orchestrator for session.
func NewOrchestrator(session *Session, onReport ...ReportFunc) *Orchestrator {
	return &Orchestrator{
		session:  session,
		logger:   session.logger.WithComponent("orchestrator"),
		onReport: onReport,
		rebuild:  make(chan struct{}, 1),
	}
}

// OnReport adds a report receiver. It must be called before Run.
func (o *Orchestrator) OnReport(fn ReportFunc) {
	o.onReport = append(o.onReport, fn)
}

// RequestRebuild asks Run for a full build, superseding the running cycle.
// It never blocks; requests made before the rebuild starts are coalesced.
func (o *Orchestrator) RequestRebuild() {
	select {
	case o.rebuild <- struct{}{}:
	default:
	}
}

type cycleDone struct {
	report *BuildReport
	err    error
}

// Run processes batches until ctx is done or batches is closed and the
// last pending change has been built. Cycle errors are logged and the
// changes they covered are retried with the next batch; Run itself only
// returns ctx's error.
func (o *Orchestrator) Run(ctx context.Context, batches <-chan types.ChangeBatch) error {
	var pending types.ChangeBatch
	hasPending := false
	full := false
	running := false
	done := make(chan cycleDone, 1)

	for {
		if (hasPending || full) && !running {
			batch, rebuild := pending, full
			pending, hasPending, full = types.ChangeBatch{}, false, false
			running = true
			go func() {
				var d cycleDone
				if rebuild {
					d.report, d.err = o.session.FullBuild(ctx)
				} else {
					d.report, d.err = o.session.IncrementalBuild(ctx, batch)
				}
				done <- d
			}()
		}
		if batches == nil && !running {
			return nil
		}

		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return ctx.Err()

		case batch, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			if batch.Empty() {
				continue
			}
			pending.Merge(batch)
			hasPending = true
			if running {
				o.session.Supersede()
				o.logger.Debug(ctx, "superseding in-flight cycle", "paths", len(pending.Paths))
			}

		case <-o.rebuild:
			full = true
			if running {
				o.session.Supersede()
				o.logger.Debug(ctx, "superseding in-flight cycle for a full rebuild")
			}

		case d := <-done:
			running = false
			switch {
			case d.err == nil:
			case errors.IsIOError(d.err):
				o.logger.Warn(ctx, d.err, "build cycle failed on file access, retrying on next change")
			default:
				o.logger.Warn(ctx, d.err, "build cycle failed, retrying on next change")
			}
			if d.report != nil {
				for _, fn := range o.onReport {
					fn(d.report)
				}
			}
		}
	}
}
