package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/slate/internal/build"
	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/monitoring"
	"github.com/conneroisu/slate/internal/renderer"
	"github.com/conneroisu/slate/internal/scanner"
	"github.com/conneroisu/slate/internal/store"
	"github.com/conneroisu/slate/internal/types"
	"github.com/conneroisu/slate/internal/validation"
)

// rendered is the outcome of one scheduled entity.
type rendered struct {
	key build.CacheKey
	// skipped means the key matched the committed one and nothing ran
	skipped  bool
	computed bool
	out      *build.Output
	artifact *types.BuildArtifact
}

// cycle is the working state of one build cycle. It is discarded after
// commit or when superseded.
type cycle struct {
	s      *Session
	report *BuildReport
	gen    uint64
	logger logging.Logger

	changed  map[string]struct{}
	removed  map[string]struct{}
	affected map[string]struct{}
	// blocked are entities failed before rendering, by a route collision
	// or a generator that cannot expand
	blocked    map[string]error
	prevFailed map[string]errors.EntityError
	errs       *errors.ErrorCollector

	mu       sync.Mutex
	rendered map[string]*rendered
}

// resolver gives renders access to the graph and to dependency outputs
// through the build cache.
type resolver struct {
	*graph.Graph
	c *cycle
}

// Output returns the render-stage output of id.
func (r resolver) Output(ctx context.Context, id string) (*build.Output, error) {
	return r.c.render(ctx, id)
}

func (s *Session) runCycle(ctx context.Context, kind CycleKind, paths []string) (*BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setState(ctx, StateIdle)

	c := &cycle{
		s:          s,
		report:     newReport(kind),
		gen:        s.generation.Load(),
		changed:    make(map[string]struct{}),
		removed:    make(map[string]struct{}),
		affected:   make(map[string]struct{}),
		blocked:    make(map[string]error),
		prevFailed: make(map[string]errors.EntityError, len(s.failed)),
		errs:       errors.NewErrorCollector(),
		rendered:   make(map[string]*rendered),
	}
	for id, e := range s.failed {
		c.prevFailed[id] = e
	}

	logger := s.logger.With("cycle_id", c.report.CycleID, "kind", string(kind))
	c.logger = logger
	err := c.run(ctx, kind, paths)

	c.report.Errors = c.errs.GetErrors()
	c.report.Duration = time.Since(c.report.StartedAt)
	s.last.Store(c.report)
	s.record(c.report, err)

	switch {
	case err != nil:
		logger.Error(ctx, err, "build cycle aborted", "duration", c.report.Duration)
	case c.report.Superseded:
		logger.Info(ctx, "build cycle superseded", "duration", c.report.Duration)
	default:
		logger.Info(ctx, "build cycle committed",
			"generation", c.report.Generation,
			"scanned", c.report.Scanned,
			"rebuilt", c.report.Rebuilt,
			"skipped", c.report.Skipped,
			"written", len(c.report.Written),
			"removed", len(c.report.Removed),
			"errors", len(c.report.Errors),
			"duration", c.report.Duration)
	}
	return c.report, err
}

func (c *cycle) run(ctx context.Context, kind CycleKind, paths []string) error {
	s := c.s

	s.setState(ctx, StateScanning)
	if err := c.stage(ctx, "scan", func() error { return c.scan(ctx, kind, paths) }); err != nil {
		return err
	}

	s.setState(ctx, StateDiffing)
	_ = c.stage(ctx, "diff", func() error { c.diff(); return nil })

	s.setState(ctx, StateScheduling)
	var order []string
	if err := c.stage(ctx, "schedule", func() (err error) { order, err = c.schedule(); return err }); err != nil {
		return err
	}

	s.setState(ctx, StateRendering)
	_ = c.stage(ctx, "render", func() error {
		failed := NewScheduler(s.workers).Run(ctx, order, s.graph, c.process)
		for id, err := range failed {
			c.errs.Add(id, err)
		}
		return nil
	})
	if err := c.fatal(ctx); err != nil {
		return err
	}
	if c.superseded() {
		return nil
	}

	s.setState(ctx, StateFinishing)
	_ = c.stage(ctx, "finish", func() error { c.finish(ctx); return nil })
	if err := c.fatal(ctx); err != nil {
		return err
	}
	if c.superseded() {
		return nil
	}

	s.setState(ctx, StateCommitted)
	return c.stage(ctx, "commit", func() error { return c.commit(ctx, kind) })
}

func (c *cycle) stage(ctx context.Context, name string, fn func() error) error {
	op := logging.StartOperation(c.logger, "stage."+name)
	err := fn()
	c.s.recorder.ObserveStageDuration(name, op.End(ctx, err))
	return err
}

// fatal aborts the cycle on cancellation or on an error that signals a
// bug rather than bad input.
func (c *cycle) fatal(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range c.errs.GetErrors() {
		if errors.IsFatal(e.Err) {
			return e.Err
		}
	}
	return nil
}

func (c *cycle) superseded() bool {
	if c.s.generation.Load() == c.gen {
		return false
	}
	c.report.Superseded = true
	return true
}

// scan records what changed on disk and applies it to the graph:
// removals first, then additions and updates, then edge derivation.
func (c *cycle) scan(ctx context.Context, kind CycleKind, paths []string) error {
	s := c.s
	var (
		result *scanner.ScanResult
		err    error
	)
	if kind == CycleFull {
		result, err = s.scanner.Scan(ctx)
	} else {
		result, err = s.scanner.Rescan(ctx, paths, scanner.KnownFunc(func(id string) (*types.SourceFile, bool) {
			n, ok := s.graph.Node(id)
			if !ok || n.File == nil {
				return nil, false
			}
			return n.File, true
		}))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.TypeOf(err) == errors.ErrorTypeInternal {
			err = errors.WrapIO(err, "SCAN", "scanning sources failed")
		}
		return err
	}

	removed := append([]string(nil), result.Removed...)
	for _, prefix := range result.RemovedDirs {
		removed = append(removed, s.graph.WithPrefix(prefix)...)
	}
	if kind == CycleFull {
		present := make(map[string]struct{}, len(result.Files))
		for _, f := range result.Files {
			present[f.ID] = struct{}{}
		}
		for _, fe := range result.Errors {
			present[fe.ID] = struct{}{}
		}
		for _, id := range s.graph.IDs() {
			if _, ok := present[id]; !ok && !content.IsGenerated(id) {
				removed = append(removed, id)
			}
		}
	}

	for _, id := range removed {
		if s.graph.Remove(id) {
			c.removed[id] = struct{}{}
			c.changed[id] = struct{}{}
		}
		delete(s.sourceErrs, id)
	}

	// manifests first, so pages parse against the section they sit in
	files := slices.Clone(result.Files)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Kind == types.KindSection && files[j].Kind != types.KindSection
	})
	sectionDirs := make(map[string]struct{})
	for id := range c.removed {
		if rel, ok := strings.CutPrefix(id, types.PrefixContent); ok && content.IsSectionFile(rel) {
			sectionDirs[content.SectionDir(rel)] = struct{}{}
		}
	}

	parsed := make(map[string]struct{}, len(files))
	for _, f := range files {
		c.changed[f.ID] = struct{}{}
		if prev, ok := s.graph.Node(f.ID); ok && prev.File != nil && prev.File.Hash == f.Hash && prev.File.Path == f.Path {
			if _, failing := s.sourceErrs[f.ID]; !failing {
				continue
			}
		}
		c.parse(f)
		parsed[f.ID] = struct{}{}
		if f.Kind == types.KindSection {
			sectionDirs[content.SectionDir(f.Rel)] = struct{}{}
		}
	}
	if len(sectionDirs) > 0 {
		for _, n := range s.graph.Nodes() {
			if n.Kind != types.KindContent || n.File == nil || content.IsGenerated(n.ID) {
				continue
			}
			if _, done := parsed[n.ID]; done {
				continue
			}
			if _, ok := sectionDirs[content.SectionDir(n.File.Rel)]; ok {
				c.parse(n.File)
				c.changed[n.ID] = struct{}{}
			}
		}
	}

	for _, fe := range result.Errors {
		if fe.ID == "" || !s.graph.Has(fe.ID) {
			id := fe.ID
			if id == "" {
				id = fe.Path
			}
			c.errs.Add(id, fe.Err)
			continue
		}
		s.sourceErrs[fe.ID] = fe.Err
		c.changed[fe.ID] = struct{}{}
	}

	c.report.Scanned = len(result.Files) + len(c.removed)
	c.expand()
	c.refreshSections()
	c.deriveEdges()
	return nil
}

func (c *cycle) parse(f *types.SourceFile) {
	s := c.s
	payload, err := s.renderer.Parse(f, s.graph)
	if err != nil {
		s.sourceErrs[f.ID] = err
	} else {
		delete(s.sourceErrs, f.ID)
	}
	s.graph.InsertOrReplace(&graph.Node{ID: f.ID, Kind: f.Kind, Hash: renderer.NodeHash(f, payload), File: f, Payload: payload})
}

// expand brings generated pages in line with their generators. A
// generator that fails to parse or expand keeps its previous pages.
func (c *cycle) expand() {
	s := c.s
	g := s.graph
	want := make(map[string]struct{})
	keep := make(map[string]struct{})
	for _, n := range g.Nodes() {
		if content.IsGenerated(n.ID) || n.Kind != types.KindContent {
			continue
		}
		if _, failing := s.sourceErrs[n.ID]; failing {
			keep[n.ID] = struct{}{}
			continue
		}
		if _, ok := renderer.Generator(n); !ok {
			continue
		}
		nodes, err := s.renderer.Expand(n, g)
		if err != nil {
			c.blocked[n.ID] = err
			c.changed[n.ID] = struct{}{}
			keep[n.ID] = struct{}{}
			continue
		}
		for _, child := range nodes {
			want[child.ID] = struct{}{}
			if prev, ok := g.Node(child.ID); ok && prev.Hash == child.Hash {
				continue
			}
			g.InsertOrReplace(child)
			c.changed[child.ID] = struct{}{}
		}
	}

	for _, id := range g.IDs() {
		if !content.IsGenerated(id) {
			continue
		}
		if _, ok := want[id]; ok {
			continue
		}
		if _, ok := keep[content.ParentID(id)]; ok {
			continue
		}
		g.Remove(id)
		c.removed[id] = struct{}{}
		c.changed[id] = struct{}{}
	}
}

// refreshSections recomputes section entries after pages settled. A
// section whose entries changed counts as changed itself.
func (c *cycle) refreshSections() {
	g := c.s.graph
	for _, n := range g.Nodes() {
		if n.Kind != types.KindSection {
			continue
		}
		if next, ok := c.s.renderer.RefreshSection(n, g); ok {
			g.InsertOrReplace(next)
			c.changed[n.ID] = struct{}{}
		}
	}
}

// deriveEdges re-declares the edges of changed nodes, then refreshes
// nodes whose edges depend on the rest of the graph and nodes with
// dangling references.
func (c *cycle) deriveEdges() {
	g := c.s.graph
	for id := range c.changed {
		if n, ok := g.Node(id); ok {
			g.SetEdges(id, c.s.renderer.Edges(n, g))
		}
	}

	for _, n := range g.Nodes() {
		if _, ok := c.changed[n.ID]; ok {
			continue
		}
		if !renderer.GraphDerived(n) && len(g.Dangling(n.ID)) == 0 {
			continue
		}
		before := g.Edges(n.ID)
		g.SetEdges(n.ID, c.s.renderer.Edges(n, g))
		if !slices.Equal(before, g.Edges(n.ID)) {
			c.changed[n.ID] = struct{}{}
		}
	}
}

// diff computes the affected set: everything changed since the last
// commit, everything failing, and everything depending on either.
func (c *cycle) diff() {
	s := c.s
	for id := range c.changed {
		s.dirty[id] = struct{}{}
	}

	seeds := make([]string, 0, len(s.dirty)+len(c.prevFailed))
	for id := range s.dirty {
		seeds = append(seeds, id)
		if !s.graph.Has(id) {
			c.removed[id] = struct{}{}
		}
	}
	for id := range c.prevFailed {
		seeds = append(seeds, id)
	}
	for _, id := range seeds {
		if s.graph.Has(id) {
			c.affected[id] = struct{}{}
		}
	}
	for _, id := range s.graph.DependentsOf(seeds...) {
		c.affected[id] = struct{}{}
	}

	c.checkRoutes()
	c.report.Affected = len(c.affected)
}

// checkRoutes fails every entity claiming a route an earlier id already
// claims.
func (c *cycle) checkRoutes() {
	claims := make(map[string][]string)
	for _, n := range c.s.graph.Nodes() {
		if _, failing := c.s.sourceErrs[n.ID]; failing {
			continue
		}
		if route := renderer.RouteOf(n, c.s.cfg.Build.Drafts); route != "" {
			claims[route] = append(claims[route], n.ID)
		}
	}
	for route, ids := range claims {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		for _, id := range ids[1:] {
			c.blocked[id] = errors.NewSourceError("ROUTE_COLLISION",
				fmt.Sprintf("route %s is already produced by %s", route, ids[0]), nil).
				WithEntity(id).WithContext("route", route)
			c.affected[id] = struct{}{}
		}
	}
}

// schedule orders the affected set. Entities in or behind a dependency
// cycle fail; the cycle aborts only when nothing else is left.
func (c *cycle) schedule() ([]string, error) {
	g := c.s.graph
	subset := make([]string, 0, len(c.affected))
	for id := range c.affected {
		subset = append(subset, id)
	}
	sort.Strings(subset)

	order, err := g.TopologicalOrder(subset)
	if err == nil {
		return order, nil
	}
	var cerr *graph.CycleError
	if !errors.As(err, &cerr) {
		return nil, errors.NewInternalError("ORDER", "ordering affected entities failed", err)
	}

	stuck := make(map[string]struct{})
	for _, id := range cerr.Members() {
		stuck[id] = struct{}{}
		c.errs.Add(id, errors.NewSourceError("CYCLE",
			fmt.Sprintf("%s is part of a dependency cycle", id), cerr).WithEntity(id).
			WithContext("structural", structuralCycle(g, cerr, id)))
	}
	for _, id := range cerr.Blocked {
		stuck[id] = struct{}{}
		c.errs.Add(id, errors.NewSourceError("CYCLE",
			fmt.Sprintf("%s depends on a dependency cycle", id), cerr).WithEntity(id))
	}

	rest := make([]string, 0, len(subset))
	for _, id := range subset {
		if _, ok := stuck[id]; !ok {
			rest = append(rest, id)
		}
	}
	if len(rest) == 0 {
		return nil, errors.Wrap(cerr, errors.ErrorTypeSource, "CYCLE", "every affected entity is part of or blocked by a dependency cycle")
	}
	order, err = g.TopologicalOrder(rest)
	if err != nil {
		return nil, errors.NewInternalError("ORDER", "ordering entities outside the cycle failed", err)
	}
	return order, nil
}

// structuralCycle reports whether a loop through id runs only over
// include and extends edges, which no template language can render.
func structuralCycle(g *graph.Graph, cerr *graph.CycleError, id string) bool {
	for _, cyc := range cerr.Cycles {
		if !slices.Contains(cyc, id) {
			continue
		}
		structural := true
		for i := 0; i+1 < len(cyc); i++ {
			for _, e := range g.Edges(cyc[i]) {
				if e.To == cyc[i+1] && !e.Kind.Structural() {
					structural = false
				}
			}
		}
		if structural {
			return true
		}
	}
	return false
}

// process renders one scheduled entity. An entity whose key equals the
// committed one is a no-op.
func (c *cycle) process(ctx context.Context, id string) error {
	s := c.s
	if err, ok := c.blocked[id]; ok {
		return err
	}
	if err, ok := s.sourceErrs[id]; ok {
		return err
	}
	if _, ok := s.graph.Node(id); !ok {
		return errors.NewInternalError("MISSING_NODE", fmt.Sprintf("%s was scheduled but is not in the graph", id), nil).WithEntity(id)
	}

	key, _ := build.ComputeKey(s.graph, id, s.salt)
	if prev, ok := s.keys[id]; ok && prev == key {
		if _, failing := c.prevFailed[id]; !failing {
			c.put(id, &rendered{key: key, skipped: true})
			return nil
		}
	}

	out, err := c.render(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if r, ok := c.rendered[id]; ok {
		r.out = out
	} else {
		c.rendered[id] = &rendered{key: key, out: out}
	}
	c.mu.Unlock()
	return nil
}

// render returns the render-stage output of id from the cache, computing
// it on a miss.
func (c *cycle) render(ctx context.Context, id string) (*build.Output, error) {
	s := c.s
	n, ok := s.graph.Node(id)
	if !ok {
		return nil, errors.NewSourceError("UNRESOLVED", fmt.Sprintf("%s does not exist", id), nil).WithEntity(id)
	}
	if err, ok := s.sourceErrs[id]; ok {
		return nil, err
	}
	key, _ := build.ComputeKey(s.graph, id, s.salt)
	out, hit, err := s.cache.GetOrCompute(ctx, build.StageRender, key, n.Kind, func(ctx context.Context) (*build.Output, error) {
		return s.renderer.Render(ctx, n, resolver{Graph: s.graph, c: c})
	})
	s.recorder.IncCacheLookup(build.StageRender.String(), hit)
	if err != nil {
		return nil, err
	}
	if !hit {
		c.mu.Lock()
		if r, ok := c.rendered[id]; ok {
			r.computed = true
		} else {
			c.rendered[id] = &rendered{key: key, computed: true}
		}
		c.mu.Unlock()
	}
	return out, nil
}

func (c *cycle) put(id string, r *rendered) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rendered[id] = r
}

// finish runs the finishing pipeline on every routed output rendered in
// this cycle.
func (c *cycle) finish(ctx context.Context) {
	s := c.s
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, id := range c.renderedIDs() {
		r := c.rendered[id]
		if r.skipped || r.out == nil || r.out.Route == "" || c.errs.Has(id) {
			continue
		}
		g.Go(func() error {
			art, err := c.finishOne(ctx, id, r)
			if err != nil {
				c.errs.Add(id, err)
				return nil
			}
			c.mu.Lock()
			r.artifact = art
			c.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (c *cycle) finishOne(ctx context.Context, id string, r *rendered) (*types.BuildArtifact, error) {
	s := c.s
	route := r.out.Route
	if err := validation.ValidateRoute(route); err != nil {
		return nil, errors.WrapSource(err, id, "INVALID_ROUTE", fmt.Sprintf("route %q cannot be published", route))
	}
	out, hit, err := s.cache.GetOrCompute(ctx, build.StageFinish, r.key, r.out.Kind, func(ctx context.Context) (*build.Output, error) {
		art, err := s.finisher.Finish(route, r.out.ContentType, r.out.Body)
		if err != nil {
			return nil, errors.WrapTransform(err, id, "FINISH", "finishing artifact failed")
		}
		return &build.Output{Route: route, ContentType: art.ContentType, Artifact: art}, nil
	})
	s.recorder.IncCacheLookup(build.StageFinish.String(), hit)
	if err != nil {
		return nil, err
	}
	if !hit {
		c.mu.Lock()
		r.computed = true
		c.mu.Unlock()
	}
	return out.Artifact, nil
}

// renderedIDs returns the ids that completed the render stage, sorted.
func (c *cycle) renderedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rendered))
	for id := range c.rendered {
		if _, ok := c.affected[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// commit publishes the cycle's artifacts in one store swap, then brings
// the output tree and the session bookkeeping in line with it.
func (c *cycle) commit(ctx context.Context, kind CycleKind) error {
	s := c.s
	snapshot := s.store.Snapshot()

	var upserts []*store.Entry
	var removeIDs []string
	for id := range c.removed {
		removeIDs = append(removeIDs, id)
	}

	for _, id := range c.renderedIDs() {
		r := c.rendered[id]
		if c.errs.Has(id) {
			continue
		}
		if r.skipped {
			c.report.Skipped++
			continue
		}
		if r.computed {
			c.report.Rebuilt++
		} else {
			c.report.Skipped++
		}
		if r.artifact != nil {
			upserts = append(upserts, &store.Entry{ID: id, Key: r.key, Artifact: r.artifact})
		} else if _, published := snapshot.Entry(id); published {
			removeIDs = append(removeIDs, id)
		}
	}

	// a collision loser must give up the contested route
	for id, err := range c.blocked {
		var se *errors.SlateError
		if !errors.As(err, &se) || se.Code != "ROUTE_COLLISION" {
			continue
		}
		if e, ok := snapshot.Entry(id); ok && e.Route() == se.Context["route"] {
			removeIDs = append(removeIDs, id)
		}
	}
	sort.Strings(removeIDs)

	next, diff := s.store.Commit(upserts, removeIDs)

	for _, id := range c.renderedIDs() {
		if !c.errs.Has(id) {
			s.keys[id] = c.rendered[id].key
		}
	}
	for id := range c.removed {
		delete(s.keys, id)
		delete(s.failed, id)
	}
	for id := range c.affected {
		delete(s.failed, id)
	}
	for _, e := range c.errs.GetErrors() {
		if s.graph.Has(e.ID) {
			s.failed[e.ID] = e
		}
	}
	s.dirty = make(map[string]struct{})
	s.cache.Prune(s.graph.Has)

	c.report.Generation = next.Generation
	for _, e := range diff.Written {
		c.report.Written = append(c.report.Written, e.Route())
	}
	c.report.Removed = diff.Removed
	s.recorder.SetArtifacts(next.Len())

	return c.write(ctx, kind, next, diff)
}

// write mirrors the commit onto disk. After a failed write the next commit
// rewrites every published artifact.
func (c *cycle) write(ctx context.Context, kind CycleKind, next *store.Snapshot, diff store.Diff) error {
	s := c.s
	if s.writer == nil {
		return nil
	}
	if kind == CycleFull || s.resync {
		diff = store.Diff{Written: next.Entries(), Removed: diff.Removed}
	}
	if err := s.writer.Apply(diff); err != nil {
		s.resync = true
		return errors.Wrap(err, errors.ErrorTypeIO, "WRITE", "writing output failed")
	}
	s.resync = false

	if kind == CycleFull && s.cfg.Output.Clean {
		removed, err := s.writer.Clean(next)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			s.logger.Debug(ctx, "removed stale output files", "count", len(removed))
		}
	}
	return nil
}

func (s *Session) record(report *BuildReport, err error) {
	outcome := monitoring.OutcomeCommitted
	switch {
	case err != nil:
		outcome = monitoring.OutcomeFailed
	case report.Superseded:
		outcome = monitoring.OutcomeSuperseded
	}
	s.recorder.IncCycleOutcome(outcome)
	s.recorder.ObserveCycleDuration(report.Duration)
	s.recorder.AddEntityResults(monitoring.ResultRebuilt, report.Rebuilt)
	s.recorder.AddEntityResults(monitoring.ResultSkipped, report.Skipped)
	s.recorder.AddEntityResults(monitoring.ResultFailed, len(report.Errors))
	s.recorder.AddEntityResults(monitoring.ResultRemoved, len(report.Removed))

	s.metrics.RecordCycle(build.CycleResult{
		Duration:   report.Duration,
		Scanned:    report.Scanned,
		Rebuilt:    report.Rebuilt,
		Skipped:    report.Skipped,
		Errors:     len(report.Errors),
		Superseded: report.Superseded,
	})
}
