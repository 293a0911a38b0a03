// Package engine drives incremental builds. A Session owns the dependency
// graph, the build cache and the artifact store for one source tree; its
// build cycles move through a fixed sequence of states and publish their
// results with a single atomic commit.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/slate/internal/build"
	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/finish"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/monitoring"
	"github.com/conneroisu/slate/internal/renderer"
	"github.com/conneroisu/slate/internal/scanner"
	"github.com/conneroisu/slate/internal/store"
	"github.com/conneroisu/slate/internal/types"
	"github.com/conneroisu/slate/internal/version"
	"github.com/conneroisu/slate/internal/watcher"
)

// Option configures a Session.
type Option func(*Session)

// WithRecorder sets the metrics recorder.
func WithRecorder(r monitoring.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithWorkers overrides build.workers.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithoutOutput keeps artifacts in memory only.
func WithoutOutput() Option {
	return func(s *Session) {
		s.writer = nil
	}
}

// Session is the state of one build session. Cycles are serialized;
// artifact reads never block on them.
type Session struct {
	cfg      *config.Config
	logger   logging.Logger
	scanner  *scanner.Scanner
	graph    *graph.Graph
	cache    *build.BuildCache
	store    *store.Store
	writer   *store.Writer
	renderer *renderer.Renderer
	finisher *finish.Finisher
	recorder monitoring.Recorder
	metrics  *build.BuildMetrics
	salt     string
	workers  int

	// mu serializes cycles and guards the fields below
	mu sync.Mutex
	// keys are the committed cache keys of every entity built successfully
	keys map[string]build.CacheKey
	// failed holds the entities whose last build failed
	failed map[string]errors.EntityError
	// sourceErrs are read and parse failures that outlive one cycle
	sourceErrs map[string]error
	// dirty are ids changed by cycles that have not committed yet
	dirty map[string]struct{}
	// resync forces the next commit to rewrite the whole output tree
	resync bool

	last       atomic.Pointer[BuildReport]
	state      atomic.Int32
	generation atomic.Uint64
}

// NewSession creates a session for cfg. Output is written to the configured
// output directory unless WithoutOutput is given.
func NewSession(cfg *config.Config, logger logging.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	finisher := finish.New(cfg.Finish)
	s := &Session{
		cfg:        cfg,
		logger:     logger.WithComponent("engine"),
		scanner:    scanner.New(cfg, logger),
		graph:      graph.New(),
		cache:      build.NewBuildCache(),
		store:      store.New(),
		writer:     store.NewWriter(cfg.OutputDir(), compressedDir(cfg)),
		renderer:   renderer.New(cfg, finisher),
		finisher:   finisher,
		recorder:   monitoring.NoopRecorder{},
		metrics:    build.NewBuildMetrics(),
		salt:       version.CacheSchema + ":" + cfg.Fingerprint(),
		workers:    cfg.Build.Workers,
		keys:       make(map[string]build.CacheKey),
		failed:     make(map[string]errors.EntityError),
		sourceErrs: make(map[string]error),
		dirty:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func compressedDir(cfg *config.Config) string {
	if cfg.Output.CompressedDir == "" {
		return ""
	}
	if filepath.IsAbs(cfg.Output.CompressedDir) {
		return filepath.Clean(cfg.Output.CompressedDir)
	}
	return filepath.Join(cfg.OutputDir(), cfg.Output.CompressedDir)
}

// FullBuild scans the whole source tree and builds everything in it.
func (s *Session) FullBuild(ctx context.Context) (*BuildReport, error) {
	return s.runCycle(ctx, CycleFull, nil)
}

// IncrementalBuild rebuilds what the paths in batch affect.
func (s *Session) IncrementalBuild(ctx context.Context, batch types.ChangeBatch) (*BuildReport, error) {
	return s.runCycle(ctx, CycleIncremental, batch.Paths)
}

// CurrentArtifact returns the artifact published at route.
func (s *Session) CurrentArtifact(route string) (*types.BuildArtifact, bool) {
	return s.store.Get(route)
}

// Snapshot returns the committed artifact snapshot.
func (s *Session) Snapshot() *store.Snapshot {
	return s.store.Snapshot()
}

// State returns the stage the current cycle is in.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Supersede marks the in-flight cycle, if any, as stale. It completes its
// work but does not commit.
func (s *Session) Supersede() {
	s.generation.Add(1)
}

// LastReport returns the report of the most recent cycle.
func (s *Session) LastReport() *BuildReport {
	return s.last.Load()
}

// Errors returns the entities currently failing, sorted by id.
func (s *Session) Errors() []errors.EntityError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedFailures(s.failed)
}

// Metrics returns the cumulative cycle metrics.
func (s *Session) Metrics() build.BuildMetrics {
	return s.metrics.GetSnapshot()
}

// CacheStats returns build cache statistics.
func (s *Session) CacheStats() build.CacheStats {
	return s.cache.Stats()
}

// Computations returns how many times the entity was rendered or finished.
func (s *Session) Computations(id string) int {
	return s.cache.Computations(id)
}

// Graph returns the dependency graph.
func (s *Session) Graph() *graph.Graph {
	return s.graph
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// HighlightCSS is the stylesheet for highlighted code blocks.
func (s *Session) HighlightCSS() string {
	return s.renderer.HighlightCSS()
}

// Verify checks that every published artifact was built from the key its
// entity has in the current graph. Entities that are currently failing
// keep serving their previous artifact and are not checked.
func (s *Session) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for _, e := range s.store.Snapshot().Entries() {
		if _, failing := s.failed[e.ID]; failing {
			continue
		}
		key, ok := build.ComputeKey(s.graph, e.ID, s.salt)
		if !ok || key != e.Key {
			stale = append(stale, e.ID)
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		return errors.NewCacheConsistencyError("STALE_ARTIFACT",
			fmt.Sprintf("published artifacts no longer match their dependencies: %s", strings.Join(stale, ", ")))
	}
	return nil
}

// Watch watches the source tree and returns its change batches. The output
// directory is ignored when it lies inside the source root.
func (s *Session) Watch(ctx context.Context) (<-chan types.ChangeBatch, error) {
	root := s.scanner.Root()
	ignore := append([]string(nil), s.cfg.Watch.Ignore...)
	if rel, err := filepath.Rel(root, s.cfg.OutputDir()); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		ignore = append(ignore, filepath.ToSlash(rel))
	}

	fw, err := watcher.NewFileWatcher(root, s.cfg.Watch.Debounce, ignore, s.logger)
	if err != nil {
		return nil, errors.WrapIO(err, "WATCH", "watching source root failed")
	}
	if err := fw.Start(ctx); err != nil {
		return nil, errors.WrapIO(err, "WATCH", "watching source root failed")
	}
	for _, dir := range s.scanner.Dirs() {
		if rel, err := filepath.Rel(root, dir); err == nil && !strings.HasPrefix(rel, "..") {
			continue
		}
		if err := fw.AddRecursive(dir); err != nil {
			s.logger.Warn(ctx, err, "not watching source directory", "dir", dir)
		}
	}
	return fw.Batches(), nil
}

func (s *Session) setState(ctx context.Context, st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug(ctx, "state", "from", prev.String(), "to", st.String())
	}
}

func sortedFailures(m map[string]errors.EntityError) []errors.EntityError {
	out := make([]errors.EntityError, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
