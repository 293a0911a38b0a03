// Package build provides the content-addressed build cache, cache key
// derivation, and build metrics.
package build

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/types"
)

// Stage separates the two kinds of cached work for one key.
type Stage int

const (
	// StageRender holds the output of a parser/renderer adapter.
	StageRender Stage = iota
	// StageFinish holds a finished artifact.
	StageFinish
)

// String returns the string representation of the stage
func (s Stage) String() string {
	if s == StageFinish {
		return "finish"
	}
	return "render"
}

// Output is an immutable cached result.
type Output struct {
	ID    string
	Kind  types.Kind
	Stage Stage
	// Body is the rendered bytes for routed entities and styles
	Body        []byte
	ContentType string
	// Route is empty for entities that produce no artifact
	Route string
	// Value carries structured results such as decoded data
	Value any
	// Artifact is set for StageFinish outputs
	Artifact *types.BuildArtifact
}

// ComputeFunc produces the output for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (*Output, error)

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// HitRate returns the fraction of lookups served from the cache.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BuildCache maps cache keys to outputs. Each key is computed at most once:
// concurrent requests for a missing key share a single computation. Failed
// computations are not stored. Entries are only dropped by Prune.
type BuildCache struct {
	entries      map[string]*Output
	computations map[string]int
	mutex        sync.RWMutex
	group        singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewBuildCache creates an empty cache.
func NewBuildCache() *BuildCache {
	return &BuildCache{
		entries:      make(map[string]*Output),
		computations: make(map[string]int),
	}
}

func slot(stage Stage, key CacheKey) string {
	return stage.String() + ":" + key.String()
}

// Get returns the stored output for key without computing.
func (bc *BuildCache) Get(stage Stage, key CacheKey) (*Output, bool) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	out, ok := bc.entries[slot(stage, key)]
	return out, ok
}

// GetOrCompute returns the output stored for key, running compute on a
// miss. hit is true when this call did not run compute itself.
func (bc *BuildCache) GetOrCompute(ctx context.Context, stage Stage, key CacheKey, kind types.Kind, compute ComputeFunc) (out *Output, hit bool, err error) {
	s := slot(stage, key)

	if out, ok := bc.Get(stage, key); ok {
		if err := checkShape(out, stage, key, kind); err != nil {
			return nil, false, err
		}
		bc.hits.Add(1)
		return out, true, nil
	}

	computed := false
	v, err, _ := bc.group.Do(s, func() (interface{}, error) {
		// a caller that finished between our lookup and Do has stored it
		if out, ok := bc.Get(stage, key); ok {
			return out, nil
		}

		computed = true
		bc.mutex.Lock()
		bc.computations[key.ID]++
		bc.mutex.Unlock()

		out, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, errors.NewInternalError("NIL_OUTPUT", fmt.Sprintf("compute for %s returned no output", key.ID), nil)
		}
		out.ID = key.ID
		out.Kind = kind
		out.Stage = stage

		bc.mutex.Lock()
		bc.entries[s] = out
		bc.mutex.Unlock()
		return out, nil
	})

	if computed {
		bc.misses.Add(1)
	} else {
		bc.hits.Add(1)
	}
	if err != nil {
		return nil, !computed, err
	}

	out = v.(*Output)
	if err := checkShape(out, stage, key, kind); err != nil {
		return nil, false, err
	}
	return out, !computed, nil
}

func checkShape(out *Output, stage Stage, key CacheKey, kind types.Kind) error {
	if out.ID != key.ID || out.Kind != kind || out.Stage != stage {
		return errors.NewCacheConsistencyError("KEY_SHAPE",
			fmt.Sprintf("key %s resolved to %s output for %s (%s), want %s for %s",
				key, out.Stage, out.ID, out.Kind, stage, kind)).WithEntity(key.ID)
	}
	return nil
}

// Prune drops every entry whose entity is no longer live and returns how
// many were removed.
func (bc *BuildCache) Prune(live func(id string) bool) int {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	removed := 0
	for s, out := range bc.entries {
		if !live(out.ID) {
			delete(bc.entries, s)
			removed++
		}
	}
	for id := range bc.computations {
		if !live(id) {
			delete(bc.computations, id)
		}
	}
	return removed
}

// Computations returns how many times a compute function ran for id.
func (bc *BuildCache) Computations(id string) int {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.computations[id]
}

// Stats returns cache statistics.
func (bc *BuildCache) Stats() CacheStats {
	bc.mutex.RLock()
	entries := len(bc.entries)
	bc.mutex.RUnlock()

	return CacheStats{
		Entries: entries,
		Hits:    bc.hits.Load(),
		Misses:  bc.misses.Load(),
	}
}

// put stores out under key directly. Tests use it to plant entries.
func (bc *BuildCache) put(stage Stage, key CacheKey, out *Output) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	bc.entries[slot(stage, key)] = out
}
