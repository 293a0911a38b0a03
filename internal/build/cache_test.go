package build

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/types"
)

func TestGetOrComputeRunsOncePerKey(t *testing.T) {
	cache := NewBuildCache()
	key := CacheKey{ID: "templates/partials/nav.html", Digest: "d1"}

	var calls atomic.Int32
	compute := func(ctx context.Context) (*Output, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &Output{Body: []byte("<nav></nav>")}, nil
	}

	var wg sync.WaitGroup
	hits := atomic.Int32{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, hit, err := cache.GetOrCompute(context.Background(), StageRender, key, types.KindPartial, compute)
			assert.NoError(t, err)
			assert.Equal(t, "<nav></nav>", string(out.Body))
			if hit {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(49), hits.Load())
	assert.Equal(t, 1, cache.Computations(key.ID))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(49), stats.Hits)
	assert.InDelta(t, 0.98, stats.HitRate(), 0.001)
}

func TestGetOrComputeStagesAreSeparate(t *testing.T) {
	cache := NewBuildCache()
	key := CacheKey{ID: "content/a.md", Digest: "d"}

	render, _, err := cache.GetOrCompute(context.Background(), StageRender, key, types.KindContent,
		func(ctx context.Context) (*Output, error) { return &Output{Body: []byte("raw")}, nil })
	require.NoError(t, err)

	finish, hit, err := cache.GetOrCompute(context.Background(), StageFinish, key, types.KindContent,
		func(ctx context.Context) (*Output, error) { return &Output{Body: []byte("min")}, nil })
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, "raw", string(render.Body))
	assert.Equal(t, "min", string(finish.Body))
	assert.Equal(t, StageFinish, finish.Stage)
	assert.Equal(t, 2, cache.Computations("content/a.md"))
}

func TestGetOrComputeErrorsAreNotStored(t *testing.T) {
	cache := NewBuildCache()
	key := CacheKey{ID: "content/a.md", Digest: "d"}
	boom := errors.New("boom")

	_, _, err := cache.GetOrCompute(context.Background(), StageRender, key, types.KindContent,
		func(ctx context.Context) (*Output, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	out, hit, err := cache.GetOrCompute(context.Background(), StageRender, key, types.KindContent,
		func(ctx context.Context) (*Output, error) { return &Output{Body: []byte("ok")}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", string(out.Body))
}

func TestGetOrComputeShapeMismatch(t *testing.T) {
	cache := NewBuildCache()
	key := CacheKey{ID: "content/a.md", Digest: "d"}
	cache.put(StageRender, key, &Output{ID: "content/a.md", Kind: types.KindStyle, Stage: StageRender})

	_, _, err := cache.GetOrCompute(context.Background(), StageRender, key, types.KindContent,
		func(ctx context.Context) (*Output, error) {
			t.Fatal("compute must not run on a stored key")
			return nil, nil
		})
	require.Error(t, err)
	assert.True(t, slerrors.IsFatal(err))
	assert.Equal(t, slerrors.ErrorTypeCacheConsistency, slerrors.TypeOf(err))
}

func TestPrune(t *testing.T) {
	cache := NewBuildCache()
	for _, id := range []string{"content/a.md", "content/b.md"} {
		_, _, err := cache.GetOrCompute(context.Background(), StageRender, CacheKey{ID: id, Digest: "x"}, types.KindContent,
			func(ctx context.Context) (*Output, error) { return &Output{}, nil })
		require.NoError(t, err)
	}

	removed := cache.Prune(func(id string) bool { return id == "content/a.md" })
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Stats().Entries)
	assert.Equal(t, 0, cache.Computations("content/b.md"))
	_, ok := cache.Get(StageRender, CacheKey{ID: "content/a.md", Digest: "x"})
	assert.True(t, ok)
}

func TestComputeKey(t *testing.T) {
	g := graph.New()
	g.InsertOrReplace(&graph.Node{ID: "templates/partials/nav.html", Kind: types.KindPartial, Hash: "n1"})
	g.InsertOrReplace(&graph.Node{ID: "templates/base.html", Kind: types.KindTemplate, Hash: "b1"})
	g.SetEdges("templates/base.html", []types.Edge{{To: "templates/partials/nav.html", Kind: types.EdgeIncludes}})
	g.InsertOrReplace(&graph.Node{ID: "content/a.md", Kind: types.KindContent, Hash: "a1"})
	g.SetEdges("content/a.md", []types.Edge{{To: "templates/base.html", Kind: types.EdgeExtends}})

	k1, ok := ComputeKey(g, "content/a.md", "salt")
	require.True(t, ok)
	assert.Equal(t, "content/a.md", k1.ID)
	assert.False(t, k1.IsZero())

	again, _ := ComputeKey(g, "content/a.md", "salt")
	assert.Equal(t, k1, again)

	salted, _ := ComputeKey(g, "content/a.md", "other")
	assert.NotEqual(t, k1, salted)

	// a transitive dependency change moves the key
	g.InsertOrReplace(&graph.Node{ID: "templates/partials/nav.html", Kind: types.KindPartial, Hash: "n2"})
	k2, _ := ComputeKey(g, "content/a.md", "salt")
	assert.NotEqual(t, k1, k2)

	// removal of the dependency moves it again
	g.Remove("templates/partials/nav.html")
	k3, _ := ComputeKey(g, "content/a.md", "salt")
	assert.NotEqual(t, k2, k3)

	_, ok = ComputeKey(g, "content/missing.md", "salt")
	assert.False(t, ok)
}

func TestBuildMetrics(t *testing.T) {
	m := NewBuildMetrics()
	m.RecordCycle(CycleResult{Duration: 10 * time.Millisecond, Rebuilt: 3, Skipped: 1})
	m.RecordCycle(CycleResult{Duration: 30 * time.Millisecond, Rebuilt: 1, Skipped: 3, Errors: 2})
	m.RecordCycle(CycleResult{Duration: 20 * time.Millisecond, Superseded: true})

	snap := m.GetSnapshot()
	assert.Equal(t, int64(3), snap.TotalCycles)
	assert.Equal(t, int64(1), snap.SupersededCycles)
	assert.Equal(t, int64(1), snap.FailedCycles)
	assert.Equal(t, int64(4), snap.Rebuilt)
	assert.Equal(t, 20*time.Millisecond, snap.AverageDuration)
	assert.InDelta(t, 50.0, m.GetSkipRate(), 0.001)

	m.Reset()
	assert.Zero(t, m.GetSnapshot().TotalCycles)
}
