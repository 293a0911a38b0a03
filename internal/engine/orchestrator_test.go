package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/types"
)

func TestOrchestratorBuildsEachBatch(t *testing.T) {
	ts := newTestSite(t, siteFiles)
	s := ts.session(WithoutOutput())
	mustBuild(t, s)

	var mu sync.Mutex
	var reports []*BuildReport
	o := NewOrchestrator(s, func(r *BuildReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})

	batches := make(chan types.ChangeBatch, 2)
	batches <- batch(ts.write("content/a.md", "---\ntitle: Alpha\n---\nfrom the orchestrator\n"))
	close(batches)

	require.NoError(t, o.Run(context.Background(), batches))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.True(t, last.Committed())
	assert.Equal(t, CycleIncremental, last.Kind)

	a, ok := s.CurrentArtifact("/a/")
	require.True(t, ok)
	assert.Contains(t, string(a.Body), "from the orchestrator")
	assert.Equal(t, StateIdle, s.State())
}

func TestOrchestratorMergesPendingBatches(t *testing.T) {
	ts := newTestSite(t, siteFiles)
	s := ts.session(WithoutOutput())
	mustBuild(t, s)

	var mu sync.Mutex
	var committed []*BuildReport
	o := NewOrchestrator(s, func(r *BuildReport) {
		if r.Committed() {
			mu.Lock()
			committed = append(committed, r)
			mu.Unlock()
		}
	})

	batches := make(chan types.ChangeBatch)
	errc := make(chan error, 1)
	go func() { errc <- o.Run(context.Background(), batches) }()

	batches <- batch(ts.write("content/a.md", "---\ntitle: Alpha\n---\nfirst\n"))
	batches <- batch(ts.write("content/b.md", "---\ntitle: Beta\n---\nsecond\n"))
	batches <- batch(ts.write("content/a.md", "---\ntitle: Alpha\n---\nthird\n"))
	close(batches)
	require.NoError(t, <-errc)

	a, _ := s.CurrentArtifact("/a/")
	b, _ := s.CurrentArtifact("/b/")
	assert.Contains(t, string(a.Body), "third")
	assert.Contains(t, string(b.Body), "second")

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, committed)
	require.NoError(t, s.Verify())
}

func TestOrchestratorStopsOnCancel(t *testing.T) {
	ts := newTestSite(t, siteFiles)
	s := ts.session(WithoutOutput())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewOrchestrator(s).Run(ctx, make(chan types.ChangeBatch)) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestOrchestratorRunsRequestedRebuild(t *testing.T) {
	ts := newTestSite(t, siteFiles)
	s := ts.session(WithoutOutput())
	mustBuild(t, s)

	reports := make(chan *BuildReport, 4)
	o := NewOrchestrator(s)
	o.OnReport(func(r *BuildReport) { reports <- r })

	// changes nobody reported are picked up by the full scan
	ts.write("content/a.md", "---\ntitle: Alpha\n---\nunwatched edit\n")
	o.RequestRebuild()
	o.RequestRebuild()

	batches := make(chan types.ChangeBatch)
	errc := make(chan error, 1)
	go func() { errc <- o.Run(context.Background(), batches) }()

	select {
	case r := <-reports:
		assert.Equal(t, CycleFull, r.Kind)
		assert.True(t, r.Committed())
	case <-time.After(10 * time.Second):
		t.Fatal("requested rebuild never ran")
	}
	close(batches)
	require.NoError(t, <-errc)

	assert.Empty(t, reports, "coalesced requests run one rebuild")
	a, ok := s.CurrentArtifact("/a/")
	require.True(t, ok)
	assert.Contains(t, string(a.Body), "unwatched edit")
}
