package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/types"
)

// collect gathers batches until want is covered or the deadline passes.
func collect(t *testing.T, ch <-chan types.ChangeBatch, want ...string) map[string]bool {
	t.Helper()
	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for {
		missing := false
		for _, p := range want {
			if !seen[p] {
				missing = true
			}
		}
		if !missing {
			return seen
		}
		select {
		case b := <-ch:
			for _, p := range b.Paths {
				seen[p] = true
			}
		case <-deadline:
			t.Fatalf("missing paths; got %v want %v", seen, want)
		}
	}
}

func TestWatchReportsChanges(t *testing.T) {
	root := t.TempDir()
	content := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(content, 0o755))
	existing := filepath.Join(content, "a.md")
	require.NoError(t, os.WriteFile(existing, []byte("a"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, err := Watch(ctx, root, 50*time.Millisecond, []string{"node_modules"})
	require.NoError(t, err)

	created := filepath.Join(content, "b.md")
	require.NoError(t, os.WriteFile(existing, []byte("a2"), 0o644))
	require.NoError(t, os.WriteFile(created, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(content, ".b.md.swp"), []byte("x"), 0o644))

	seen := collect(t, batches, existing, created)
	assert.False(t, seen[filepath.Join(content, ".b.md.swp")])

	require.NoError(t, os.Remove(existing))
	collect(t, batches, existing)
}

func TestWatchFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, err := Watch(ctx, root, 50*time.Millisecond, nil)
	require.NoError(t, err)

	dir := filepath.Join(root, "content", "blog")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	collect(t, batches, filepath.Join(root, "content"))

	post := filepath.Join(dir, "post.md")
	require.NoError(t, os.WriteFile(post, []byte("p"), 0o644))
	collect(t, batches, post)
}

func TestWatchSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	ignored := filepath.Join(root, "node_modules", "pkg")
	require.NoError(t, os.MkdirAll(ignored, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, err := Watch(ctx, root, 30*time.Millisecond, []string{"node_modules"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ignored, "index.js"), []byte("x"), 0o644))
	marker := filepath.Join(root, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("m"), 0o644))

	seen := collect(t, batches, marker)
	for p := range seen {
		assert.NotContains(t, p, "node_modules")
	}
}

func TestWatchMissingRoot(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Millisecond, nil)
	assert.Error(t, err)
}

func TestWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	batches, err := Watch(ctx, t.TempDir(), 10*time.Millisecond, nil)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-batches:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("batch channel not closed")
	}
}
