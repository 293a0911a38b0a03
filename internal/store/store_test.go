package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/build"
	"github.com/conneroisu/slate/internal/types"
)

func entry(id, route, body string) *Entry {
	return &Entry{
		ID:  id,
		Key: build.CacheKey{ID: id, Digest: body},
		Artifact: &types.BuildArtifact{
			Route:       route,
			ContentType: "text/html; charset=utf-8",
			Body:        []byte(body),
			Hash:        body,
		},
	}
}

func TestCommitPublishesAndWithdraws(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Snapshot().Len())

	snap, diff := s.Commit([]*Entry{
		entry("content/index.md", "/", "home"),
		entry("content/a.md", "/a/", "a"),
	}, nil)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, []string{"/", "/a/"}, snap.Routes())
	assert.Len(t, diff.Written, 2)
	assert.Empty(t, diff.Removed)

	a, ok := s.Get("/a/")
	require.True(t, ok)
	assert.Equal(t, "a", string(a.Body))

	_, diff = s.Commit(nil, []string{"content/a.md", "content/missing.md"})
	assert.Equal(t, []string{"/a/"}, diff.Removed)
	_, ok = s.Get("/a/")
	assert.False(t, ok)
	_, ok = s.EntryForID("content/a.md")
	assert.False(t, ok)
}

func TestCommitMovesRoute(t *testing.T) {
	s := New()
	s.Commit([]*Entry{entry("content/a.md", "/a/", "v1")}, nil)

	_, diff := s.Commit([]*Entry{entry("content/a.md", "/renamed/", "v2")}, nil)
	assert.Equal(t, []string{"/a/"}, diff.Removed)
	require.Len(t, diff.Written, 1)
	assert.Equal(t, "/renamed/", diff.Written[0].Route())

	_, ok := s.Get("/a/")
	assert.False(t, ok)
	e, ok := s.EntryForID("content/a.md")
	require.True(t, ok)
	assert.Equal(t, "/renamed/", e.Route())
}

func TestCommitRouteHandOver(t *testing.T) {
	s := New()
	s.Commit([]*Entry{entry("content/a.md", "/x/", "a")}, nil)

	_, diff := s.Commit([]*Entry{
		entry("content/b.md", "/x/", "b"),
		entry("content/a.md", "/a/", "a"),
	}, nil)
	assert.Empty(t, diff.Removed)

	x, ok := s.Get("/x/")
	require.True(t, ok)
	assert.Equal(t, "b", string(x.Body))
	a, ok := s.Get("/a/")
	require.True(t, ok)
	assert.Equal(t, "a", string(a.Body))
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := New()
	s.Commit([]*Entry{entry("content/a.md", "/a/", "v1")}, nil)
	old := s.Snapshot()

	s.Commit([]*Entry{entry("content/a.md", "/a/", "v2"), entry("content/b.md", "/b/", "b")}, nil)

	a, ok := old.Get("/a/")
	require.True(t, ok)
	assert.Equal(t, "v1", string(a.Body))
	assert.Equal(t, 1, old.Len())
	assert.Equal(t, 2, s.Snapshot().Len())
}

func TestConcurrentReadersSeeWholeCommits(t *testing.T) {
	s := New()
	s.Commit([]*Entry{entry("content/a.md", "/a/", "0"), entry("content/b.md", "/b/", "0")}, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				a, _ := snap.Get("/a/")
				b, _ := snap.Get("/b/")
				if string(a.Body) != string(b.Body) {
					t.Errorf("torn snapshot: a=%s b=%s", a.Body, b.Body)
					return
				}
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		v := string(rune('0' + i%10))
		s.Commit([]*Entry{entry("content/a.md", "/a/", v), entry("content/b.md", "/b/", v)}, nil)
	}
	close(stop)
	wg.Wait()
}

func TestWriterApplyAndClean(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public")
	w := NewWriter(dir, "")
	s := New()

	home := entry("content/index.md", "/", "<p>home</p>")
	home.Artifact.Variants = map[types.Encoding][]byte{types.EncodingGzip: []byte("gz")}
	feed := entry("content/feed.xml.tpl", "/feed.xml", "<feed/>")
	post := entry("content/blog/post.md", "/blog/post/", "post")

	_, diff := s.Commit([]*Entry{home, feed, post}, nil)
	require.NoError(t, w.Apply(diff))

	assertFile(t, filepath.Join(dir, "index.html"), "<p>home</p>")
	assertFile(t, filepath.Join(dir, "index.html.gz"), "gz")
	assertFile(t, filepath.Join(dir, "feed.xml"), "<feed/>")
	assertFile(t, filepath.Join(dir, "blog", "post", "index.html"), "post")
	assert.NoFileExists(t, filepath.Join(dir, "index.html.br"))

	_, diff = s.Commit(nil, []string{"content/blog/post.md"})
	require.NoError(t, w.Apply(diff))
	assert.NoFileExists(t, filepath.Join(dir, "blog", "post", "index.html"))
	assert.NoDirExists(t, filepath.Join(dir, "blog"))

	stale := filepath.Join(dir, "old", "page.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	removed, err := w.Clean(s.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)
	assert.NoDirExists(t, filepath.Join(dir, "old"))
	assertFile(t, filepath.Join(dir, "index.html"), "<p>home</p>")
	assertFile(t, filepath.Join(dir, "index.html.gz"), "gz")
}

func TestWriterCompressedDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "public")
	compressed := filepath.Join(root, "compressed")
	w := NewWriter(dir, compressed)

	e := entry("styles/main.css", "/styles/main.css", "a{}")
	e.Artifact.Variants = map[types.Encoding][]byte{types.EncodingBrotli: []byte("br")}

	s := New()
	_, diff := s.Commit([]*Entry{e}, nil)
	require.NoError(t, w.Apply(diff))

	assertFile(t, filepath.Join(dir, "styles", "main.css"), "a{}")
	assertFile(t, filepath.Join(compressed, "styles", "main.css.br"), "br")
	assert.NoFileExists(t, filepath.Join(dir, "styles", "main.css.br"))

	removed, err := w.Clean(s.Snapshot())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestWriterRejectsTraversal(t *testing.T) {
	w := NewWriter(t.TempDir(), "")
	_, err := w.Path("/../escape.html")
	assert.Error(t, err)
	_, err = w.Path("relative/")
	assert.Error(t, err)
}

func TestWriterOverwritesInPlace(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "")
	s := New()

	_, diff := s.Commit([]*Entry{entry("content/a.md", "/a/", "v1")}, nil)
	require.NoError(t, w.Apply(diff))
	_, diff = s.Commit([]*Entry{entry("content/a.md", "/a/", "v2")}, nil)
	require.NoError(t, w.Apply(diff))

	assertFile(t, filepath.Join(dir, "a", "index.html"), "v2")
	files, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Len(t, files, 1, "no temporary files are left behind")
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}
