package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/types"
)

func writeFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newSite(t *testing.T) (string, *Scanner) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "content/index.md", "# Home")
	writeFile(t, root, "content/blog/post.md", "# Post")
	writeFile(t, root, "content/blog/cover.png", "png")
	writeFile(t, root, "templates/base.html", "<html>{{ content }}</html>")
	writeFile(t, root, "templates/partials/nav.html", "<nav/>")
	writeFile(t, root, "templates/_footer.html", "<footer/>")
	writeFile(t, root, "styles/main.css", "@import '_vars.css';")
	writeFile(t, root, "styles/_vars.css", ":root{}")
	writeFile(t, root, "static/favicon.ico", "ico")
	writeFile(t, root, "data/site.yaml", "name: x")
	writeFile(t, root, "content/.hidden.md", "skip")
	writeFile(t, root, "content/draft.md.swp", "skip")
	writeFile(t, root, "content/node_modules/x.md", "skip")

	cfg := config.Default(root)
	return root, New(cfg, logging.NewNop())
}

func byID(files []*types.SourceFile) map[string]*types.SourceFile {
	m := make(map[string]*types.SourceFile, len(files))
	for _, f := range files {
		m[f.ID] = f
	}
	return m
}

func TestScanClassifies(t *testing.T) {
	_, s := newSite(t)

	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	files := byID(result.Files)
	want := map[string]types.Kind{
		"content/index.md":            types.KindContent,
		"content/blog/post.md":        types.KindContent,
		"content/blog/cover.png":      types.KindAsset,
		"templates/base.html":         types.KindTemplate,
		"templates/partials/nav.html": types.KindPartial,
		"templates/_footer.html":      types.KindPartial,
		"styles/main.css":             types.KindStyle,
		"styles/_vars.css":            types.KindStyle,
		"static/favicon.ico":          types.KindAsset,
		"data/site":                   types.KindData,
	}
	assert.Len(t, files, len(want))
	for id, kind := range want {
		f, ok := files[id]
		if assert.True(t, ok, id) {
			assert.Equal(t, kind, f.Kind, id)
			assert.Len(t, f.Hash, 64, id)
		}
	}

	assert.Nil(t, files["static/favicon.ico"].Content, "assets are not held in memory")
	assert.Equal(t, "# Home", string(files["content/index.md"].Content))
	assert.Equal(t, "blog/post.md", files["content/blog/post.md"].Rel)

	for i := 1; i < len(result.Files); i++ {
		assert.Less(t, result.Files[i-1].ID, result.Files[i].ID)
	}
}

func TestScanIsDeterministic(t *testing.T) {
	_, s := newSite(t)

	a, err := s.Scan(context.Background())
	require.NoError(t, err)
	b, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(a.Files), len(b.Files))
	for i := range a.Files {
		assert.Equal(t, a.Files[i].ID, b.Files[i].ID)
		assert.Equal(t, a.Files[i].Hash, b.Files[i].Hash)
	}
}

func TestScanReportsAmbiguousData(t *testing.T) {
	root, s := newSite(t)
	writeFile(t, root, "data/site.json", `{"name": "y"}`)
	writeFile(t, root, "data/notes.txt", "nope")

	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)

	files := byID(result.Files)
	assert.Equal(t, filepath.Join(root, "data", "site.json"), files["data/site"].Path, "lexically first file wins")
	assert.Contains(t, result.Errors[0].Error(), "notes.txt")
	assert.Contains(t, result.Errors[1].Error(), "same entity")
}

func TestScanMissingRoot(t *testing.T) {
	cfg := config.Default(filepath.Join(t.TempDir(), "nope"))
	_, err := New(cfg, logging.NewNop()).Scan(context.Background())
	assert.Error(t, err)
}

func TestRescan(t *testing.T) {
	root, s := newSite(t)
	full, err := s.Scan(context.Background())
	require.NoError(t, err)
	known := byID(full.Files)
	lookup := KnownFunc(func(id string) (*types.SourceFile, bool) {
		f, ok := known[id]
		return f, ok
	})

	t.Run("unchanged file yields nothing", func(t *testing.T) {
		p := writeFile(t, root, "content/index.md", "# Home")
		r, err := s.Rescan(context.Background(), []string{p, p}, lookup)
		require.NoError(t, err)
		assert.Empty(t, r.Files)
		assert.Empty(t, r.Removed)
	})

	t.Run("modified and added files", func(t *testing.T) {
		a := writeFile(t, root, "content/index.md", "# Home v2")
		b := writeFile(t, root, "content/new.md", "# New")
		r, err := s.Rescan(context.Background(), []string{b, a}, lookup)
		require.NoError(t, err)
		require.Len(t, r.Files, 2)
		assert.Equal(t, "content/index.md", r.Files[0].ID)
		assert.Equal(t, "content/new.md", r.Files[1].ID)
	})

	t.Run("removed file", func(t *testing.T) {
		p := filepath.Join(root, "templates", "partials", "nav.html")
		require.NoError(t, os.Remove(p))
		r, err := s.Rescan(context.Background(), []string{p}, lookup)
		require.NoError(t, err)
		assert.Equal(t, []string{"templates/partials/nav.html"}, r.Removed)
	})

	t.Run("removed directory", func(t *testing.T) {
		p := filepath.Join(root, "content", "blog")
		require.NoError(t, os.RemoveAll(p))
		r, err := s.Rescan(context.Background(), []string{p}, lookup)
		require.NoError(t, err)
		assert.Equal(t, []string{"content/blog/"}, r.RemovedDirs)
	})

	t.Run("new directory is walked", func(t *testing.T) {
		writeFile(t, root, "content/docs/a.md", "a")
		writeFile(t, root, "content/docs/b.md", "b")
		r, err := s.Rescan(context.Background(), []string{filepath.Join(root, "content", "docs")}, lookup)
		require.NoError(t, err)
		assert.Len(t, r.Files, 2)
	})

	t.Run("paths outside the source dirs and ignored paths are skipped", func(t *testing.T) {
		other := writeFile(t, root, "README.md", "x")
		swp := writeFile(t, root, "content/a.md.swp", "x")
		r, err := s.Rescan(context.Background(), []string{other, swp}, lookup)
		require.NoError(t, err)
		assert.Empty(t, r.Files)
		assert.Empty(t, r.Errors)
	})

	t.Run("second file for a live data entity is ambiguous", func(t *testing.T) {
		p := writeFile(t, root, "data/site.toml", "name = 'z'")
		r, err := s.Rescan(context.Background(), []string{p}, lookup)
		require.NoError(t, err)
		assert.Empty(t, r.Files)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, "data/site", r.Errors[0].ID)
	})
}

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{".git", "*.swp", "content/drafts", "node_modules/"})

	assert.True(t, m.Match(".git/HEAD"))
	assert.True(t, m.Match("content/a.md.swp"))
	assert.True(t, m.Match("content/drafts/a.md"))
	assert.True(t, m.Match("x/node_modules/y.js"))
	assert.False(t, m.Match("content/a.md"))
	assert.False(t, m.Match(""))

	assert.True(t, Hidden(".DS_Store"))
	assert.True(t, Hidden("#a.md#"))
	assert.True(t, Hidden("a.md~"))
	assert.False(t, Hidden("a.md"))
}

func TestClassify(t *testing.T) {
	kind, id, err := Classify(types.PrefixData, "nav/main.yml")
	require.NoError(t, err)
	assert.Equal(t, types.KindData, kind)
	assert.Equal(t, "data/nav/main", id)

	_, _, err = Classify(types.PrefixData, "x.csv")
	assert.Error(t, err)

	kind, _, _ = Classify(types.PrefixStyles, "fonts/a.woff2")
	assert.Equal(t, types.KindAsset, kind)

	kind, id, err = Classify(types.PrefixContent, "blog/section.toml")
	require.NoError(t, err)
	assert.Equal(t, types.KindSection, kind)
	assert.Equal(t, "content/blog/section.toml", id)

	kind, _, _ = Classify(types.PrefixContent, "blog/other.toml")
	assert.Equal(t, types.KindAsset, kind)
}
