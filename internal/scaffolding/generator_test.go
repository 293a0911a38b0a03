package scaffolding

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFullSite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "garden")
	now := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	created, err := NewSiteGenerator(dir, Options{Now: now}).Generate()
	require.NoError(t, err)
	assert.Contains(t, created, ".slate.yml")
	assert.Contains(t, created, "content/posts/2025-04-02-hello-world.md")
	assert.Contains(t, created, "data/site.yaml")

	cfg, err := os.ReadFile(filepath.Join(dir, ".slate.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), `title: "garden"`)

	// template markup is left for the site's own renderer
	layout, err := os.ReadFile(filepath.Join(dir, "templates", "default.html"))
	require.NoError(t, err)
	assert.Contains(t, string(layout), "{{ page.content }}")
	assert.Contains(t, string(layout), `{% include "partials/nav.html" %}`)

	home, err := os.ReadFile(filepath.Join(dir, "content", "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(home), "# Welcome to garden")
}

func TestGenerateMinimalSite(t *testing.T) {
	dir := t.TempDir()
	created, err := NewSiteGenerator(dir, Options{Title: "Tiny", Minimal: true}).Generate()
	require.NoError(t, err)

	for _, rel := range created {
		for _, tmpl := range siteTemplates() {
			if tmpl.Path == rel {
				assert.True(t, tmpl.Minimal, "%s is not part of a minimal site", rel)
			}
		}
	}
	assert.NoFileExists(t, filepath.Join(dir, "templates", "list.html"))
	assert.NoFileExists(t, filepath.Join(dir, "data", "site.yaml"))
	assert.FileExists(t, filepath.Join(dir, "content", "index.md"))
}

func TestGenerateRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "content"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "index.md"), []byte("mine"), 0o644))

	_, err := NewSiteGenerator(dir, Options{Minimal: true}).Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content/index.md")

	// nothing was written
	assert.NoFileExists(t, filepath.Join(dir, ".slate.yml"))
	b, err := os.ReadFile(filepath.Join(dir, "content", "index.md"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(b))

	_, err = NewSiteGenerator(dir, Options{Minimal: true, Force: true}).Generate()
	require.NoError(t, err)
	b, err = os.ReadFile(filepath.Join(dir, "content", "index.md"))
	require.NoError(t, err)
	assert.NotEqual(t, "mine", string(b))
}
