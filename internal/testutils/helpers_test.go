package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempSiteAndReadTree(t *testing.T) {
	files := map[string]string{
		"content/index.md":  "# Home",
		"content/a/b/c.md":  "deep",
		"static/robots.txt": "User-agent: *",
	}
	root := CreateTempSite(t, files)
	assert.Equal(t, files, ReadTree(t, root))
}

func TestMergeFiles(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	merged := MergeFiles(base, map[string]string{"b": "3", "c": "4"})
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, merged)
	assert.Equal(t, "2", base["b"], "base is not modified")
}

func TestCreateTestConfig(t *testing.T) {
	root := t.TempDir()
	cfg := CreateTestConfig(root)
	assert.Equal(t, filepath.Join(root, "public"), cfg.OutputDir())
	assert.Equal(t, filepath.Join(root, "content"), cfg.SourceDir(cfg.Source.ContentDir))
}

func TestWaitForFileContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "out.txt")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("ready"), 0o644)
	}()
	WaitForFileContent(t, path, "ready", 2*time.Second)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ready", string(b))
}
