package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/types"
)

func loadYAML(t *testing.T, body string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".slate.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return LoadFrom(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := loadYAML(t, "")
	require.NoError(t, err)

	assert.Equal(t, "content", cfg.Source.ContentDir)
	assert.Equal(t, "templates", cfg.Source.TemplatesDir)
	assert.Equal(t, "public", cfg.Output.Dir)
	assert.Equal(t, "/", cfg.Site.BaseURL)
	assert.True(t, cfg.Finish.MinifyHTML)
	assert.True(t, cfg.Finish.Compress)
	assert.Equal(t, []string{"br", "gzip", "deflate"}, cfg.Finish.Encodings)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 8000, cfg.Serve.Port)
	assert.Positive(t, cfg.Build.Workers)
	assert.NotNil(t, cfg.Site.Params)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := loadYAML(t, `
site:
  base_url: https://example.org/blog
  title: Example
  params:
    author: someone
finish:
  encodings: [GZIP, br]
watch:
  debounce: 50ms
build:
  workers: 3
`)
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/blog/", cfg.Site.BaseURL)
	assert.Equal(t, "Example", cfg.Site.Title)
	assert.Equal(t, "someone", cfg.Site.Params["author"])
	assert.Equal(t, []types.Encoding{types.EncodingGzip, types.EncodingBrotli}, cfg.Finish.EncodingList())
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 3, cfg.Build.Workers)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown encoding", "finish:\n  encodings: [zstd]\n", "unsupported encoding"},
		{"duplicate encoding", "finish:\n  encodings: [br, br]\n", "listed twice"},
		{"bad port", "serve:\n  port: 70000\n", "invalid port"},
		{"zero debounce", "watch:\n  debounce: 0s\n", "debounce must be positive"},
		{"traversal", "source:\n  content_dir: ../elsewhere\n", "must not traverse"},
		{"bad log format", "log:\n  format: xml\n", "format must be"},
		{"bad base url", "site:\n  base_url: \"javascript:alert(1)\"\n", "base URL"},
		{"output inside content", "output:\n  dir: content/out\n", "lies inside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadYAML(t, tt.yaml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SLATE_SITE_BASE_URL", "https://env.example")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("SLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example/", cfg.Site.BaseURL)
}

func TestFingerprint(t *testing.T) {
	root := t.TempDir()
	a := Default(root)
	b := Default(root)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Site.BaseURL = "https://other.example/"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := Default(root)
	c.Serve.Port = 9999
	assert.Equal(t, a.Fingerprint(), c.Fingerprint(), "serve settings do not affect output")
}

func TestSourceDir(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)
	assert.Equal(t, filepath.Join(root, "content"), cfg.SourceDir(cfg.Source.ContentDir))
	assert.Equal(t, filepath.Join(root, "public"), cfg.OutputDir())
}
