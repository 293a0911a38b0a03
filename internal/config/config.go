// Package config provides configuration management for slate using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the SLATE_ prefix, defaults, and validation. It covers the
// source layout, the output tree, site metadata, the render and finishing
// stages, the change watcher, and the preview server.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Site     SiteConfig     `mapstructure:"site" yaml:"site"`
	Build    BuildConfig    `mapstructure:"build" yaml:"build"`
	Markdown MarkdownConfig `mapstructure:"markdown" yaml:"markdown"`
	Finish   FinishConfig   `mapstructure:"finish" yaml:"finish"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Serve    ServeConfig    `mapstructure:"serve" yaml:"serve"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type SourceConfig struct {
	Root         string `mapstructure:"root" yaml:"root"`
	ContentDir   string `mapstructure:"content_dir" yaml:"content_dir"`
	TemplatesDir string `mapstructure:"templates_dir" yaml:"templates_dir"`
	StylesDir    string `mapstructure:"styles_dir" yaml:"styles_dir"`
	StaticDir    string `mapstructure:"static_dir" yaml:"static_dir"`
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// CompressedDir holds encoded variants when set; otherwise they are
	// written next to the artifact.
	CompressedDir string `mapstructure:"compressed_dir" yaml:"compressed_dir"`
	Clean         bool   `mapstructure:"clean" yaml:"clean"`
}

type SiteConfig struct {
	BaseURL string                 `mapstructure:"base_url" yaml:"base_url"`
	Title   string                 `mapstructure:"title" yaml:"title"`
	Params  map[string]interface{} `mapstructure:"params" yaml:"params"`
}

type BuildConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers"`
	Drafts          bool   `mapstructure:"drafts" yaml:"drafts"`
	DefaultTemplate string `mapstructure:"default_template" yaml:"default_template"`
}

type MarkdownConfig struct {
	HighlightStyle string `mapstructure:"highlight_style" yaml:"highlight_style"`
	LineNumbers    bool   `mapstructure:"line_numbers" yaml:"line_numbers"`
}

type FinishConfig struct {
	MinifyHTML bool     `mapstructure:"minify_html" yaml:"minify_html"`
	MinifyCSS  bool     `mapstructure:"minify_css" yaml:"minify_css"`
	Targets    []string `mapstructure:"targets" yaml:"targets"`
	Compress   bool     `mapstructure:"compress" yaml:"compress"`
	Encodings  []string `mapstructure:"encodings" yaml:"encodings"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore"`
}

type ServeConfig struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	PreferredEncoding string `mapstructure:"preferred_encoding" yaml:"preferred_encoding"`
	LiveReload        bool   `mapstructure:"live_reload" yaml:"live_reload"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.root", ".")
	v.SetDefault("source.content_dir", "content")
	v.SetDefault("source.templates_dir", "templates")
	v.SetDefault("source.styles_dir", "styles")
	v.SetDefault("source.static_dir", "static")
	v.SetDefault("source.data_dir", "data")

	v.SetDefault("output.dir", "public")
	v.SetDefault("output.compressed_dir", "")
	v.SetDefault("output.clean", true)

	v.SetDefault("site.base_url", "/")
	v.SetDefault("site.title", "")

	v.SetDefault("build.workers", 0)
	v.SetDefault("build.drafts", false)
	v.SetDefault("build.default_template", "default.html")

	v.SetDefault("markdown.highlight_style", "github")
	v.SetDefault("markdown.line_numbers", false)

	v.SetDefault("finish.minify_html", true)
	v.SetDefault("finish.minify_css", true)
	v.SetDefault("finish.targets", []string{"> 0.2%", "not dead"})
	v.SetDefault("finish.compress", true)
	v.SetDefault("finish.encodings", []string{"br", "gzip", "deflate"})

	v.SetDefault("watch.debounce", 300*time.Millisecond)
	v.SetDefault("watch.ignore", []string{".git", "node_modules", ".DS_Store", "*.swp", "*~", "#*#"})

	v.SetDefault("serve.host", "127.0.0.1")
	v.SetDefault("serve.port", 8000)
	v.SetDefault("serve.preferred_encoding", "br")
	v.SetDefault("serve.live_reload", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	SetDefaults(viper.GetViper())
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, normalises and validates the configuration held by v.
// Defaults must already be registered.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// viper leaves slices empty when they are set through a single env var
	if len(config.Finish.Encodings) == 0 && v.IsSet("finish.encodings") {
		config.Finish.Encodings = v.GetStringSlice("finish.encodings")
	}
	if len(config.Watch.Ignore) == 0 && v.IsSet("watch.ignore") {
		config.Watch.Ignore = v.GetStringSlice("watch.ignore")
	}

	config.normalize()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by an empty config file,
// rooted at root.
func Default(root string) *Config {
	v := viper.New()
	SetDefaults(v)
	v.Set("source.root", root)
	v.Set("output.dir", filepath.Join(root, "public"))
	cfg, err := LoadFrom(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func (c *Config) normalize() {
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = "/"
	}
	if !strings.HasSuffix(c.Site.BaseURL, "/") {
		c.Site.BaseURL += "/"
	}
	if c.Site.Params == nil {
		c.Site.Params = map[string]interface{}{}
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = runtime.NumCPU()
	}
	for i, enc := range c.Finish.Encodings {
		c.Finish.Encodings[i] = strings.ToLower(strings.TrimSpace(enc))
	}
	c.Serve.PreferredEncoding = strings.ToLower(strings.TrimSpace(c.Serve.PreferredEncoding))
}

// SourceDir returns the absolute path of one of the source directories.
func (c *Config) SourceDir(name string) string {
	root, err := filepath.Abs(c.Source.Root)
	if err != nil {
		root = c.Source.Root
	}
	if name == "" {
		return root
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(root, name)
}

// OutputDir returns the absolute output directory. Relative paths are
// resolved against the working directory, like every CLI path.
func (c *Config) OutputDir() string {
	dir, err := filepath.Abs(c.Output.Dir)
	if err != nil {
		return c.Output.Dir
	}
	return dir
}

// Fingerprint is a stable digest of every setting that changes build
// output. It salts every cache key.
func (c *Config) Fingerprint() string {
	relevant := struct {
		Source   SourceConfig
		Site     SiteConfig
		Drafts   bool
		Default  string
		Markdown MarkdownConfig
		Finish   FinishConfig
	}{
		Source:   c.Source,
		Site:     c.Site,
		Drafts:   c.Build.Drafts,
		Default:  c.Build.DefaultTemplate,
		Markdown: c.Markdown,
		Finish:   c.Finish,
	}
	// encoding/json sorts map keys, which keeps Params stable
	b, err := json.Marshal(relevant)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", relevant))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
