package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/slate/internal/types"
	"github.com/conneroisu/slate/internal/validation"
)

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateSourceConfig(config); err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	if err := validation.ValidateBaseURL(config.Site.BaseURL); err != nil {
		return fmt.Errorf("site config: %w", err)
	}
	if err := validateFinishConfig(&config.Finish); err != nil {
		return fmt.Errorf("finish config: %w", err)
	}
	if config.Watch.Debounce <= 0 {
		return fmt.Errorf("watch config: debounce must be positive, got %s", config.Watch.Debounce)
	}
	if err := validateServeConfig(&config.Serve); err != nil {
		return fmt.Errorf("serve config: %w", err)
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: format must be text or json, got %q", config.Log.Format)
	}
	return nil
}

func validateSourceConfig(config *Config) error {
	dirs := map[string]string{
		"content_dir":   config.Source.ContentDir,
		"templates_dir": config.Source.TemplatesDir,
		"styles_dir":    config.Source.StylesDir,
		"static_dir":    config.Source.StaticDir,
		"data_dir":      config.Source.DataDir,
	}
	out := config.OutputDir()
	for key, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s cannot be empty", key)
		}
		if strings.Contains(filepath.ToSlash(dir), "..") {
			return fmt.Errorf("%s %q must not traverse outside the source root", key, dir)
		}
		abs := config.SourceDir(dir)
		if out == abs || strings.HasPrefix(out, abs+string(filepath.Separator)) {
			return fmt.Errorf("output dir %q lies inside %s %q", out, key, dir)
		}
	}
	if config.Build.DefaultTemplate != "" && strings.Contains(config.Build.DefaultTemplate, "..") {
		return fmt.Errorf("default_template %q must not traverse", config.Build.DefaultTemplate)
	}
	return nil
}

func validateFinishConfig(config *FinishConfig) error {
	seen := map[types.Encoding]bool{}
	for _, name := range config.Encodings {
		enc, ok := types.ParseEncoding(name)
		if !ok {
			return fmt.Errorf("unsupported encoding %q", name)
		}
		if seen[enc] {
			return fmt.Errorf("encoding %q listed twice", name)
		}
		seen[enc] = true
	}
	return nil
}

func validateServeConfig(config *ServeConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port %d", config.Port)
	}
	if config.PreferredEncoding != "" && config.PreferredEncoding != "identity" {
		if _, ok := types.ParseEncoding(config.PreferredEncoding); !ok {
			return fmt.Errorf("unsupported preferred encoding %q", config.PreferredEncoding)
		}
	}
	return nil
}

// EncodingList returns the configured encodings in configured order.
func (c *FinishConfig) EncodingList() []types.Encoding {
	out := make([]types.Encoding, 0, len(c.Encodings))
	for _, name := range c.Encodings {
		if enc, ok := types.ParseEncoding(name); ok {
			out = append(out, enc)
		}
	}
	return out
}
