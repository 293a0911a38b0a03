// Package scaffolding creates the directory layout and starter files of a
// new site.
package scaffolding

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// Options controls site generation.
type Options struct {
	Title   string
	BaseURL string
	// Minimal skips the sample posts, listing page and data file
	Minimal bool
	// Force overwrites files that already exist
	Force bool
	// Now dates the sample post; zero means time.Now
	Now time.Time
}

// SiteGenerator writes a new site into a directory.
type SiteGenerator struct {
	dir  string
	opts Options
}

// NewSiteGenerator creates a generator for dir.
func NewSiteGenerator(dir string, opts Options) *SiteGenerator {
	if opts.Title == "" {
		opts.Title = titleFromDir(dir)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "/"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &SiteGenerator{dir: dir, opts: opts}
}

// Generate writes the site and returns the created paths relative to the
// site directory. Existing files are an error unless Force is set; in
// that case nothing is written.
func (g *SiteGenerator) Generate() ([]string, error) {
	ctx := TemplateContext{
		Title:   g.opts.Title,
		BaseURL: g.opts.BaseURL,
		Date:    g.opts.Now.Format("2006-01-02"),
	}

	type file struct {
		rel  string
		body []byte
	}
	var files []file
	for _, tmpl := range siteTemplates() {
		if g.opts.Minimal && !tmpl.Minimal {
			continue
		}
		rel, err := execute(tmpl.Path, tmpl.Path, ctx)
		if err != nil {
			return nil, err
		}
		body, err := execute(tmpl.Path, tmpl.Body, ctx)
		if err != nil {
			return nil, err
		}
		files = append(files, file{rel: string(rel), body: body})
	}

	if !g.opts.Force {
		var existing []string
		for _, f := range files {
			if _, err := os.Stat(filepath.Join(g.dir, filepath.FromSlash(f.rel))); err == nil {
				existing = append(existing, f.rel)
			}
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("refusing to overwrite %s (use --force)", strings.Join(existing, ", "))
		}
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(g.dir, filepath.FromSlash(f.rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return created, fmt.Errorf("creating directory for %s: %w", f.rel, err)
		}
		if err := os.WriteFile(path, f.body, 0o644); err != nil {
			return created, fmt.Errorf("writing %s: %w", f.rel, err)
		}
		created = append(created, f.rel)
	}
	return created, nil
}

func execute(name, text string, ctx TemplateContext) ([]byte, error) {
	t, err := template.New(name).Delims("[[", "]]").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("executing %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func titleFromDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	name := filepath.Base(abs)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "My Site"
	}
	return name
}
