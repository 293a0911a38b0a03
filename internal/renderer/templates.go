package renderer

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/types"
)

var (
	templateRef = regexp.MustCompile(`\{%-?\s*(include|extends|import)\s+["']([^"']+)["']`)
	dataRef     = regexp.MustCompile(`\bdata\.([A-Za-z_][A-Za-z0-9_]*)`)
	linkTag     = regexp.MustCompile(`(?is)<link\b[^>]*>`)
	embedHref   = regexp.MustCompile(`(?i)\bhref\s*=\s*["']@/(styles/[^"']+)["']`)
	embedAttr   = regexp.MustCompile(`(?i)\sembed(?:\s|=|/|>)`)
	sectionsRef = regexp.MustCompile(`\bsections\s*\(`)
	helperRef   = regexp.MustCompile(`\b(render_content|entry|base64_file)\s*\(\s*["']([^"']+)["']`)
)

// References is what a template-language source declares about its
// dependencies.
type References struct {
	// Includes are template names pulled in by include or import
	Includes []string
	// Extends are parent template names
	Extends []string
	// Data are data binding names read through `data.<name>`
	Data []string
	// Embeds are style ids inlined with <link ... embed>
	Embeds []string
	// Sections is set when the source reads sections()
	Sections bool
	// Renders are page ids passed to render_content
	Renders []string
	// Entries are page ids passed to entry
	Entries []string
	// Files are ids passed to base64_file
	Files []string
}

// ScanTemplate finds the references declared in a template source.
func ScanTemplate(src []byte) *References {
	refs := &References{}
	for _, m := range templateRef.FindAllSubmatch(src, -1) {
		name := TemplateName(string(m[2]))
		if string(m[1]) == "extends" {
			refs.Extends = append(refs.Extends, name)
		} else {
			refs.Includes = append(refs.Includes, name)
		}
	}
	for _, m := range dataRef.FindAllSubmatch(src, -1) {
		refs.Data = append(refs.Data, string(m[1]))
	}
	refs.Embeds = ScanEmbeds(src)
	refs.Sections = sectionsRef.Match(src)
	for _, m := range helperRef.FindAllSubmatch(src, -1) {
		switch string(m[1]) {
		case "render_content":
			refs.Renders = append(refs.Renders, contentID(string(m[2])))
		case "entry":
			refs.Entries = append(refs.Entries, contentID(string(m[2])))
		default:
			refs.Files = append(refs.Files, string(m[2]))
		}
	}

	refs.Includes = unique(refs.Includes)
	refs.Extends = unique(refs.Extends)
	refs.Data = unique(refs.Data)
	refs.Renders = unique(refs.Renders)
	refs.Entries = unique(refs.Entries)
	refs.Files = unique(refs.Files)
	return refs
}

// ScanEmbeds returns the style ids of every `<link ... embed>` in src
// whose href is a site-relative stylesheet.
func ScanEmbeds(src []byte) []string {
	var ids []string
	for _, tag := range linkTag.FindAll(src, -1) {
		if !embedAttr.Match(tag) {
			continue
		}
		if m := embedHref.FindSubmatch(tag); m != nil {
			ids = append(ids, path.Clean(string(m[1])))
		}
	}
	return unique(ids)
}

// TemplateName normalizes a template reference to a path relative to the
// templates directory.
func TemplateName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func unique(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	sort.Strings(s)
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// nodeLoader serves templates from the graph so that a render sees the
// same bytes its cache key was computed from.
type nodeLoader struct {
	res Resolver
}

// Abs resolves every name against the templates directory, never against
// the including template.
func (l nodeLoader) Abs(_, name string) string {
	return TemplateName(name)
}

func (l nodeLoader) Get(name string) (io.Reader, error) {
	node, ok := l.res.Node(types.PrefixTemplates + name)
	if !ok || node.File == nil {
		return nil, fmt.Errorf("template %q not found", name)
	}
	return bytes.NewReader(node.File.Content), nil
}

func (r *Renderer) templateSet(res Resolver) *pongo2.TemplateSet {
	set := pongo2.NewSet("slate", nodeLoader{res: res})
	set.Globals["site"] = r.siteContext()
	return set
}

// templateError converts a pongo2 failure into a source error located at
// the offending template.
func templateError(entity string, err error) error {
	se := errors.WrapSource(err, entity, "TEMPLATE", "template evaluation failed")
	var perr *pongo2.Error
	if errors.As(err, &perr) {
		file := perr.Filename
		if file != "" && file != "<string>" {
			file = types.PrefixTemplates + file
		} else {
			file = entity
		}
		se = se.WithLocation(file, perr.Line)
	}
	return se
}
