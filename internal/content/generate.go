package content

import (
	"fmt"
	"maps"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conneroisu/slate/internal/types"
)

const contentPrefix = types.PrefixContent

// generatedSep joins a generator page id and the file name of one page it
// generates.
const generatedSep = "#"

// Generator is the `generate_from` front matter of a page that stands for
// one page per item of an array.
type Generator struct {
	// Selector is a JSON pointer (RFC 6901) into the page's params, with
	// data bindings reachable under /data/<binding>
	Selector string
	// IndexOn names the item field used to name each page; without it
	// string items name themselves and anything else its array index
	IndexOn string
	// IndexPattern extracts parts of the index value, ".*" by default
	IndexPattern string
	// FilenameFormat interpolates the pattern's captures: "[]" for
	// unnamed groups or the whole match, "[name]" for named ones
	FilenameFormat string

	pattern *regexp.Regexp
}

// PrefixContentID turns a path relative to the content dir into an id.
func PrefixContentID(rel string) string {
	return contentPrefix + rel
}

// IsGenerated reports whether id names a page produced by a generator.
func IsGenerated(id string) bool {
	return strings.Contains(id, generatedSep)
}

// ParentID strips the generated part of id, returning the id of the
// source file it comes from.
func ParentID(id string) string {
	if i := strings.Index(id, generatedSep); i >= 0 {
		return id[:i]
	}
	return id
}

func parseGenerator(value any) (*Generator, error) {
	g := &Generator{}
	switch v := value.(type) {
	case string:
		g.Selector = v
	case map[string]any:
		for key, field := range v {
			s, ok := field.(string)
			if !ok {
				return nil, fmt.Errorf("generate_from.%s must be a string, got %T", key, field)
			}
			switch key {
			case "selector":
				g.Selector = s
			case "index_on":
				g.IndexOn = s
			case "index_pattern":
				g.IndexPattern = s
			case "filename_format":
				g.FilenameFormat = s
			default:
				return nil, fmt.Errorf("unknown generate_from field %q", key)
			}
		}
	default:
		return nil, fmt.Errorf("generate_from must be a selector or a table, got %T", value)
	}

	if g.Selector == "" {
		return nil, fmt.Errorf("generate_from needs a selector")
	}
	if _, err := pointerTokens(g.Selector); err != nil {
		return nil, fmt.Errorf("generate_from.selector: %w", err)
	}
	if g.IndexPattern == "" {
		g.IndexPattern = ".*"
	}
	if g.FilenameFormat == "" {
		g.FilenameFormat = "[]"
	}
	re, err := regexp.Compile(g.IndexPattern)
	if err != nil {
		return nil, fmt.Errorf("generate_from.index_pattern: %w", err)
	}
	g.pattern = re
	return g, nil
}

// Binding returns the data binding the selector reads, if any.
func (g *Generator) Binding() (string, bool) {
	tokens, err := pointerTokens(g.Selector)
	if err != nil || len(tokens) < 2 || tokens[0] != "data" {
		return "", false
	}
	return tokens[1], true
}

// GenerateRoot is the document a selector is resolved against: the page
// params plus the data bindings under "data".
func GenerateRoot(params map[string]any, data map[string]any) map[string]any {
	root := make(map[string]any, len(params)+1)
	maps.Copy(root, params)
	root["data"] = data
	return root
}

// Expand produces one page per selected item. Objects are selected as
// their key/value pairs in key order. Every page is a copy of parent with
// the item under params.generate.
func Expand(parent *Page, root any) ([]*Page, error) {
	g := parent.Generate
	if g == nil {
		return nil, nil
	}
	selected, ok, err := ResolvePointer(root, g.Selector)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("generate_from selector %q matches nothing", g.Selector)
	}

	var items []any
	switch v := selected.(type) {
	case []any:
		items = v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, map[string]any{"key": k, "value": v[k]})
		}
	default:
		return nil, fmt.Errorf("generate_from selector %q must select an array, got %T", g.Selector, selected)
	}

	pages := make([]*Page, 0, len(items))
	seen := make(map[string]int, len(items))
	for i, item := range items {
		index, err := g.indexValue(i, item)
		if err != nil {
			return nil, err
		}
		name := g.filename(index)
		if name == "" || strings.Contains(name, generatedSep) {
			return nil, fmt.Errorf("item %d yields the unusable file name %q", i, name)
		}
		if first, dup := seen[name]; dup {
			return nil, fmt.Errorf("items %d and %d both yield the file name %q", first, i, name)
		}
		seen[name] = i

		child := *parent
		child.ID = parent.ID + generatedSep + name
		child.GeneratedFrom = parent.ID
		child.Generate = nil
		child.Index = false
		child.Params = maps.Clone(parent.Params)
		if child.Params == nil {
			child.Params = map[string]any{}
		}
		child.Params["generate"] = item
		child.Route = generatedRoute(parent, name)
		pages = append(pages, &child)
	}
	return pages, nil
}

func (g *Generator) indexValue(i int, item any) (string, error) {
	if g.IndexOn == "" {
		if s, ok := item.(string); ok {
			return s, nil
		}
		return strconv.Itoa(i), nil
	}
	obj, ok := item.(map[string]any)
	if !ok {
		return "", fmt.Errorf("item %d must be a table when index_on is set, got %T", i, item)
	}
	v, ok := obj[g.IndexOn]
	if !ok {
		return "", fmt.Errorf("item %d has no field %q", i, g.IndexOn)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q of item %d must be a string, got %T", g.IndexOn, i, v)
	}
	return s, nil
}

func (g *Generator) filename(index string) string {
	m := g.pattern.FindStringSubmatch(index)
	if m == nil {
		return g.FilenameFormat
	}
	if g.pattern.NumSubexp() == 0 {
		return strings.ReplaceAll(g.FilenameFormat, "[]", m[0])
	}
	out := g.FilenameFormat
	for i, name := range g.pattern.SubexpNames()[1:] {
		if name != "" {
			out = strings.ReplaceAll(out, "["+name+"]", m[i+1])
		} else {
			out = strings.Replace(out, "[]", m[i+1], 1)
		}
	}
	return out
}

// generatedRoute places a generated page next to its generator, or below
// it when the generator is a directory index.
func generatedRoute(parent *Page, name string) string {
	if parent.Index {
		return NormalizeRoute(path.Join(parent.Route, name))
	}
	dir := path.Dir(strings.TrimSuffix(parent.Route, "/"))
	return NormalizeRoute(path.Join(dir, name))
}

// ResolvePointer evaluates a JSON pointer against doc. The empty pointer
// selects doc itself.
func ResolvePointer(doc any, pointer string) (any, bool, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, false, err
	}
	cur := doc
	for _, tok := range tokens {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[tok]
			if !ok {
				return nil, false, nil
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(v) || (len(tok) > 1 && tok[0] == '0') {
				return nil, false, nil
			}
			cur = v[i]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}

func pointerTokens(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if pointer[0] != '/' {
		return nil, fmt.Errorf("json pointer %q must start with /", pointer)
	}
	parts := strings.Split(pointer[1:], "/")
	for i, p := range parts {
		if strings.Contains(strings.NewReplacer("~0", "", "~1", "").Replace(p), "~") {
			return nil, fmt.Errorf("json pointer %q has an invalid escape", pointer)
		}
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~")
	}
	return parts, nil
}
