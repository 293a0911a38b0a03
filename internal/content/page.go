package content

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/conneroisu/slate/internal/types"
)

// BodyFormat is how a page body is turned into HTML.
type BodyFormat int

const (
	// BodyMarkdown is rendered through the markdown converter.
	BodyMarkdown BodyFormat = iota
	// BodyHTML is evaluated as a one-off template.
	BodyHTML
	// BodyTemplate is a `.tpl` file; the output keeps its inner extension.
	BodyTemplate
)

// Page is a parsed content source.
type Page struct {
	ID       string
	Title    string
	Route    string
	Template string
	// ExplicitTemplate is false when Template is the configured default
	ExplicitTemplate bool
	Draft            bool
	Date             time.Time
	Summary          string
	// List is the content directory whose pages this page lists
	List string
	// Index is true for the index page of a directory
	Index bool
	// Section is the section the page sits in, if any
	Section *Section
	// Generate makes the page a generator that is not published itself
	Generate *Generator
	// GeneratedFrom is the id of the generator that produced this page
	GeneratedFrom string
	Params        map[string]any
	Body          []byte
	Format        BodyFormat
	ContentType   string
}

// Summary is what a listing page sees of each listed page.
type Summary struct {
	Title   string
	Route   string
	URL     string
	Date    time.Time
	Summary string
	Params  map[string]any
}

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)$`)

// IsContentSource reports whether rel under the content dir is a page
// rather than a colocated asset.
func IsContentSource(rel string) bool {
	switch strings.ToLower(path.Ext(rel)) {
	case ".md", ".markdown", ".html", ".htm", ".tpl":
		return true
	}
	return false
}

// ParsePage splits and decodes a content file and computes its route.
// defaultTemplate is used when the front matter names no template.
func ParsePage(file *types.SourceFile, defaultTemplate string) (*Page, error) {
	return ParsePageIn(file, defaultTemplate, nil)
}

// ParsePageIn parses a page that sits in section, which may be nil. The
// section's slug pattern shapes the route and its index template is the
// layout of the directory's index page.
func ParsePageIn(file *types.SourceFile, defaultTemplate string, section *Section) (*Page, error) {
	raw, body, format, err := Split(file.Content)
	if err != nil {
		return nil, err
	}
	fields, err := ParseFields(raw, format)
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:      file.ID,
		Body:    body,
		Params:  map[string]any{},
		Section: section,
	}

	rel := file.Rel
	ext := strings.ToLower(path.Ext(rel))
	switch ext {
	case ".md", ".markdown":
		page.Format = BodyMarkdown
	case ".html", ".htm":
		page.Format = BodyHTML
	case ".tpl":
		page.Format = BodyTemplate
		rel = strings.TrimSuffix(rel, path.Ext(rel))
	default:
		return nil, fmt.Errorf("unsupported content extension %q", ext)
	}

	dir, base := path.Split(rel)
	stem := base
	if page.Format != BodyTemplate {
		stem = strings.TrimSuffix(base, path.Ext(base))
	}
	fileStem := stem
	if m := datePrefix.FindStringSubmatch(stem); m != nil {
		if d, err := time.Parse("2006-01-02", m[1]); err == nil {
			page.Date = d
			stem = m[2]
		}
	}

	for key, value := range fields {
		switch key {
		case "title":
			page.Title = fmt.Sprint(value)
		case "template":
			page.Template = fmt.Sprint(value)
			page.ExplicitTemplate = page.Template != ""
		case "draft":
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("front matter draft must be a boolean, got %T", value)
			}
			page.Draft = b
		case "date":
			d, err := parseDate(value)
			if err != nil {
				return nil, err
			}
			page.Date = d
		case "summary":
			page.Summary = fmt.Sprint(value)
		case "list":
			page.List = strings.Trim(path.Clean("/"+fmt.Sprint(value)), "/")
		case "generate_from":
			g, err := parseGenerator(value)
			if err != nil {
				return nil, err
			}
			page.Generate = g
		case "route", "slug":
		default:
			page.Params[key] = value
		}
	}

	if page.Title == "" {
		page.Title = TitleFromName(stem)
	}
	page.Index = page.Format != BodyTemplate && fileStem == "index"
	if !page.ExplicitTemplate && page.Index && section != nil && section.IndexTemplate != "" {
		page.Template = section.IndexTemplate
		page.ExplicitTemplate = true
	}
	if page.Format == BodyMarkdown && !page.ExplicitTemplate {
		page.Template = defaultTemplate
	}

	var segments []string
	patterned := false
	if !page.Index && page.Format != BodyTemplate {
		if segments, patterned, err = section.routeSegments(fileStem); err != nil {
			return nil, err
		}
	}

	switch {
	case fields["route"] != nil:
		page.Route = NormalizeRoute(fmt.Sprint(fields["route"]))
	case page.Format == BodyTemplate:
		page.Route = "/" + dir + stem
	case patterned && fields["slug"] == nil:
		page.Route = NormalizeRoute("/" + dir + strings.Join(segments, "/"))
	default:
		slug := Slugify(stem)
		if s, ok := fields["slug"]; ok {
			slug = Slugify(fmt.Sprint(s))
		}
		if slug == "index" || slug == "" {
			page.Route = NormalizeRoute("/" + dir)
		} else {
			page.Route = NormalizeRoute("/" + dir + slug)
		}
	}

	page.ContentType = "text/html; charset=utf-8"
	if page.Format == BodyTemplate {
		page.ContentType = ContentTypeFor(page.Route)
	}

	return page, nil
}

// Published reports whether the page produces an artifact. A generator
// never does; the pages it generates may.
func (p *Page) Published(drafts bool) bool {
	return p.Generate == nil && (drafts || !p.Draft)
}

// Summarize returns the listing view of p under baseURL.
func (p *Page) Summarize(baseURL string) Summary {
	return Summary{
		Title:   p.Title,
		Route:   p.Route,
		URL:     JoinURL(baseURL, p.Route),
		Date:    p.Date,
		Summary: p.Summary,
		Params:  p.Params,
	}
}

// Lists reports whether the page at id falls under p's listed directory.
func (p *Page) Lists(id string) bool {
	if p.List == "" || id == p.ID {
		return false
	}
	prefix := types.PrefixContent
	if p.List != "." && p.List != "" {
		prefix += p.List + "/"
	}
	return strings.HasPrefix(id, prefix)
}

// SortSummaries orders listed pages newest first, then by route.
func SortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool { return SummaryLess(s[i], s[j]) })
}

// SummaryLess is the listing order SortSummaries applies.
func SummaryLess(a, b Summary) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Route < b.Route
}

// NormalizeRoute gives r a leading slash and, unless its last segment has
// an extension, a trailing slash.
func NormalizeRoute(r string) string {
	trailing := strings.HasSuffix(r, "/")
	r = path.Clean("/" + r)
	if r == "/" {
		return r
	}
	if trailing || path.Ext(r) == "" {
		return r + "/"
	}
	return r
}

// RouteFile maps a route onto the slash-separated file path it is written
// to under the output directory.
func RouteFile(route string) string {
	rel := strings.TrimPrefix(route, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return rel + "index.html"
	}
	return rel
}

// JoinURL prefixes route with baseURL, which always ends in a slash.
func JoinURL(baseURL, route string) string {
	return baseURL + strings.TrimPrefix(route, "/")
}

// ContentTypeFor guesses the media type from a route's extension.
func ContentTypeFor(route string) string {
	if strings.HasSuffix(route, "/") {
		return "text/html; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(route)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func parseDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case toml.LocalDate:
		return v.AsTime(time.UTC), nil
	case toml.LocalDateTime:
		return v.AsTime(time.UTC), nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("front matter date %q is not a recognised date", v)
	}
	return time.Time{}, fmt.Errorf("front matter date has unsupported type %T", value)
}
