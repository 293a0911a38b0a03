// Package renderer turns graph nodes into render-stage outputs.
//
// Each kind of entity has a parse step, run when its source changes, that
// produces the node payload; an edge step that declares what the node
// depends on; and a render step that produces its output given the
// outputs of its dependencies. Kinds are a closed set and every step is a
// switch over them.
package renderer

import (
	"context"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/slate/internal/build"
	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/finish"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/stylesheet"
	"github.com/conneroisu/slate/internal/types"
)

// Resolver gives a render read access to the graph and to the
// render-stage outputs of the node's dependencies.
type Resolver interface {
	Node(id string) (*graph.Node, bool)
	Edges(id string) []types.Edge
	Dangling(id string) []types.Edge
	Reachable(id string) []string
	// Output returns the render-stage output of a dependency.
	Output(ctx context.Context, id string) (*build.Output, error)
}

// PagePayload is the parsed form of a content node.
type PagePayload struct {
	Page *content.Page
	// Refs holds the references of template-language bodies and the
	// embeds of markdown bodies
	Refs *References
}

// StylePayload is the parsed form of a stylesheet.
type StylePayload struct {
	// Imports are the style ids of local @import rules
	Imports []string
}

// DataPayload is a decoded data file.
type DataPayload struct {
	Binding string
	Value   any
}

// Renderer is safe for concurrent use.
type Renderer struct {
	cfg          *config.Config
	markdown     *Markdown
	finisher     *finish.Finisher
	highlightCSS string
}

// New creates a renderer. finisher prepares stylesheets embedded into
// pages.
func New(cfg *config.Config, finisher *finish.Finisher) *Renderer {
	md := NewMarkdown(cfg.Markdown)
	css, err := md.HighlightCSS()
	if err != nil {
		css = ""
	}
	return &Renderer{
		cfg:          cfg,
		markdown:     md,
		finisher:     finisher,
		highlightCSS: css,
	}
}

// HighlightCSS is the stylesheet for highlighted code blocks, also exposed
// to templates as site.highlight_css.
func (r *Renderer) HighlightCSS() string {
	return r.highlightCSS
}

// Parse produces the payload for a freshly scanned file. Pages are parsed
// against the section manifest for their directory found in g.
func (r *Renderer) Parse(file *types.SourceFile, g *graph.Graph) (any, error) {
	switch file.Kind {
	case types.KindContent:
		page, err := content.ParsePageIn(file, r.cfg.Build.DefaultTemplate, sectionOf(g, file.Rel))
		if err != nil {
			return nil, errors.WrapSource(err, file.ID, "FRONT_MATTER", "parsing page failed").WithLocation(file.Path, 0)
		}
		payload := &PagePayload{Page: page}
		if page.Format == content.BodyMarkdown {
			payload.Refs = &References{Embeds: ScanEmbeds(page.Body)}
		} else {
			payload.Refs = ScanTemplate(page.Body)
		}
		return payload, nil

	case types.KindSection:
		section, err := content.ParseSection(file.Rel, file.Content, file.Hash)
		if err != nil {
			return nil, errors.WrapSource(err, file.ID, "SECTION", "parsing section manifest failed").WithLocation(file.Path, 0)
		}
		return &SectionPayload{Section: section}, nil

	case types.KindTemplate, types.KindPartial:
		return ScanTemplate(file.Content), nil

	case types.KindStyle:
		imports, err := stylesheet.Imports(file.Content)
		if err != nil {
			return nil, errors.WrapSource(err, file.ID, "STYLE_PARSE", "reading @import rules failed").WithLocation(file.Path, 0)
		}
		payload := &StylePayload{}
		for _, imp := range imports {
			if imp.Local() {
				payload.Imports = append(payload.Imports, types.PrefixStyles+imp.Resolve(file.Rel))
			}
		}
		return payload, nil

	case types.KindData:
		value, err := content.DecodeData(file.Rel, file.Content)
		if err != nil {
			return nil, errors.WrapSource(err, file.ID, "DATA_DECODE", "decoding data file failed").WithLocation(file.Path, 0)
		}
		return &DataPayload{Binding: content.DataBinding(file.Rel), Value: value}, nil

	case types.KindAsset:
		return nil, nil
	}
	return nil, errors.NewInternalError("UNKNOWN_KIND", fmt.Sprintf("no parser for %s", file.Kind), nil).WithEntity(file.ID)
}

// Edges derives the outgoing edges of n from its payload and, for listing
// pages, from the pages currently in g.
func (r *Renderer) Edges(n *graph.Node, g *graph.Graph) []types.Edge {
	var edges []types.Edge
	add := func(to string, kind types.EdgeKind) {
		edges = append(edges, types.Edge{From: n.ID, To: to, Kind: kind})
	}
	addRefs := func(refs *References) {
		if refs == nil {
			return
		}
		for _, name := range refs.Extends {
			add(types.PrefixTemplates+name, types.EdgeExtends)
		}
		for _, name := range refs.Includes {
			add(types.PrefixTemplates+name, types.EdgeIncludes)
		}
		for _, binding := range refs.Data {
			add(dataID(g, binding), types.EdgeUsesData)
		}
		for _, id := range refs.Embeds {
			add(id, types.EdgeBundledIn)
		}
		if refs.Sections {
			for _, id := range sectionIDs(g) {
				add(id, types.EdgeUsesData)
			}
		}
		for _, id := range refs.Renders {
			add(id, types.EdgeIncludes)
		}
		for _, id := range refs.Entries {
			add(id, types.EdgeLists)
		}
		for _, name := range refs.Files {
			add(fileID(g.Has, name), types.EdgeBundledIn)
		}
	}

	switch n.Kind {
	case types.KindContent:
		p, ok := n.Payload.(*PagePayload)
		if !ok {
			return nil
		}
		if p.Page.Template != "" {
			add(types.PrefixTemplates+TemplateName(p.Page.Template), types.EdgeExtends)
		}
		addRefs(p.Refs)
		if p.Page.Generate != nil {
			if binding, ok := p.Page.Generate.Binding(); ok {
				add(dataID(g, binding), types.EdgeUsesData)
			}
		}
		if p.Page.List != "" {
			for _, id := range r.Listed(n.ID, p.Page, g) {
				add(id, types.EdgeLists)
			}
		}
	case types.KindTemplate, types.KindPartial:
		refs, _ := n.Payload.(*References)
		addRefs(refs)
	case types.KindStyle:
		if s, ok := n.Payload.(*StylePayload); ok {
			for _, id := range s.Imports {
				add(id, types.EdgeBundledIn)
			}
		}
	}
	return edges
}

// Listed returns the published pages page lists, sorted by id. Listing
// pages never list each other.
func (r *Renderer) Listed(id string, page *content.Page, g *graph.Graph) []string {
	var ids []string
	for _, other := range g.WithPrefix(types.PrefixContent) {
		if !page.Lists(other) {
			continue
		}
		n, ok := g.Node(other)
		if !ok || n.Kind != types.KindContent {
			continue
		}
		p, ok := n.Payload.(*PagePayload)
		if !ok || !p.Page.Published(r.cfg.Build.Drafts) || p.Page.List != "" {
			continue
		}
		ids = append(ids, other)
	}
	return ids
}

// GraphDerived reports whether the edges of n depend on which other nodes
// exist, so they must be re-derived every cycle.
func GraphDerived(n *graph.Node) bool {
	switch p := n.Payload.(type) {
	case *PagePayload:
		return p.Page.List != "" || (p.Refs != nil && p.Refs.Sections)
	case *References:
		return p.Sections
	}
	return false
}

// dataID finds the data node bound to binding. A binding nothing provides
// yields the id such a file would most likely have, so the edge dangles
// until it appears.
func dataID(g *graph.Graph, binding string) string {
	for _, id := range g.WithPrefix(types.PrefixData) {
		if strings.ReplaceAll(strings.TrimPrefix(id, types.PrefixData), "/", "_") == binding {
			return id
		}
	}
	return types.PrefixData + binding
}

// Render produces the render-stage output of n.
func (r *Renderer) Render(ctx context.Context, n *graph.Node, res Resolver) (*build.Output, error) {
	if err := r.checkResolved(n, res); err != nil {
		return nil, err
	}

	out := &build.Output{ID: n.ID, Kind: n.Kind, Stage: build.StageRender}
	switch n.Kind {
	case types.KindContent:
		return r.renderPage(ctx, n, res, out)
	case types.KindTemplate, types.KindPartial:
		return r.renderTemplate(n, res, out)
	case types.KindStyle:
		return r.renderStyle(ctx, n, res, out)
	case types.KindData:
		p, ok := n.Payload.(*DataPayload)
		if !ok {
			return nil, errors.NewInternalError("PAYLOAD", "data node was not parsed", nil).WithEntity(n.ID)
		}
		out.Value = p.Value
		return out, nil
	case types.KindSection:
		p, ok := n.Payload.(*SectionPayload)
		if !ok {
			return nil, errors.NewInternalError("PAYLOAD", "section node was not parsed", nil).WithEntity(n.ID)
		}
		out.Value = p.Entries
		return out, nil
	case types.KindAsset:
		return r.renderAsset(n, out)
	}
	return nil, errors.NewInternalError("UNKNOWN_KIND", fmt.Sprintf("no renderer for %s", n.Kind), nil).WithEntity(n.ID)
}

// checkResolved fails when n depends on an entity that does not exist. A
// markdown page whose implicit default template is missing is rendered
// without a layout instead.
func (r *Renderer) checkResolved(n *graph.Node, res Resolver) error {
	for _, e := range res.Dangling(n.ID) {
		if e.Kind == types.EdgeExtends && n.Kind == types.KindContent {
			if p, ok := n.Payload.(*PagePayload); ok && !p.Page.ExplicitTemplate &&
				e.To == types.PrefixTemplates+TemplateName(p.Page.Template) {
				continue
			}
		}
		return errors.NewSourceError("UNRESOLVED",
			fmt.Sprintf("%s references %s (%s), which does not exist", n.ID, e.To, e.Kind), nil).WithEntity(n.ID)
	}
	return nil
}

func (r *Renderer) renderPage(ctx context.Context, n *graph.Node, res Resolver, out *build.Output) (*build.Output, error) {
	p, ok := n.Payload.(*PagePayload)
	if !ok {
		return nil, errors.NewInternalError("PAYLOAD", "content node was not parsed", nil).WithEntity(n.ID)
	}
	page := p.Page
	if !page.Published(r.cfg.Build.Drafts) {
		return out, nil
	}

	tctx := r.pageContext(ctx, n, page, res)
	set := r.templateSet(res)

	var body []byte
	var err error
	switch page.Format {
	case content.BodyMarkdown:
		body, err = r.markdown.Convert(page.Body)
		if err != nil {
			return nil, errors.WrapTransform(err, n.ID, "MARKDOWN", "rendering markdown failed")
		}
	default:
		tpl, err := set.FromBytes(page.Body)
		if err != nil {
			return nil, templateError(n.ID, err)
		}
		body, err = tpl.ExecuteBytes(tctx)
		if err != nil {
			return nil, templateError(n.ID, err)
		}
	}

	out.Value = string(body)

	if page.Template != "" {
		name := TemplateName(page.Template)
		if _, ok := res.Node(types.PrefixTemplates + name); ok {
			tctx["page"].(pongo2.Context)["content"] = pongo2.AsSafeValue(string(body))
			tpl, err := set.FromFile(name)
			if err != nil {
				return nil, templateError(n.ID, err)
			}
			body, err = tpl.ExecuteBytes(tctx)
			if err != nil {
				return nil, templateError(n.ID, err)
			}
		}
	}

	if finish.MediaType(page.ContentType) == "text/html" {
		body, err = RewriteLinks(body, r.cfg.Site.BaseURL, func(id string) ([]byte, error) {
			return r.embed(ctx, n.ID, id, res)
		})
		if err != nil {
			return nil, errors.WrapTransform(err, n.ID, "REWRITE", "rewriting links failed")
		}
	}

	out.Body = body
	out.ContentType = page.ContentType
	out.Route = page.Route
	return out, nil
}

func (r *Renderer) embed(ctx context.Context, from, id string, res Resolver) ([]byte, error) {
	dep, err := res.Output(ctx, id)
	if err != nil {
		return nil, err
	}
	if dep.Kind != types.KindStyle {
		return nil, errors.NewSourceError("EMBED", fmt.Sprintf("%s embeds %s, which is not a stylesheet", from, id), nil).WithEntity(from)
	}
	return r.finisher.Style(dep.Body)
}

// renderTemplate compiles a template so syntax errors are reported
// against the template itself. The output carries its source.
func (r *Renderer) renderTemplate(n *graph.Node, res Resolver, out *build.Output) (*build.Output, error) {
	name := strings.TrimPrefix(n.ID, types.PrefixTemplates)
	if _, err := r.templateSet(res).FromFile(name); err != nil {
		return nil, templateError(n.ID, err)
	}
	out.Body = n.File.Content
	return out, nil
}

func (r *Renderer) renderStyle(ctx context.Context, n *graph.Node, res Resolver, out *build.Output) (*build.Output, error) {
	body, err := stylesheet.Bundle(n.File.Content, func(imp stylesheet.Import) ([]byte, bool, error) {
		if !imp.Local() {
			return nil, false, nil
		}
		dep, err := res.Output(ctx, types.PrefixStyles+imp.Resolve(n.File.Rel))
		if err != nil {
			return nil, false, err
		}
		return dep.Body, true, nil
	})
	if err != nil {
		return nil, errors.WrapSource(err, n.ID, "STYLE_BUNDLE", "bundling stylesheet failed").WithLocation(n.File.Path, 0)
	}

	out.Body = body
	out.ContentType = "text/css; charset=utf-8"
	out.Route = RouteOf(n, r.cfg.Build.Drafts)
	return out, nil
}

// renderAsset reads the asset again and checks it still has the scanned
// content, so the artifact matches the cache key it is stored under.
func (r *Renderer) renderAsset(n *graph.Node, out *build.Output) (*build.Output, error) {
	body, err := fileBytes(n)
	if err != nil {
		return nil, err
	}

	out.Body = body
	out.Route = AssetRoute(n.ID)
	out.ContentType = content.ContentTypeFor(out.Route)
	return out, nil
}

func (r *Renderer) siteContext() pongo2.Context {
	params := r.cfg.Site.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return pongo2.Context{
		"base_url":      r.cfg.Site.BaseURL,
		"title":         r.cfg.Site.Title,
		"params":        params,
		"highlight_css": pongo2.AsSafeValue(r.highlightCSS),
	}
}

func (r *Renderer) pageContext(ctx context.Context, n *graph.Node, page *content.Page, res Resolver) pongo2.Context {
	data := pongo2.Context{}
	for _, id := range res.Reachable(n.ID) {
		if !strings.HasPrefix(id, types.PrefixData) {
			continue
		}
		dep, ok := res.Node(id)
		if !ok {
			continue
		}
		if p, ok := dep.Payload.(*DataPayload); ok {
			data[p.Binding] = p.Value
		}
	}

	var pages []pongo2.Context
	if page.List != "" {
		var summaries []content.Summary
		for _, e := range res.Edges(n.ID) {
			if e.Kind != types.EdgeLists {
				continue
			}
			dep, ok := res.Node(e.To)
			if !ok {
				continue
			}
			if p, ok := dep.Payload.(*PagePayload); ok {
				summaries = append(summaries, p.Page.Summarize(r.cfg.Site.BaseURL))
			}
		}
		content.SortSummaries(summaries)
		for _, s := range summaries {
			pages = append(pages, summaryContext(s))
		}
	}

	pageCtx := summaryContext(page.Summarize(r.cfg.Site.BaseURL))
	pageCtx["id"] = page.ID
	pageCtx["draft"] = page.Draft
	pageCtx["section"] = sectionContext(page)

	tctx := r.newHelpers(ctx, n, res).context()
	tctx["page"] = pageCtx
	tctx["site"] = r.siteContext()
	tctx["data"] = data
	tctx["pages"] = pages
	return tctx
}

func summaryContext(s content.Summary) pongo2.Context {
	params := s.Params
	if params == nil {
		params = map[string]any{}
	}
	return pongo2.Context{
		"title":   s.Title,
		"route":   s.Route,
		"url":     s.URL,
		"date":    s.Date,
		"summary": s.Summary,
		"params":  params,
	}
}
