package renderer

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/scanner"
	"github.com/conneroisu/slate/internal/types"
)

// SectionPayload is the parsed form of a section manifest together with
// the pages it currently holds.
type SectionPayload struct {
	Section *content.Section
	// Entries are the ids of the published pages directly in the section,
	// in listing order
	Entries []string
}

// sectionOf returns the section governing the content file at rel, if its
// manifest is in g and parsed.
func sectionOf(g *graph.Graph, rel string) *content.Section {
	if g == nil {
		return nil
	}
	n, ok := g.Node(content.ManifestID(content.SectionDir(rel)))
	if !ok {
		return nil
	}
	if p, ok := n.Payload.(*SectionPayload); ok {
		return p.Section
	}
	return nil
}

// NodeHash is the hash a freshly parsed node carries. A page inside a
// section also covers the manifest, which shapes its route and template.
func NodeHash(file *types.SourceFile, payload any) string {
	if p, ok := payload.(*PagePayload); ok && p.Page.Section != nil {
		return scanner.HashBytes([]byte(file.Hash + "\x00" + p.Page.Section.Hash))
	}
	return file.Hash
}

// RefreshSection recomputes the entries of the section node n. It returns
// a replacement node when the entries or their summaries changed.
func (r *Renderer) RefreshSection(n *graph.Node, g *graph.Graph) (*graph.Node, bool) {
	p, ok := n.Payload.(*SectionPayload)
	if !ok || n.File == nil {
		return nil, false
	}

	type entry struct {
		id      string
		summary content.Summary
	}
	var found []entry
	for _, id := range g.WithPrefix(types.PrefixContent + p.Section.Prefix()) {
		if !p.Section.Contains(id) {
			continue
		}
		dep, ok := g.Node(id)
		if !ok || dep.Kind != types.KindContent {
			continue
		}
		pp, ok := dep.Payload.(*PagePayload)
		if !ok || !pp.Page.Published(r.cfg.Build.Drafts) {
			continue
		}
		found = append(found, entry{id: id, summary: pp.Page.Summarize(r.cfg.Site.BaseURL)})
	}
	sort.SliceStable(found, func(i, j int) bool { return content.SummaryLess(found[i].summary, found[j].summary) })

	entries := make([]string, 0, len(found))
	summaries := make([]content.Summary, 0, len(found))
	for _, e := range found {
		entries = append(entries, e.id)
		summaries = append(summaries, e.summary)
	}
	raw, err := json.Marshal(struct {
		Entries   []string
		Summaries []content.Summary
	}{entries, summaries})
	if err != nil {
		raw = []byte(strings.Join(entries, "\x00"))
	}
	hash := scanner.HashBytes(append([]byte(n.File.Hash+"\x00"), raw...))
	if hash == n.Hash {
		return nil, false
	}
	return &graph.Node{
		ID:      n.ID,
		Kind:    n.Kind,
		Hash:    hash,
		File:    n.File,
		Payload: &SectionPayload{Section: p.Section, Entries: entries},
	}, true
}

// sectionIDs returns the ids of every section node in g, sorted.
func sectionIDs(g *graph.Graph) []string {
	var ids []string
	for _, id := range g.WithPrefix(types.PrefixContent) {
		if n, ok := g.Node(id); ok && n.Kind == types.KindSection {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// sectionMeta is what a page sees of the section it sits in.
func sectionMeta(s *content.Section) pongo2.Context {
	route := content.NormalizeRoute("/" + s.Dir)
	return pongo2.Context{
		"handle":      s.Handle,
		"dir":         s.Dir,
		"title":       s.Title,
		"description": s.Description,
		"link_text":   s.LinkText,
		"route":       route,
	}
}
