package renderer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/scanner"
	"github.com/conneroisu/slate/internal/types"
)

func init() {
	if !pongo2.FilterExists("base64") {
		_ = pongo2.RegisterFilter("base64", filterBase64)
	}
}

// filterBase64 encodes the string form of its input.
func filterBase64(in, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(base64.StdEncoding.EncodeToString([]byte(in.String()))), nil
}

// contentID accepts a page id with or without the content prefix.
func contentID(name string) string {
	name = strings.TrimPrefix(name, "@/")
	if strings.HasPrefix(name, types.PrefixContent) {
		return name
	}
	return types.PrefixContent + strings.TrimPrefix(name, "/")
}

// fileID accepts a full entity id or a path under the static dir.
func fileID(has func(string) bool, name string) string {
	name = strings.TrimPrefix(name, "/")
	if has(name) {
		return name
	}
	return types.PrefixStatic + name
}

// helpers are the functions a page's templates call to read other
// entities. Each one only reads entities the page depends on, so the
// page's cache key covers everything they return.
type helpers struct {
	r         *Renderer
	ctx       context.Context
	n         *graph.Node
	res       Resolver
	reachable map[string]struct{}
}

func (r *Renderer) newHelpers(ctx context.Context, n *graph.Node, res Resolver) *helpers {
	h := &helpers{r: r, ctx: ctx, n: n, res: res, reachable: make(map[string]struct{})}
	for _, id := range res.Reachable(n.ID) {
		h.reachable[id] = struct{}{}
	}
	return h
}

func (h *helpers) context() pongo2.Context {
	return pongo2.Context{
		"sections":       h.sections,
		"entry":          h.entry,
		"render_content": h.renderContent,
		"base64_file":    h.base64File,
	}
}

func (h *helpers) undeclared(fn, id string) error {
	return errors.NewSourceError("UNDECLARED",
		fmt.Sprintf("%s calls %s on %s, which it does not depend on; pass the id as a string literal", h.n.ID, fn, id), nil).
		WithEntity(h.n.ID)
}

// sectionPayloads returns the sections the page depends on, by handle.
func (h *helpers) sectionPayloads() []*SectionPayload {
	var out []*SectionPayload
	for _, id := range h.res.Reachable(h.n.ID) {
		dep, ok := h.res.Node(id)
		if !ok || dep.Kind != types.KindSection {
			continue
		}
		if p, ok := dep.Payload.(*SectionPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

// sections returns every section, or the one named by handle.
func (h *helpers) sections(handle ...string) (any, error) {
	if len(handle) > 1 {
		return nil, fmt.Errorf("sections takes at most one handle, got %d", len(handle))
	}
	var all []pongo2.Context
	for _, p := range h.sectionPayloads() {
		if len(handle) == 1 && p.Section.Handle != handle[0] {
			continue
		}
		sc := sectionMeta(p.Section)
		entries := make([]pongo2.Context, 0, len(p.Entries))
		for _, id := range p.Entries {
			if e, ok := h.summary(id); ok {
				entries = append(entries, e)
			}
		}
		sc["entries"] = entries
		all = append(all, sc)
	}
	if len(handle) == 1 {
		if len(all) == 0 {
			return nil, nil
		}
		return all[0], nil
	}
	return all, nil
}

func (h *helpers) summary(id string) (pongo2.Context, bool) {
	dep, ok := h.res.Node(id)
	if !ok {
		return nil, false
	}
	p, ok := dep.Payload.(*PagePayload)
	if !ok || !p.Page.Published(h.r.cfg.Build.Drafts) {
		return nil, false
	}
	sc := summaryContext(p.Page.Summarize(h.r.cfg.Site.BaseURL))
	sc["id"] = id
	return sc, true
}

// entryAllowed reports whether the page may read the summary of id: it
// depends on id directly or on a section listing it.
func (h *helpers) entryAllowed(id string) bool {
	if _, ok := h.reachable[id]; ok {
		return true
	}
	for _, p := range h.sectionPayloads() {
		for _, e := range p.Entries {
			if e == id {
				return true
			}
		}
	}
	return false
}

// entry returns the summary of one page, or of each page in a list of
// ids. Pages that are not published yield nothing.
func (h *helpers) entry(ref *pongo2.Value) (any, error) {
	one := func(name string) (pongo2.Context, error) {
		id := contentID(name)
		if !h.entryAllowed(id) {
			return nil, h.undeclared("entry", id)
		}
		sc, ok := h.summary(id)
		if !ok {
			return nil, nil
		}
		return sc, nil
	}

	if ref.IsString() {
		sc, err := one(ref.String())
		if err != nil || sc == nil {
			return nil, err
		}
		return sc, nil
	}
	if !ref.CanSlice() {
		return nil, fmt.Errorf("entry takes an id or a list of ids, got %s", ref.String())
	}
	var list []pongo2.Context
	for i := 0; i < ref.Len(); i++ {
		sc, err := one(ref.Index(i).String())
		if err != nil {
			return nil, err
		}
		if sc != nil {
			list = append(list, sc)
		}
	}
	return list, nil
}

// renderContent returns another page's body as rendered before its
// layout was applied.
func (h *helpers) renderContent(name string) (*pongo2.Value, error) {
	id := contentID(name)
	if _, ok := h.reachable[id]; !ok {
		return nil, h.undeclared("render_content", id)
	}
	dep, err := h.res.Output(h.ctx, id)
	if err != nil {
		return nil, err
	}
	body, _ := dep.Value.(string)
	return pongo2.AsSafeValue(body), nil
}

// base64File returns the standard base64 encoding of a source file.
func (h *helpers) base64File(name string) (string, error) {
	id := fileID(func(id string) bool { _, ok := h.res.Node(id); return ok }, name)
	if _, ok := h.reachable[id]; !ok {
		return "", h.undeclared("base64_file", id)
	}
	dep, ok := h.res.Node(id)
	if !ok || dep.File == nil {
		return "", errors.NewSourceError("UNRESOLVED", fmt.Sprintf("%s does not exist", id), nil).WithEntity(h.n.ID)
	}
	raw, err := fileBytes(dep)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// fileBytes returns the scanned content of n, reading assets from disk
// and checking they still match their scanned hash.
func fileBytes(n *graph.Node) ([]byte, error) {
	if n.File.Content != nil {
		return n.File.Content, nil
	}
	raw, err := os.ReadFile(n.File.Path)
	if err != nil {
		return nil, errors.WrapTransform(err, n.ID, "ASSET_READ", "reading asset failed")
	}
	if scanner.HashBytes(raw) != n.File.Hash {
		return nil, errors.NewTransformError("ASSET_CHANGED", "asset changed after it was scanned", nil).WithEntity(n.ID).WithLocation(n.File.Path, 0)
	}
	return raw, nil
}

// sectionContext is what a page sees of the section it sits in.
func sectionContext(page *content.Page) any {
	if page.Section == nil {
		return nil
	}
	return sectionMeta(page.Section)
}
