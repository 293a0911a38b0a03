package renderer

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/scanner"
)

// Generator returns the page of n when it generates other pages.
func Generator(n *graph.Node) (*content.Page, bool) {
	p, ok := n.Payload.(*PagePayload)
	if !ok || p.Page.Generate == nil {
		return nil, false
	}
	return p.Page, true
}

// Expand builds one node per page the generator n produces. Each node
// hashes the generator node together with its own item, so a changed item
// only invalidates the page made from it.
func (r *Renderer) Expand(n *graph.Node, g *graph.Graph) ([]*graph.Node, error) {
	parent, ok := Generator(n)
	if !ok {
		return nil, nil
	}

	data := map[string]any{}
	if binding, ok := parent.Generate.Binding(); ok {
		if dep, ok := g.Node(dataID(g, binding)); ok {
			if p, ok := dep.Payload.(*DataPayload); ok {
				data[p.Binding] = p.Value
			}
		}
	}

	pages, err := content.Expand(parent, content.GenerateRoot(parent.Params, data))
	if err != nil {
		return nil, errors.WrapSource(err, n.ID, "GENERATE", "generating pages failed").WithLocation(n.File.Path, 0)
	}

	refs := n.Payload.(*PagePayload).Refs
	nodes := make([]*graph.Node, 0, len(pages))
	for _, page := range pages {
		item, err := json.Marshal(page.Params["generate"])
		if err != nil {
			return nil, errors.WrapSource(err, n.ID, "GENERATE", fmt.Sprintf("item of %s cannot be hashed", page.ID))
		}
		nodes = append(nodes, &graph.Node{
			ID:      page.ID,
			Kind:    n.Kind,
			Hash:    scanner.HashBytes([]byte(n.Hash + "\x00" + page.ID + "\x00" + string(item))),
			File:    n.File,
			Payload: &PagePayload{Page: page, Refs: refs},
		})
	}
	return nodes, nil
}
