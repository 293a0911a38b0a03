package renderer

import (
	"strings"

	"github.com/conneroisu/slate/internal/graph"
	"github.com/conneroisu/slate/internal/types"
)

// AssetRoute maps an asset id onto its route. Static files and files
// colocated with content are served from the site root; files under the
// styles directory keep the styles prefix.
func AssetRoute(id string) string {
	switch {
	case strings.HasPrefix(id, types.PrefixStatic):
		return "/" + strings.TrimPrefix(id, types.PrefixStatic)
	case strings.HasPrefix(id, types.PrefixContent):
		return "/" + strings.TrimPrefix(id, types.PrefixContent)
	default:
		return "/" + id
	}
}

// RouteOf returns the route n is published at, or "" when it produces no
// artifact. Content nodes must have been parsed.
func RouteOf(n *graph.Node, drafts bool) string {
	switch n.Kind {
	case types.KindContent:
		p, ok := n.Payload.(*PagePayload)
		if !ok || !p.Page.Published(drafts) {
			return ""
		}
		return p.Page.Route
	case types.KindStyle:
		if n.File != nil && n.File.IsPartialStyle() {
			return ""
		}
		return "/" + n.ID
	case types.KindAsset:
		return AssetRoute(n.ID)
	}
	return ""
}
