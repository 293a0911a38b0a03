package build

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/conneroisu/slate/internal/graph"
)

// CacheKey identifies one rendering of one entity. Digest covers the
// entity's own content hash, the content hash of everything it reaches in
// the graph, and a configuration salt.
type CacheKey struct {
	ID     string
	Digest string
}

// String returns the map key form of the cache key
func (k CacheKey) String() string {
	return k.ID + "@" + k.Digest
}

// IsZero reports whether the key was never computed.
func (k CacheKey) IsZero() bool {
	return k.Digest == ""
}

// ComputeKey derives the cache key of id from the current graph. It
// returns false when id is not in the graph.
func ComputeKey(g *graph.Graph, id, salt string) (CacheKey, bool) {
	node, ok := g.Node(id)
	if !ok {
		return CacheKey{}, false
	}

	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = io.WriteString(h, p)
			_, _ = h.Write([]byte{0})
		}
	}

	write(salt, id, node.Kind.String(), node.Hash)
	for _, dep := range g.Reachable(id) {
		if n, ok := g.Node(dep); ok {
			write(dep, n.Hash)
		} else {
			// a missing dependency still shapes the output (as an error)
			write(dep, "-")
		}
	}

	return CacheKey{ID: id, Digest: hex.EncodeToString(h.Sum(nil))}, true
}
