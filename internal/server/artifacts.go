package server

import (
	"bytes"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/conneroisu/slate/internal/finish"
	"github.com/conneroisu/slate/internal/types"
)

// encodingOrder breaks ties between equally acceptable encodings.
var encodingOrder = []types.Encoding{types.EncodingBrotli, types.EncodingGzip, types.EncodingDeflate}

const reloadSnippet = `<script src="` + Prefix + `/reload.js" defer></script>`

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, redirect, ok := s.lookup(r.URL.Path)
	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusMovedPermanently)
		return
	}
	status := http.StatusOK
	if !ok {
		if artifact, ok = s.notFoundPage(); !ok {
			http.NotFound(w, r)
			return
		}
		status = http.StatusNotFound
	}
	s.serveArtifact(w, r, artifact, status)
}

// lookup resolves a request path to a published route. Directory routes
// are reachable with or without index.html; a path missing its trailing
// slash is redirected.
func (s *Server) lookup(p string) (*types.BuildArtifact, string, bool) {
	clean := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	if a, ok := s.session.CurrentArtifact(clean); ok {
		return a, "", true
	}
	if strings.HasSuffix(clean, "/index.html") {
		if a, ok := s.session.CurrentArtifact(strings.TrimSuffix(clean, "index.html")); ok {
			return a, "", true
		}
	}
	if !strings.HasSuffix(clean, "/") {
		if _, ok := s.session.CurrentArtifact(clean + "/"); ok {
			return nil, clean + "/", false
		}
	}
	return nil, "", false
}

func (s *Server) notFoundPage() (*types.BuildArtifact, bool) {
	for _, route := range []string{"/404/", "/404.html"} {
		if a, ok := s.session.CurrentArtifact(route); ok {
			return a, true
		}
	}
	return nil, false
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, a *types.BuildArtifact, status int) {
	body := a.Body
	etag := a.Hash
	var enc types.Encoding

	if s.cfg.Serve.LiveReload && finish.MediaType(a.ContentType) == "text/html" {
		body = injectReload(body)
		etag += "-lr"
	} else {
		enc = negotiate(r.Header.Get("Accept-Encoding"), types.Encoding(s.cfg.Serve.PreferredEncoding), a)
		if enc != "" {
			body, _ = a.Variant(enc)
			etag += "-" + string(enc)
		}
	}
	etag = strconv.Quote(etag)

	h := w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("ETag", etag)
	h.Set("Cache-Control", "no-cache")
	h.Add("Vary", "Accept-Encoding")
	if enc != "" {
		h.Set("Content-Encoding", string(enc))
	}

	if status == http.StatusOK && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

// negotiate picks the variant of a to serve for an Accept-Encoding header.
// The most acceptable encoding wins; preferred wins ties. An empty result
// means the identity body.
func negotiate(header string, preferred types.Encoding, a *types.BuildArtifact) types.Encoding {
	if header == "" || len(a.Variants) == 0 {
		return ""
	}
	accepted := parseAcceptEncoding(header)

	order := encodingOrder
	if preferred != "" {
		order = append([]types.Encoding{preferred}, encodingOrder...)
	}

	var best types.Encoding
	bestQ := 0.0
	for _, enc := range order {
		if _, ok := a.Variant(enc); !ok {
			continue
		}
		q, ok := accepted[string(enc)]
		if !ok {
			if enc == types.EncodingGzip {
				q, ok = accepted["x-gzip"]
			}
			if !ok {
				q = accepted["*"]
			}
		}
		if q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

// parseAcceptEncoding maps each coding of an Accept-Encoding header to its
// quality value.
func parseAcceptEncoding(header string) map[string]float64 {
	out := make(map[string]float64)
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		coding := strings.ToLower(strings.TrimSpace(fields[0]))
		if coding == "" {
			continue
		}
		q := 1.0
		for _, param := range fields[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(k) != "q" {
				continue
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				q = f
			}
		}
		out[coding] = q
	}
	return out
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == "*" || tag == etag {
			return true
		}
	}
	return false
}

// injectReload inserts the reload script before the closing body tag, or
// appends it when the minifier dropped that tag.
func injectReload(body []byte) []byte {
	out := make([]byte, 0, len(body)+len(reloadSnippet))
	if i := bytes.LastIndex(bytes.ToLower(body), []byte("</body>")); i >= 0 {
		out = append(out, body[:i]...)
		out = append(out, reloadSnippet...)
		return append(out, body[i:]...)
	}
	out = append(out, body...)
	return append(out, reloadSnippet...)
}
