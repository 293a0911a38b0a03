package renderer

import (
	"bytes"
	"io"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// EmbedFunc returns the finished stylesheet for a style id.
type EmbedFunc func(id string) ([]byte, error)

var styleClose = regexp.MustCompile(`(?i)</style`)

// linkAttrs lists, per element, the attribute that may carry a
// site-relative `@/` link.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"source": "src",
}

// RewriteLinks rewrites `@/` links in an HTML document against baseURL and
// replaces embedded stylesheet links with inline <style> elements. Tags
// that need no change are copied byte for byte.
func RewriteLinks(src []byte, baseURL string, embed EmbedFunc) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(src))
	var out bytes.Buffer
	out.Grow(len(src))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return out.Bytes(), nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			if err := rewriteTag(&out, tok, raw, baseURL, embed); err != nil {
				return nil, err
			}
		default:
			out.Write(z.Raw())
		}
	}
}

func rewriteTag(out *bytes.Buffer, tok html.Token, raw []byte, baseURL string, embed EmbedFunc) error {
	attrName, ok := linkAttrs[tok.Data]
	if !ok {
		out.Write(raw)
		return nil
	}

	if tok.Data == "link" && embed != nil {
		if id, ok := embedTarget(tok); ok {
			css, err := embed(id)
			if err != nil {
				return err
			}
			out.WriteString("<style")
			if media := attr(tok, "media"); media != "" {
				out.WriteString(` media="`)
				out.WriteString(html.EscapeString(media))
				out.WriteByte('"')
			}
			out.WriteByte('>')
			out.Write(styleClose.ReplaceAll(css, []byte(`<\/style`)))
			out.WriteString("</style>")
			return nil
		}
	}

	changed := false
	for i, a := range tok.Attr {
		if a.Namespace == "" && a.Key == attrName && strings.HasPrefix(a.Val, "@/") {
			tok.Attr[i].Val = baseURL + strings.TrimPrefix(a.Val, "@/")
			changed = true
		}
	}
	if !changed {
		out.Write(raw)
		return nil
	}
	out.WriteString(tok.String())
	return nil
}

// embedTarget reports the style id of a `<link rel="stylesheet"
// href="@/styles/..." embed>` tag.
func embedTarget(tok html.Token) (string, bool) {
	if !hasAttr(tok, "embed") {
		return "", false
	}
	href := attr(tok, "href")
	if !strings.HasPrefix(href, "@/styles/") {
		return "", false
	}
	return path.Clean(strings.TrimPrefix(href, "@/")), true
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(tok html.Token, key string) bool {
	for _, a := range tok.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
