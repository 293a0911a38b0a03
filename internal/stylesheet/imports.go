package stylesheet

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// Import is one @import rule.
type Import struct {
	URL   string
	Media string
}

// Local reports whether the import refers to a sheet in the same site.
func (i Import) Local() bool {
	u := strings.ToLower(i.URL)
	return !strings.HasPrefix(u, "http:") && !strings.HasPrefix(u, "https:") &&
		!strings.HasPrefix(u, "//") && !strings.HasPrefix(u, "data:")
}

// Resolve maps a local import URL onto a path relative to the styles
// directory, given the importing sheet's own relative path.
func (i Import) Resolve(fromRel string) string {
	u := strings.TrimPrefix(i.URL, "@/")
	if strings.HasPrefix(i.URL, "/") || strings.HasPrefix(i.URL, "@/") {
		return strings.TrimPrefix(path.Clean("/"+u), "/")
	}
	return strings.TrimPrefix(path.Clean("/"+path.Join(path.Dir(fromRel), u)), "/")
}

func parseImport(st statement) (Import, bool) {
	// indexes of significant tokens into st.tokens
	var idx []int
	for i, t := range st.tokens {
		if t.tt != css.WhitespaceToken && t.tt != css.CommentToken {
			idx = append(idx, i)
		}
	}
	if st.depth != 0 || len(idx) < 2 {
		return Import{}, false
	}
	first := st.tokens[idx[0]]
	if first.tt != css.AtKeywordToken || !strings.EqualFold(string(first.data), "@import") {
		return Import{}, false
	}

	var url string
	last := idx[1]
	second := st.tokens[idx[1]]
	switch {
	case second.tt == css.StringToken:
		url = unquote(string(second.data))
	case second.tt == css.URLToken:
		inner := strings.TrimSpace(string(second.data))
		inner = strings.TrimSuffix(inner[strings.IndexByte(inner, '(')+1:], ")")
		url = unquote(strings.TrimSpace(inner))
	case second.tt == css.FunctionToken && strings.EqualFold(string(second.data), "url("):
		// url("x") may be lexed as a function around a string
		if len(idx) < 4 || st.tokens[idx[2]].tt != css.StringToken || st.tokens[idx[3]].tt != css.RightParenthesisToken {
			return Import{}, false
		}
		url = unquote(string(st.tokens[idx[2]].data))
		last = idx[3]
	default:
		return Import{}, false
	}

	var media bytes.Buffer
	for _, t := range st.tokens[last+1:] {
		media.Write(t.data)
	}
	return Import{URL: url, Media: strings.TrimSpace(media.String())}, true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Imports lists the @import rules of src in order.
func Imports(src []byte) ([]Import, error) {
	var imports []Import
	_, err := walk(src, func(w *bytes.Buffer, st statement, end token) error {
		if end.tt == css.SemicolonToken || end.tt == css.ErrorToken {
			if imp, ok := parseImport(st); ok {
				imports = append(imports, imp)
			}
		}
		return nil
	})
	return imports, err
}

// ResolveFunc returns the bundled contents of a local import. ok is false
// when the import should be left in place.
type ResolveFunc func(imp Import) (body []byte, ok bool, err error)

// Bundle replaces every resolvable @import in src with the imported
// sheet. Media-qualified imports are wrapped in an @media block.
func Bundle(src []byte, resolve ResolveFunc) ([]byte, error) {
	return walk(src, func(w *bytes.Buffer, st statement, end token) error {
		if end.tt == css.SemicolonToken || end.tt == css.ErrorToken {
			if imp, ok := parseImport(st); ok {
				body, inline, err := resolve(imp)
				if err != nil {
					return fmt.Errorf("@import %q: %w", imp.URL, err)
				}
				if inline {
					if imp.Media != "" {
						fmt.Fprintf(w, "@media %s{\n%s\n}\n", imp.Media, bytes.TrimSpace(body))
					} else {
						w.Write(bytes.TrimSpace(body))
						w.WriteByte('\n')
					}
					return nil
				}
			}
		}
		writeTokens(w, st.tokens)
		writeEnd(w, end)
		return nil
	})
}
