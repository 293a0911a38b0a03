// Package stylesheet rewrites CSS at the token level: it inlines local
// @import rules and adds vendor-prefixed declarations for a set of target
// browsers. Tokens that are not rewritten are written back byte for byte.
package stylesheet

import (
	"bytes"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	data []byte
}

// statement is the run of tokens between two of `{`, `}` and `;`.
type statement struct {
	tokens []token
	depth  int
}

// visitor receives each statement with the token that ended it, which is
// ErrorToken at end of input. It writes whatever should replace them.
type visitor func(w *bytes.Buffer, st statement, end token) error

func walk(src []byte, visit visitor) ([]byte, error) {
	l := css.NewLexer(parse.NewInputBytes(src))
	var out bytes.Buffer
	out.Grow(len(src))

	depth := 0
	var cur []token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && err != io.EOF {
				return nil, err
			}
			if err := visit(&out, statement{tokens: cur, depth: depth}, token{tt: css.ErrorToken}); err != nil {
				return nil, err
			}
			return out.Bytes(), nil
		}

		// the lexer reuses its buffer
		tok := token{tt: tt, data: append([]byte(nil), data...)}
		switch tt {
		case css.LeftBraceToken, css.RightBraceToken, css.SemicolonToken:
			if err := visit(&out, statement{tokens: cur, depth: depth}, tok); err != nil {
				return nil, err
			}
			cur = cur[:0]
			if tt == css.LeftBraceToken {
				depth++
			} else if tt == css.RightBraceToken && depth > 0 {
				depth--
			}
		default:
			cur = append(cur, tok)
		}
	}
}

// significant returns the tokens of st without whitespace and comments.
func (st statement) significant() []token {
	out := make([]token, 0, len(st.tokens))
	for _, t := range st.tokens {
		if t.tt == css.WhitespaceToken || t.tt == css.CommentToken {
			continue
		}
		out = append(out, t)
	}
	return out
}

// property returns the lowercased declaration name when st is a
// declaration inside a block.
func (st statement) property() (string, bool) {
	if st.depth == 0 {
		return "", false
	}
	sig := st.significant()
	if len(sig) < 2 || sig[0].tt != css.IdentToken || sig[1].tt != css.ColonToken {
		return "", false
	}
	return strings.ToLower(string(sig[0].data)), true
}

func writeTokens(w *bytes.Buffer, tokens []token) {
	for _, t := range tokens {
		w.Write(t.data)
	}
}

func writeEnd(w *bytes.Buffer, end token) {
	if end.tt != css.ErrorToken {
		w.Write(end.data)
	}
}
