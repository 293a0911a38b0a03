package stylesheet

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// Targets is the browser support set a stylesheet is prepared for.
type Targets struct {
	// Broad means the set was given as a usage query ("> 0.2%",
	// "defaults", "last 2 versions") and every known prefix applies.
	Broad bool
	// Min maps a browser name to the oldest version that must work.
	Min map[string]float64
}

var versionQuery = regexp.MustCompile(`^([a-z_]+)\s*(>=|>)\s*([0-9]+(?:\.[0-9]+)?)$`)

var browserAliases = map[string]string{
	"ios":     "ios_saf",
	"ios_saf": "ios_saf",
	"safari":  "safari",
	"chrome":  "chrome",
	"edge":    "edge",
	"firefox": "firefox",
	"ff":      "firefox",
	"opera":   "opera",
	"samsung": "samsung",
}

// ParseTargets interprets browserslist-style queries. Queries that are not
// a "<browser> >= <version>" bound widen the set to Broad; "not ..."
// queries never add support.
func ParseTargets(queries []string) Targets {
	t := Targets{Min: map[string]float64{}}
	for _, q := range queries {
		q = strings.ToLower(strings.TrimSpace(q))
		if q == "" || strings.HasPrefix(q, "not ") {
			continue
		}
		m := versionQuery.FindStringSubmatch(q)
		if m == nil {
			t.Broad = true
			continue
		}
		browser, ok := browserAliases[m[1]]
		if !ok {
			t.Broad = true
			continue
		}
		v, _ := strconv.ParseFloat(m[3], 64)
		if m[2] == ">" {
			v += 0.1
		}
		if cur, ok := t.Min[browser]; !ok || v < cur {
			t.Min[browser] = v
		}
	}
	return t
}

// rule says a property needs Prefix in any listed browser older than the
// mapped version.
type rule struct {
	prefix string
	until  map[string]float64
}

const always = 1e9

var prefixRules = map[string]rule{
	"backdrop-filter":      {"-webkit-", map[string]float64{"safari": 18, "ios_saf": 18}},
	"user-select":          {"-webkit-", map[string]float64{"safari": always, "ios_saf": always}},
	"text-size-adjust":     {"-webkit-", map[string]float64{"safari": always, "ios_saf": always, "chrome": 54, "edge": 79, "samsung": 6.2}},
	"appearance":           {"-webkit-", map[string]float64{"safari": 15.4, "ios_saf": 15.4, "chrome": 84, "edge": 84, "samsung": 14}},
	"mask":                 {"-webkit-", map[string]float64{"safari": 15.4, "ios_saf": 15.4, "chrome": 120, "edge": 120, "samsung": 25}},
	"mask-image":           {"-webkit-", map[string]float64{"safari": 15.4, "ios_saf": 15.4, "chrome": 120, "edge": 120, "samsung": 25}},
	"hyphens":              {"-webkit-", map[string]float64{"safari": 17, "ios_saf": 17}},
	"box-decoration-break": {"-webkit-", map[string]float64{"safari": always, "ios_saf": always, "chrome": 130, "edge": 130}},
	"text-decoration-skip": {"-webkit-", map[string]float64{"safari": 12.1, "ios_saf": 12.2}},
	"background-clip":      {"-webkit-", map[string]float64{"safari": 14, "ios_saf": 14, "chrome": 120, "edge": 120}},
}

// Needs reports whether the property requires its vendor prefix for t.
func (t Targets) Needs(property string) (string, bool) {
	r, ok := prefixRules[property]
	if !ok {
		return "", false
	}
	if t.Broad {
		return r.prefix, true
	}
	for browser, min := range t.Min {
		if until, ok := r.until[browser]; ok && min < until {
			return r.prefix, true
		}
	}
	return "", false
}

// Prefix adds vendor-prefixed copies of declarations that t needs, ahead
// of the original declaration, unless the block already declares them.
func Prefix(src []byte, t Targets) ([]byte, error) {
	declared := []map[string]bool{{}}

	return walk(src, func(w *bytes.Buffer, st statement, end token) error {
		if prop, ok := st.property(); ok && end.tt != css.LeftBraceToken {
			block := declared[len(declared)-1]
			block[prop] = true
			if prefix, need := t.Needs(prop); need && !block[prefix+prop] {
				block[prefix+prop] = true
				writePrefixed(w, st, prefix)
				w.WriteByte(';')
			}
		}

		writeTokens(w, st.tokens)
		writeEnd(w, end)

		switch end.tt {
		case css.LeftBraceToken:
			declared = append(declared, map[string]bool{})
		case css.RightBraceToken:
			if len(declared) > 1 {
				declared = declared[:len(declared)-1]
			}
		}
		return nil
	})
}

func writePrefixed(w *bytes.Buffer, st statement, prefix string) {
	tokens := st.tokens
	for len(tokens) > 0 && tokens[len(tokens)-1].tt == css.WhitespaceToken {
		tokens = tokens[:len(tokens)-1]
	}
	renamed := false
	for _, tok := range tokens {
		if !renamed && tok.tt == css.IdentToken {
			w.WriteString(prefix)
			renamed = true
		}
		w.Write(tok.data)
	}
}
