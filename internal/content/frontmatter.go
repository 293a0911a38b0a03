// Package content parses page sources: front matter, routes, slugs and
// structured data files.
package content

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the syntax a front matter block is written in.
type Format int

const (
	FormatNone Format = iota
	FormatYAML
	FormatTOML
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "none"
	}
}

// ErrMissingClosingDelimiter indicates the document opened a front matter
// block but never closed it.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// Split separates front matter from the body. YAML is delimited by `---`
// lines and TOML by `+++` lines. A document without an opening delimiter
// on its first line has no front matter and body is the full input.
func Split(content []byte) (frontmatter []byte, body []byte, format Format, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}

	for _, candidate := range []struct {
		delim  string
		format Format
	}{{"---", FormatYAML}, {"+++", FormatTOML}} {
		open := []byte(candidate.delim + nl)
		if !bytes.HasPrefix(content, open) {
			continue
		}
		start := len(open)
		if bytes.HasPrefix(content[start:], open) {
			return []byte{}, content[start+len(open):], candidate.format, nil
		}

		closing := []byte(nl + candidate.delim)
		idx := bytes.Index(content[start:], closing)
		if idx < 0 {
			return nil, nil, candidate.format, ErrMissingClosingDelimiter
		}
		end := start + idx + len(nl)
		rest := content[start+idx+len(closing):]
		switch {
		case bytes.HasPrefix(rest, []byte(nl)):
			rest = rest[len(nl):]
		case len(rest) == 0:
		default:
			// the delimiter must occupy a whole line
			return nil, nil, candidate.format, ErrMissingClosingDelimiter
		}
		return content[start:end], rest, candidate.format, nil
	}

	return nil, content, FormatNone, nil
}

// ParseFields decodes a raw front matter block into a map.
func ParseFields(raw []byte, format Format) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("yaml front matter: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("toml front matter: %w", err)
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
