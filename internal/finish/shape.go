package finish

import (
	"bytes"
	"io"
	"slices"

	"golang.org/x/net/html"
)

// TagShape lists the start and end tags of doc with their attribute names,
// in document order. Text, comments and attribute values are left out.
func TagShape(doc []byte) ([]string, error) {
	var out []string
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return out, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			entry := "<" + string(name)
			for hasAttr {
				var key []byte
				key, _, hasAttr = z.TagAttr()
				entry += " " + string(key)
			}
			out = append(out, entry)
		case html.EndTagToken:
			name, _ := z.TagName()
			out = append(out, "</"+string(name))
		}
	}
}

func sameShape(a, b []byte) bool {
	sa, err := TagShape(a)
	if err != nil {
		return false
	}
	sb, err := TagShape(b)
	if err != nil {
		return false
	}
	return slices.Equal(sa, sb)
}
