package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/slate/internal/types"
)

func TestResolvePointer(t *testing.T) {
	doc := map[string]any{
		"a/b": 1,
		"m~n": 2,
		"list": []any{
			map[string]any{"name": "x"},
			"y",
		},
	}
	tests := []struct {
		pointer string
		want    any
		found   bool
	}{
		{"/a~1b", 1, true},
		{"/m~0n", 2, true},
		{"/list/0/name", "x", true},
		{"/list/1", "y", true},
		{"/list/2", nil, false},
		{"/list/01", nil, false},
		{"/list/-1", nil, false},
		{"/missing", nil, false},
		{"/list/1/deeper", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.pointer, func(t *testing.T) {
			got, found, err := ResolvePointer(doc, tt.pointer)
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}

	whole, found, err := ResolvePointer(doc, "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc, whole)

	_, _, err = ResolvePointer(doc, "list")
	assert.Error(t, err)
	_, _, err = ResolvePointer(doc, "/a~2")
	assert.Error(t, err)
}

func TestGenerateFrontMatter(t *testing.T) {
	p := page(t, "tags.md", "---\ngenerate_from: /tags\ntags: [go, rust]\n---\n")
	require.NotNil(t, p.Generate)
	assert.Equal(t, "/tags", p.Generate.Selector)
	assert.Equal(t, ".*", p.Generate.IndexPattern)
	assert.Equal(t, "[]", p.Generate.FilenameFormat)
	assert.False(t, p.Published(true))
	_, ok := p.Generate.Binding()
	assert.False(t, ok)

	p = page(t, "people.md", "+++\n[generate_from]\nselector = \"/data/people/list\"\nindex_on = \"id\"\n+++\n")
	binding, ok := p.Generate.Binding()
	assert.True(t, ok)
	assert.Equal(t, "people", binding)

	for _, src := range []string{
		"---\ngenerate_from: tags\n---\n",
		"---\ngenerate_from: 3\n---\n",
		"---\ngenerate_from:\n  index_on: id\n---\n",
		"---\ngenerate_from:\n  selector: /a\n  colour: red\n---\n",
		"---\ngenerate_from:\n  selector: /a\n  index_pattern: \"(\"\n---\n",
	} {
		_, err := ParsePage(pageFile("x.md", src), "default.html")
		assert.Error(t, err, src)
	}
}

func TestExpand(t *testing.T) {
	parent := page(t, "blog/tags.md", "---\ngenerate_from: /tags\ntags: [go, rust]\n---\n")
	pages, err := Expand(parent, GenerateRoot(parent.Params, nil))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "content/blog/tags.md#go", pages[0].ID)
	assert.Equal(t, "/blog/go/", pages[0].Route)
	assert.Equal(t, "go", pages[0].Params["generate"])
	assert.Equal(t, "content/blog/tags.md", pages[0].GeneratedFrom)
	assert.True(t, pages[0].Published(false))
	assert.Equal(t, "/blog/rust/", pages[1].Route)
	assert.True(t, IsGenerated(pages[1].ID))
	assert.Equal(t, parent.ID, ParentID(pages[1].ID))
	assert.NotContains(t, parent.Params, "generate", "the generator's params are not shared")

	index := page(t, "people/index.md", `---
generate_from:
  selector: /data/people
  index_on: id
  index_pattern: '^(?P<team>[a-z]+)-(?P<n>\d+)$'
  filename_format: "[team]/member-[n]"
---
`)
	people := []any{
		map[string]any{"id": "core-1", "name": "Ada"},
		map[string]any{"id": "web-2", "name": "Lin"},
	}
	pages, err = Expand(index, GenerateRoot(index.Params, map[string]any{"people": people}))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "/people/core/member-1/", pages[0].Route)
	assert.Equal(t, "content/people/index.md#web/member-2", pages[1].ID)
	assert.Equal(t, people[1], pages[1].Params["generate"])
	assert.False(t, pages[1].Index)

	byKey := page(t, "years.md", "---\ngenerate_from: /years\nyears:\n  b: 2\n  a: 1\n---\n")
	pages, err = Expand(byKey, GenerateRoot(byKey.Params, nil))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "/0/", pages[0].Route)
	assert.Equal(t, map[string]any{"key": "a", "value": 1}, pages[0].Params["generate"])
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing", "---\ngenerate_from: /nothing\n---\n"},
		{"not an array", "---\ngenerate_from: /n\nn: 3\n---\n"},
		{"duplicate names", "---\ngenerate_from: /t\nt: [a, a]\n---\n"},
		{"missing index field", "---\ngenerate_from:\n  selector: /t\n  index_on: id\nt: [{name: a}]\n---\n"},
		{"index on scalar", "---\ngenerate_from:\n  selector: /t\n  index_on: id\nt: [a]\n---\n"},
		{"separator in name", "---\ngenerate_from: /t\nt: [\"a#b\"]\n---\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := page(t, "g.md", tt.src)
			_, err := Expand(p, GenerateRoot(p.Params, nil))
			assert.Error(t, err)
		})
	}
}

func pageFile(rel, src string) *types.SourceFile {
	return &types.SourceFile{ID: types.PrefixContent + rel, Kind: types.KindContent, Rel: rel, Content: []byte(src)}
}
