package renderer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteLinksLeavesOtherMarkupAlone(t *testing.T) {
	src := "<!DOCTYPE html>\n<html><body CLASS=x>\n<!-- c --><p>a &amp; b</p><script>if (a < b) {}</script></body></html>"
	out, err := RewriteLinks([]byte(src), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestRewriteLinks(t *testing.T) {
	src := `<a href="@/blog/">b</a><img src="@/img/x.png" alt="x"><a href="/abs">c</a><link rel="icon" href="@/favicon.ico">`
	out, err := RewriteLinks([]byte(src), "https://example.com/sub/", nil)
	require.NoError(t, err)
	assert.Equal(t,
		`<a href="https://example.com/sub/blog/">b</a><img src="https://example.com/sub/img/x.png" alt="x"><a href="/abs">c</a><link rel="icon" href="https://example.com/sub/favicon.ico">`,
		string(out))
}

func TestRewriteLinksEmbed(t *testing.T) {
	src := `<head><link rel="stylesheet" href="@/styles/a.css" media="screen" embed></head>`
	var asked string
	out, err := RewriteLinks([]byte(src), "/", func(id string) ([]byte, error) {
		asked = id
		return []byte(`a::after{content:"</style>"}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "styles/a.css", asked)
	assert.Equal(t, `<head><style media="screen">a::after{content:"<\/style>"}</style></head>`, string(out))
}

func TestRewriteLinksEmbedError(t *testing.T) {
	boom := errors.New("boom")
	_, err := RewriteLinks([]byte(`<link href="@/styles/a.css" embed>`), "/", func(string) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestScanTemplate(t *testing.T) {
	src := []byte(`{% extends "base.html" %}
{%- include 'partials/nav.html' %}
{% import "/macros.html" m %}
{% include "partials/nav.html" %}
{{ data.site.title }} {{ data.menu }} {{ metadata.x }}
<link rel="stylesheet" href="@/styles/a.css" embed>
<link rel="stylesheet" href="@/styles/b.css">`)

	refs := ScanTemplate(src)
	assert.Equal(t, []string{"base.html"}, refs.Extends)
	assert.Equal(t, []string{"macros.html", "partials/nav.html"}, refs.Includes)
	assert.Equal(t, []string{"menu", "site"}, refs.Data)
	assert.Equal(t, []string{"styles/a.css"}, refs.Embeds)
}
