// Package finish turns rendered bytes into finished artifacts: stylesheet
// preparation for the target browsers, minification, and pre-compressed
// variants.
package finish

import (
	"mime"
	"regexp"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"
)

const (
	mediaHTML = "text/html"
	mediaCSS  = "text/css"
)

// newMinifier registers the markup minifiers. The HTML minifier keeps
// document and end tags, quotes and default attribute values; it still
// drops attributes it considers empty, which Markup checks for.
func newMinifier() *minify.M {
	m := minify.New()
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	m.AddFunc(mediaCSS, css.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`[/+]json$`), json.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`[/+]xml$`), xml.Minify)
	return m
}

// MediaType strips parameters from a Content-Type value.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			return strings.TrimSpace(strings.ToLower(contentType[:i]))
		}
		return strings.TrimSpace(strings.ToLower(contentType))
	}
	return mt
}
