package renderer

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/conneroisu/slate/internal/config"
)

// Markdown converts page bodies to HTML. Code blocks are highlighted with
// CSS classes so the output does not depend on the highlight style; the
// matching stylesheet is available from HighlightCSS.
type Markdown struct {
	md    goldmark.Markdown
	style *chroma.Style
}

// NewMarkdown creates a converter for the markdown settings.
func NewMarkdown(cfg config.MarkdownConfig) *Markdown {
	style := styles.Get(cfg.HighlightStyle)
	if style == nil {
		style = styles.Fallback
	}

	formatOptions := []chromahtml.Option{chromahtml.WithClasses(true)}
	if cfg.LineNumbers {
		formatOptions = append(formatOptions, chromahtml.WithLineNumbers(true))
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithCustomStyle(style),
				highlighting.WithFormatOptions(formatOptions...),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	return &Markdown{md: md, style: style}
}

// Convert renders src to HTML.
func (m *Markdown) Convert(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// HighlightCSS returns the stylesheet for highlighted code blocks.
func (m *Markdown) HighlightCSS() (string, error) {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, m.style); err != nil {
		return "", err
	}
	return buf.String(), nil
}
