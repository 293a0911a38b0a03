package finish

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tdewolff/minify/v2"

	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/stylesheet"
	"github.com/conneroisu/slate/internal/types"
)

// Finisher runs the finishing stages. It holds no per-artifact state and
// is safe for concurrent use.
type Finisher struct {
	minifier   *minify.M
	targets    stylesheet.Targets
	minifyHTML bool
	minifyCSS  bool
	compress   bool
	encodings  []types.Encoding
}

// New creates a finisher for the given configuration.
func New(cfg config.FinishConfig) *Finisher {
	return &Finisher{
		minifier:   newMinifier(),
		targets:    stylesheet.ParseTargets(cfg.Targets),
		minifyHTML: cfg.MinifyHTML,
		minifyCSS:  cfg.MinifyCSS,
		compress:   cfg.Compress,
		encodings:  cfg.EncodingList(),
	}
}

// Encodings returns the variant encodings produced, in preference order.
func (f *Finisher) Encodings() []types.Encoding {
	return append([]types.Encoding(nil), f.encodings...)
}

// Style prepares a stylesheet for the target browsers and minifies it.
func (f *Finisher) Style(src []byte) ([]byte, error) {
	out, err := stylesheet.Prefix(src, f.targets)
	if err != nil {
		return nil, errors.NewTransformError("STYLE_RESOLVE", "preparing stylesheet for targets failed", err)
	}
	if !f.minifyCSS {
		return out, nil
	}
	min, err := f.minifier.Bytes(mediaCSS, out)
	if err != nil {
		return nil, errors.NewTransformError("STYLE_MINIFY", "minifying stylesheet failed", err)
	}
	return min, nil
}

// Markup minifies an HTML document when HTML minification is enabled.
// Minified output whose tag and attribute sequence differs from src is
// discarded and src is returned as is.
func (f *Finisher) Markup(src []byte) ([]byte, error) {
	if !f.minifyHTML {
		return src, nil
	}
	out, err := f.minifier.Bytes(mediaHTML, src)
	if err != nil {
		return nil, errors.NewTransformError("HTML_MINIFY", "minifying markup failed", err)
	}
	if !sameShape(src, out) {
		return src, nil
	}
	return out, nil
}

// Finish produces the artifact for a rendered output: HTML is minified,
// stylesheets are prepared and minified, and compressible bodies gain one
// variant per configured encoding.
func (f *Finisher) Finish(route, contentType string, body []byte) (*types.BuildArtifact, error) {
	var err error
	switch MediaType(contentType) {
	case mediaHTML:
		body, err = f.Markup(body)
	case mediaCSS:
		body, err = f.Style(body)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransform, "FINISH", "finishing "+route+" failed")
	}

	artifact := &types.BuildArtifact{
		Route:       route,
		ContentType: contentType,
		Body:        body,
		Hash:        digest(body),
	}

	if f.compress && Compressible(contentType) && len(body) > 0 {
		artifact.Variants = make(map[types.Encoding][]byte, len(f.encodings))
		for _, enc := range f.encodings {
			compressed, err := Compress(enc, body)
			if err != nil {
				return nil, errors.NewTransformError("COMPRESS", "compressing "+route+" with "+string(enc)+" failed", err)
			}
			artifact.Variants[enc] = compressed
		}
	}

	return artifact, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}
