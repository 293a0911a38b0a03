package types

// Encoding is a content-coding a variant is stored in.
type Encoding string

const (
	EncodingBrotli  Encoding = "br"
	EncodingGzip    Encoding = "gzip"
	EncodingDeflate Encoding = "deflate"
)

// Suffix is the file suffix used when a variant is written to disk.
func (e Encoding) Suffix() string {
	switch e {
	case EncodingBrotli:
		return ".br"
	case EncodingGzip:
		return ".gz"
	case EncodingDeflate:
		return ".zl"
	default:
		return ""
	}
}

// ParseEncoding maps a content-coding token onto a supported Encoding.
func ParseEncoding(s string) (Encoding, bool) {
	switch s {
	case "br":
		return EncodingBrotli, true
	case "gzip", "x-gzip":
		return EncodingGzip, true
	case "deflate":
		return EncodingDeflate, true
	}
	return "", false
}

// BuildArtifact is the finished, immutable output for one route.
type BuildArtifact struct {
	// Route is the URL path the artifact is served at, e.g. "/blog/a/"
	Route string
	// ContentType is the media type of Body
	ContentType string
	// Body holds the finished bytes
	Body []byte
	// Hash is the hex digest of Body, usable as an ETag
	Hash string
	// Variants maps encoding to pre-compressed bytes
	Variants map[Encoding][]byte
}

// Variant returns the pre-compressed bytes for enc, if present.
func (a *BuildArtifact) Variant(enc Encoding) ([]byte, bool) {
	if a == nil || a.Variants == nil {
		return nil, false
	}
	b, ok := a.Variants[enc]
	return b, ok
}
