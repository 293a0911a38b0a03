package finish

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/conneroisu/slate/internal/types"
)

// Compressible reports whether a media type benefits from compression.
// Already-compressed formats such as raster images and fonts are skipped.
func Compressible(contentType string) bool {
	mt := MediaType(contentType)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "image/svg+xml", mt == "application/javascript", mt == "application/json",
		mt == "application/xml", mt == "application/manifest+json", mt == "application/wasm":
		return true
	case strings.HasSuffix(mt, "+xml"), strings.HasSuffix(mt, "+json"):
		return true
	}
	return false
}

// Compress encodes body with enc at the highest compression level.
// Output is deterministic for a given input.
func Compress(enc types.Encoding, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error

	switch enc {
	case types.EncodingBrotli:
		w = brotli.NewWriterLevel(&buf, brotli.BestCompression)
	case types.EncodingGzip:
		// the zero header carries no name or modification time
		w, err = gzip.NewWriterLevel(&buf, gzip.BestCompression)
	case types.EncodingDeflate:
		w, err = zlib.NewWriterLevel(&buf, zlib.BestCompression)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(enc types.Encoding, body []byte) ([]byte, error) {
	var r io.Reader
	switch enc {
	case types.EncodingBrotli:
		r = brotli.NewReader(bytes.NewReader(body))
	case types.EncodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case types.EncodingDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
	return io.ReadAll(r)
}
