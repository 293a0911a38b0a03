//go:build property

package finish

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/slate/internal/types"
)

func TestCompressionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	encodings := gen.OneConstOf(types.EncodingBrotli, types.EncodingGzip, types.EncodingDeflate)

	properties.Property("decompressing a variant yields the original body", prop.ForAll(
		func(body string, enc types.Encoding) bool {
			compressed, err := Compress(enc, []byte(body))
			if err != nil {
				return false
			}
			plain, err := Decompress(enc, compressed)
			if err != nil {
				return false
			}
			return bytes.Equal(plain, []byte(body))
		},
		gen.AnyString(),
		encodings,
	))

	properties.Property("compression is deterministic", prop.ForAll(
		func(body string, enc types.Encoding) bool {
			a, err := Compress(enc, []byte(body))
			if err != nil {
				return false
			}
			b, err := Compress(enc, []byte(body))
			if err != nil {
				return false
			}
			return bytes.Equal(a, b)
		},
		gen.AnyString(),
		encodings,
	))

	properties.TestingRun(t)
}
