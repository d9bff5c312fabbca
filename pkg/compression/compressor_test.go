package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"id":"0123456789abcdef","data":{"firstName":"Lisa"}}`+"\n"), 200)

	for _, algo := range []Algorithm{None, Gzip, Zstd} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(algo), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: algo, Level: level})
				require.NoError(t, err)
				assert.Equal(t, algo, comp.Algorithm())

				compressed, err := comp.Compress(payload)
				require.NoError(t, err)
				if algo != None {
					assert.Less(t, len(compressed), len(payload))
				}

				back, err := comp.Decompress(compressed)
				require.NoError(t, err)
				assert.Equal(t, payload, back)
			})
		}
	}
}

func TestEmptyInput(t *testing.T) {
	comp, err := NewCompressor(&Config{Algorithm: Gzip})
	require.NoError(t, err)

	compressed, err := comp.Compress(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, compressed, "gzip framing is always written")

	back, err := comp.Decompress(compressed)
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestParseAlgorithm(t *testing.T) {
	algo, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, algo)

	algo, err = ParseAlgorithm("zstd")
	require.NoError(t, err)
	assert.Equal(t, ".zst", algo.Extension())
	assert.Equal(t, "zstd", algo.ContentEncoding())

	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Empty(t, None.ContentEncoding())

	_, err = ParseAlgorithm("lz4")
	assert.Error(t, err)
}
