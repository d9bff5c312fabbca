// Package compression compresses partition bodies before they reach the
// object store.
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Gzip,
//	    Level:     compression.Default,
//	})
//	compressed, err := comp.Compress(body)
//	key := "students/0001" + comp.Algorithm().Extension()
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

// ParseAlgorithm maps a configuration value to an Algorithm; "" is None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", None:
		return None, nil
	case Gzip, Zstd:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Extension returns the object key suffix appended after ".json".
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// ContentEncoding returns the HTTP Content-Encoding of compressed objects.
func (a Algorithm) ContentEncoding() string {
	switch a {
	case Gzip, Zstd:
		return string(a)
	default:
		return ""
	}
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Best maximizes compression ratio.
	Best Level = 9
)

// Compressor provides compression and decompression functionality.
// All implementations are safe for concurrent use.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	// The input data is not modified.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm // Compression algorithm to use
	Level     Level     // Compression level
}

// NewCompressor creates a new compressor based on the provided configuration.
// A nil config disables compression.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		return noneCompressor{}, nil
	}
	if config.Level == 0 {
		config.Level = Default
	}

	switch config.Algorithm {
	case "", None:
		return noneCompressor{}, nil
	case Gzip:
		return newGzipCompressor(config)
	case Zstd:
		return newZstdCompressor(config)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// None compressor (no compression)
type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Algorithm() Algorithm                   { return None }

// Gzip compressor
type gzipCompressor struct {
	level      int
	writerPool sync.Pool
}

func newGzipCompressor(config *Config) (*gzipCompressor, error) {
	level := mapGzipLevel(config.Level)
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("invalid gzip level: %w", err)
	}

	gc := &gzipCompressor{level: level}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	return gc, nil
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (gc *gzipCompressor) Algorithm() Algorithm { return Gzip }

func mapGzipLevel(level Level) int {
	switch {
	case level <= Fastest:
		return gzip.BestSpeed
	case level >= Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

// Zstd compressor. EncodeAll and DecodeAll are safe for concurrent use, so
// a single encoder and decoder are shared.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor(config *Config) (*zstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(mapZstdLevel(config.Level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return zc.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return zc.decoder.DecodeAll(data, nil)
}

func (zc *zstdCompressor) Algorithm() Algorithm { return Zstd }

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch {
	case level <= Fastest:
		return zstd.SpeedFastest
	case level >= Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
