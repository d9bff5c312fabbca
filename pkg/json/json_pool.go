// Package json provides JSON encoding backed by goccy/go-json with pooled
// buffers for newline-delimited output.
package json

import (
	"bytes"
	"sync"

	gojson "github.com/goccy/go-json"
)

// maxPooledBuffer keeps oversized page buffers out of the pool
const maxPooledBuffer = 4 * 1024 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalLines encodes each value on its own line. An empty slice yields an
// empty, non-nil result.
func MarshalLines[T any](values []T) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for i := range values {
		// Encode terminates every value with '\n'
		if err := enc.Encode(values[i]); err != nil {
			return nil, err
		}
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
