package json

import (
	"bytes"
	stdjson "encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   string             `json:"id"`
	Data stdjson.RawMessage `json:"data"`
}

func TestMarshalLines(t *testing.T) {
	rows := []row{
		{ID: "a", Data: stdjson.RawMessage(`{"x":1}`)},
		{ID: "b<c>", Data: stdjson.RawMessage(`{"y":[1,2]}`)},
	}

	out, err := MarshalLines(rows)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSuffix(out, []byte("\n")), []byte("\n"))
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"a","data":{"x":1}}`, string(lines[0]))
	assert.JSONEq(t, `{"id":"b<c>","data":{"y":[1,2]}}`, string(lines[1]))
	assert.Contains(t, string(lines[1]), "b<c>", "HTML must not be escaped")
}

func TestMarshalLinesEmpty(t *testing.T) {
	out, err := MarshalLines([]row{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMarshalCorrectness(t *testing.T) {
	record := map[string]interface{}{"id": "test-123", "value": 42.5}

	stdData, err := stdjson.Marshal(record)
	require.NoError(t, err)
	optData, err := Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, string(stdData), string(optData))

	var back map[string]interface{}
	require.NoError(t, Unmarshal(optData, &back))
	assert.Equal(t, "test-123", back["id"])
}

func BenchmarkMarshalLines(b *testing.B) {
	rows := make([]row, 500)
	for i := range rows {
		rows[i] = row{ID: "0123456789abcdef", Data: stdjson.RawMessage(`{"studentUniqueId":"604822","firstName":"Lisa"}`)}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := MarshalLines(rows); err != nil {
			b.Fatal(err)
		}
	}
}
