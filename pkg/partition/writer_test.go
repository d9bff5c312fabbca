package partition

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ajitpratap0/edsync/pkg/compression"
	"github.com/ajitpratap0/edsync/pkg/connector/destinations/local"
	"github.com/ajitpratap0/edsync/pkg/connector/destinations/memory"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var startedAt = time.Date(2024, 3, 1, 6, 30, 0, 0, time.FixedZone("EST", -5*3600))

func strPtr(s string) *string { return &s }

func key(seq int) models.PartitionKey {
	return models.PartitionKey{
		Table:       "students",
		TemporalKey: TemporalKey("2024", startedAt),
		Kind:        models.KindRecords,
		Endpoint:    "/ed-fi/students",
		Sequence:    seq,
	}
}

func TestTemporalKeyIsUTC(t *testing.T) {
	assert.Equal(t, "source_key=2024/date_extracted=2024-03-01T11:30:00Z", TemporalKey("2024", startedAt))
}

func TestKeyLayout(t *testing.T) {
	w := NewWriter(memory.NewStore(), "/edfi_api/", nil, zaptest.NewLogger(t))
	assert.Equal(t,
		"edfi_api/students/source_key=2024/date_extracted=2024-03-01T11:30:00Z/extract_type=records/endpoint=ed-fi%2Fstudents/000000001.json",
		w.Key(key(1)))

	deletes := key(12)
	deletes.Kind = models.KindDeletes
	deletes.Endpoint = "/ed-fi/students/deletes"
	assert.Equal(t,
		"edfi_api/students/source_key=2024/date_extracted=2024-03-01T11:30:00Z/extract_type=deletes/endpoint=ed-fi%2Fstudents%2Fdeletes/000000012.json",
		w.Key(deletes))

	gz, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)
	w = NewWriter(memory.NewStore(), "", gz, nil)
	assert.Equal(t,
		"students/source_key=2024/date_extracted=2024-03-01T11:30:00Z/extract_type=records/endpoint=ed-fi%2Fstudents/000000001.json.gz",
		w.Key(key(1)))
}

func TestEndpointSegment(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/ed-fi/students", "ed-fi%2Fstudents"},
		{"/ed-fi/students/deletes", "ed-fi%2Fstudents%2Fdeletes"},
		{"/tpdm/candidates", "tpdm%2Fcandidates"},
		{"/ed-fi/a-b", "ed-fi%2Fa-b"},
		{"/ed-fi/a/b", "ed-fi%2Fa%2Fb"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, EndpointSegment(tt.path))
		})
	}
}

func TestEndpointsSharingATableDoNotCollide(t *testing.T) {
	store := memory.NewStore()
	w := NewWriter(store, "edfi_api", nil, zaptest.NewLogger(t))
	ctx := context.Background()

	shared := func(endpoint string) models.PartitionKey {
		return models.PartitionKey{
			Table:       "base_edfi_descriptors",
			TemporalKey: TemporalKey("2024", startedAt),
			Kind:        models.KindRecords,
			Endpoint:    endpoint,
			Sequence:    1,
		}
	}
	cohorts := shared("/ed-fi/cohortTypeDescriptors")
	races := shared("/ed-fi/raceDescriptors")

	_, err := w.Write(ctx, cohorts, []models.ShapedRecord{{ID: strPtr("c1"), Data: json.RawMessage(`{"d":"cohort"}`)}})
	require.NoError(t, err)
	_, err = w.Write(ctx, races, []models.ShapedRecord{{ID: strPtr("r1"), Data: json.RawMessage(`{"d":"race"}`)}})
	require.NoError(t, err)

	require.NotEqual(t, w.Key(cohorts), w.Key(races))
	assert.Len(t, store.Keys("edfi_api/base_edfi_descriptors/"), 2)

	obj, ok := store.Get(w.Key(cohorts))
	require.True(t, ok)
	assert.Contains(t, string(obj.Body), "cohort")
	obj, ok = store.Get(w.Key(races))
	require.True(t, ok)
	assert.Contains(t, string(obj.Body), "race")
}

func TestWriteNDJSON(t *testing.T) {
	store := memory.NewStore()
	w := NewWriter(store, "edfi_api", nil, zaptest.NewLogger(t))

	records := []models.ShapedRecord{
		{ID: strPtr("abc123"), IsCompleteExtract: false, Data: json.RawMessage(`{"id":"abc-123","firstName":"Lisa"}`)},
		{ID: nil, IsCompleteExtract: false, Data: json.RawMessage(`{"name":"no id"}`)},
	}
	location, err := w.Write(context.Background(), key(1), records)
	require.NoError(t, err)
	assert.Equal(t, "mem://"+w.Key(key(1)), location)

	obj, ok := store.Get(w.Key(key(1)))
	require.True(t, ok)
	assert.Equal(t, ContentType, obj.Opts.ContentType)
	assert.Empty(t, obj.Opts.ContentEncoding)

	lines := bytes.Split(bytes.TrimSuffix(obj.Body, []byte("\n")), []byte("\n"))
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"abc123","is_complete_extract":false,"data":{"id":"abc-123","firstName":"Lisa"}}`, string(lines[0]))
	assert.JSONEq(t, `{"id":null,"is_complete_extract":false,"data":{"name":"no id"}}`, string(lines[1]))
}

func TestWriteEmptyProducesPlaceholder(t *testing.T) {
	store := memory.NewStore()
	w := NewWriter(store, "edfi_api", nil, nil)

	_, err := w.Write(context.Background(), key(1), nil)
	require.NoError(t, err)

	obj, ok := store.Get(w.Key(key(1)))
	require.True(t, ok, "placeholder object must exist")
	assert.Empty(t, obj.Body)
}

func TestRewriteReplaces(t *testing.T) {
	dir := t.TempDir()
	store, err := local.NewStore(dir)
	require.NoError(t, err)
	w := NewWriter(store, "edfi_api", nil, nil)
	ctx := context.Background()

	first := []models.ShapedRecord{{ID: strPtr("1"), Data: json.RawMessage(`{"v":1}`)}}
	second := []models.ShapedRecord{{ID: strPtr("2"), Data: json.RawMessage(`{"v":2}`)}}

	loc1, err := w.Write(ctx, key(3), first)
	require.NoError(t, err)
	loc2, err := w.Write(ctx, key(3), second)
	require.NoError(t, err)
	assert.Equal(t, loc1, loc2)

	body := readLocal(t, loc2)
	assert.JSONEq(t, `{"id":"2","is_complete_extract":false,"data":{"v":2}}`, string(bytes.TrimSpace(body)))
}

func TestWriteCompressed(t *testing.T) {
	store := memory.NewStore()
	zc, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Zstd})
	require.NoError(t, err)
	w := NewWriter(store, "edfi_api", zc, nil)

	records := []models.ShapedRecord{{IsCompleteExtract: true, Data: json.RawMessage(`{"a":1}`)}}
	_, err = w.Write(context.Background(), key(1), records)
	require.NoError(t, err)

	obj, ok := store.Get(w.Key(key(1)))
	require.True(t, ok)
	assert.Equal(t, "zstd", obj.Opts.ContentEncoding)

	plain, err := zc.Decompress(obj.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":null,"is_complete_extract":true,"data":{"a":1}}`, string(bytes.TrimSpace(plain)))
}

func TestWriteValidation(t *testing.T) {
	w := NewWriter(memory.NewStore(), "root", nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.PartitionKey)
	}{
		{"no table", func(k *models.PartitionKey) { k.Table = "" }},
		{"no temporal key", func(k *models.PartitionKey) { k.TemporalKey = "" }},
		{"bad kind", func(k *models.PartitionKey) { k.Kind = "updates" }},
		{"no endpoint", func(k *models.PartitionKey) { k.Endpoint = "" }},
		{"sequence zero", func(k *models.PartitionKey) { k.Sequence = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := key(1)
			tt.mutate(&k)
			_, err := w.Write(ctx, k, nil)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestWriteStoreFailure(t *testing.T) {
	store := memory.NewStore()
	store.FailOn = "students"
	w := NewWriter(store, "root", nil, nil)

	_, err := w.Write(context.Background(), key(1), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}
