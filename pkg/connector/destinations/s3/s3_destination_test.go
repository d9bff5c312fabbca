package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutUploadsToBucketKey(t *testing.T) {
	var mu sync.Mutex
	var puts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if r.Method == http.MethodPut {
			mu.Lock()
			puts = append(puts, r.URL.Path)
			mu.Unlock()
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.Storage.Backend = "s3"
	cfg.Storage.Bucket = "raw"
	cfg.Storage.S3 = config.S3Config{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		UsePathStyle:    true,
	}

	store, err := NewStore(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	loc, err := store.Put(context.Background(), "edfi_api/t/000000001.json", []byte("{}\n"),
		core.PutOptions{ContentType: "application/x-ndjson"})
	require.NoError(t, err)
	assert.Equal(t, "s3://raw/edfi_api/t/000000001.json", loc)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, puts, "/raw/edfi_api/t/000000001.json")
}

func TestNewStoreRequiresBucket(t *testing.T) {
	_, err := NewStore(context.Background(), config.NewConfig())
	assert.Error(t, err)
}
