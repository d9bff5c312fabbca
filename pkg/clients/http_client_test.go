package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHTTPClientSetsDefaultHeaders(t *testing.T) {
	var gotUA, gotAccept, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotCustom = r.Header.Get("X-Trace")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(nil, zaptest.NewLogger(t))
	defer client.Close()

	resp, err := client.Get(context.Background(), srv.URL, map[string]string{"X-Trace": "abc"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "abc", gotCustom)
}

func TestHTTPClientStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(nil, zaptest.NewLogger(t))

	resp, err := client.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = client.Delete(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()

	stats := client.GetStats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.FailedRequests)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
}

func TestHTTPClientRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultHTTPConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	client := NewHTTPClient(cfg, zaptest.NewLogger(t))

	resp, err := client.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
