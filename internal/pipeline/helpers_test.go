package pipeline

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/edsync/pkg/compression"
	"github.com/ajitpratap0/edsync/pkg/connector/destinations/memory"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/partition"
	"github.com/ajitpratap0/edsync/pkg/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var runStart = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

const testRoot = "edfi"

// scriptedSource serves fixed pages per endpoint path, followed by the
// terminal empty page or by the scripted failure.
type scriptedSource struct {
	mu sync.Mutex

	current    int64
	currentErr error
	pages      map[string][]models.Page
	failures   map[string]error

	fetches map[string][]*models.VersionRange
	pulled  map[string]int
}

func newScriptedSource(current int64) *scriptedSource {
	return &scriptedSource{
		current:  current,
		pages:    make(map[string][]models.Page),
		failures: make(map[string]error),
		fetches:  make(map[string][]*models.VersionRange),
		pulled:   make(map[string]int),
	}
}

// serve registers pages of the given sizes for path.
func (s *scriptedSource) serve(path string, sizes ...int) *scriptedSource {
	offset := 0
	for p, size := range sizes {
		records := make([]stdjson.RawMessage, size)
		for i := range records {
			records[i] = stdjson.RawMessage(fmt.Sprintf(`{"id":"0000-p%d-r%d","page":%d}`, p, i, p))
		}
		s.pages[path] = append(s.pages[path], models.Page{Offset: offset, Records: records})
		offset += size
	}
	return s
}

func (s *scriptedSource) fail(path string, err error) *scriptedSource {
	s.failures[path] = err
	return s
}

func (s *scriptedSource) CurrentVersion(ctx context.Context, _ string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.current, s.currentErr
}

func (s *scriptedSource) FetchPages(ctx context.Context, _ string, endpoint models.Endpoint, bounds *models.VersionRange) iter.Seq2[models.Page, error] {
	s.mu.Lock()
	s.fetches[endpoint.Path] = append(s.fetches[endpoint.Path], bounds)
	pages := s.pages[endpoint.Path]
	failure := s.failures[endpoint.Path]
	s.mu.Unlock()

	return func(yield func(models.Page, error) bool) {
		for _, page := range pages {
			if err := ctx.Err(); err != nil {
				yield(models.Page{}, err)
				return
			}
			s.mu.Lock()
			s.pulled[endpoint.Path]++
			s.mu.Unlock()
			if !yield(page, nil) {
				return
			}
		}
		if failure != nil {
			yield(models.Page{}, failure)
			return
		}
		yield(models.Page{}, nil)
	}
}

func (s *scriptedSource) bounds(path string) []*models.VersionRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[path]
}

func (s *scriptedSource) pagesPulled(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled[path]
}

func newMemoryWriter(t *testing.T) (*partition.Writer, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	compressor, err := compression.NewCompressor(nil)
	require.NoError(t, err)
	return partition.NewWriter(store, testRoot, compressor, zaptest.NewLogger(t)), store
}

// decodePartition parses a stored NDJSON partition.
func decodePartition(t *testing.T, store *memory.Store, key string) []models.ShapedRecord {
	t.Helper()
	obj, ok := store.Get(key)
	require.True(t, ok, "missing partition %s", key)
	return testutil.DecodePartition(t, obj.Body)
}

func permanentFailure() error {
	return errors.Wrap(
		errors.FromStatus(502, "GET /data/v3/2024/ed-fi/sections returned 502"),
		errors.ErrorTypeConnection, "all 8 attempts failed")
}
