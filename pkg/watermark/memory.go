package watermark

import (
	"context"
	"sync"

	"github.com/ajitpratap0/edsync/pkg/models"
)

// MemoryBackend keeps rows in memory.
type MemoryBackend struct {
	mu   sync.Mutex
	rows []models.Watermark

	// Err, when set, fails every call
	Err error
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Latest(_ context.Context, sourceKey string) (models.Watermark, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.Watermark{}, false, m.Err
	}
	return latest(m.rows, sourceKey)
}

func (m *MemoryBackend) Append(_ context.Context, w models.Watermark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.rows = append(m.rows, w)
	return nil
}

// Rows returns a copy of every appended row.
func (m *MemoryBackend) Rows() []models.Watermark {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Watermark(nil), m.rows...)
}

func (m *MemoryBackend) Close() error { return nil }

// latest picks the newest row for sourceKey; later rows win ties.
func latest(rows []models.Watermark, sourceKey string) (models.Watermark, bool, error) {
	var (
		best  models.Watermark
		found bool
	)
	for _, row := range rows {
		if row.SourceKey != sourceKey {
			continue
		}
		if !found || !row.CapturedAt.Before(best.CapturedAt) {
			best, found = row, true
		}
	}
	return best, found, nil
}
