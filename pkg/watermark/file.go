package watermark

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/ajitpratap0/edsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/models"
)

// FileBackend appends rows to a JSON-lines file.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend uses path, which is created on the first append.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "watermark file path is required")
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Latest(ctx context.Context, sourceKey string) (models.Watermark, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return models.Watermark{}, false, nil
	}
	if err != nil {
		return models.Watermark{}, false, errors.Wrap(err, errors.ErrorTypeFile, "failed to open watermark file")
	}
	defer file.Close()

	var rows []models.Watermark
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return models.Watermark{}, false, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var row models.Watermark
		if err := jsonpool.Unmarshal(scanner.Bytes(), &row); err != nil {
			return models.Watermark{}, false, errors.Wrap(err, errors.ErrorTypeData, "corrupt watermark file").
				WithDetail("line", line)
		}
		if row.SourceKey == sourceKey {
			rows = append(rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return models.Watermark{}, false, errors.Wrap(err, errors.ErrorTypeFile, "failed to read watermark file")
	}
	return latest(rows, sourceKey)
}

func (f *FileBackend) Append(ctx context.Context, w models.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := jsonpool.Marshal(w)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode watermark")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create watermark directory")
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open watermark file")
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		_ = file.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to append watermark")
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to sync watermark file")
	}
	return file.Close()
}

func (f *FileBackend) Close() error { return nil }
