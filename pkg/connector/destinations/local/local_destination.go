// Package local stores partitions on the local filesystem, laid out exactly
// as they would be in a bucket.
package local

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
)

// Store writes objects below a root directory.
type Store struct {
	root string
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "local.directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid local directory")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create local directory")
	}
	return &Store{root: abs}, nil
}

// Put writes body to key through a temporary file and rename, so readers
// never observe a partial object and rewrites replace atomically.
func (s *Store) Put(ctx context.Context, key string, body []byte, _ core.PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New(errors.ErrorTypeValidation, "object key is required")
	}

	fullPath := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create object directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary object")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write object").WithDetail("key", key)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to close object").WithDetail("key", key)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to publish object").WithDetail("key", key)
	}

	return "file://" + filepath.ToSlash(fullPath), nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
