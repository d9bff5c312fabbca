// Package gcs stores partitions in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Store writes objects to one GCS bucket.
type Store struct {
	bucket       string
	client       *storage.Client
	bucketHandle *storage.BucketHandle
	logger       *zap.Logger
}

// NewStore creates a GCS client for the configured bucket.
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg.Storage.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}

	var opts []option.ClientOption
	if cfg.Storage.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Storage.GCS.CredentialsFile))
	}
	if cfg.Storage.GCS.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Storage.GCS.ProjectID))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to initialize GCS client")
	}

	return NewStoreWithClient(client, cfg.Storage.Bucket), nil
}

// NewStoreWithClient wraps an existing client, e.g. one pointed at an emulator.
func NewStoreWithClient(client *storage.Client, bucket string) *Store {
	return &Store{
		bucket:       bucket,
		client:       client,
		bucketHandle: client.Bucket(bucket),
		logger:       logger.With(zap.String("component", "gcs_store"), zap.String("bucket", bucket)),
	}
}

// Put uploads body to key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts core.PutOptions) (string, error) {
	writer := s.bucketHandle.Object(key).NewWriter(ctx)
	writer.ContentType = opts.ContentType
	writer.ContentEncoding = opts.ContentEncoding

	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to write to GCS").
			WithDetail("key", key)
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to close GCS writer").
			WithDetail("key", key)
	}

	location := fmt.Sprintf("gs://%s", path.Join(s.bucket, key))
	s.logger.Debug("object written", zap.String("location", location), zap.Int("bytes", len(body)))
	return location, nil
}

// Close closes the GCS client
func (s *Store) Close() error {
	return s.client.Close()
}
