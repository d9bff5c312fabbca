// Package minio stores partitions in MinIO or any S3-compatible server
// reachable through the minio-go SDK.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Store writes objects to one MinIO bucket.
type Store struct {
	bucket string
	client *minio.Client
	logger *zap.Logger
}

// NewStore creates a minio client from configuration. The endpoint may be
// a bare host:port or a URL whose scheme decides TLS.
func NewStore(cfg *config.Config) (*Store, error) {
	mc := cfg.Storage.MinIO
	if cfg.Storage.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}
	if mc.Endpoint == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "minio.endpoint is required")
	}
	if mc.AccessKey == "" || mc.SecretKey == "" {
		return nil, errors.New(errors.ErrorTypeAuthentication, "minio credentials are required")
	}

	endpoint := mc.Endpoint
	useSSL := mc.UseSSL
	if u, err := url.Parse(mc.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: useSSL,
		Region: mc.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create minio client")
	}

	return &Store{
		bucket: cfg.Storage.Bucket,
		client: client,
		logger: logger.With(zap.String("component", "minio_store"), zap.String("bucket", cfg.Storage.Bucket)),
	}, nil
}

// Put uploads body to key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts core.PutOptions) (string, error) {
	if key == "" {
		return "", errors.New(errors.ErrorTypeValidation, "object key is required")
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:     opts.ContentType,
		ContentEncoding: opts.ContentEncoding,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to put object").
			WithDetail("key", key)
	}

	location := fmt.Sprintf("s3://%s", path.Join(s.bucket, key))
	s.logger.Debug("object written", zap.String("location", location), zap.Int("bytes", len(body)))
	return location, nil
}

// Close is a no-op; minio clients hold no long-lived resources.
func (s *Store) Close() error {
	return nil
}
