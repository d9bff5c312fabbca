// Package s3 stores partitions in Amazon S3.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const defaultPartSize = 8 * 1024 * 1024

// Store writes objects to one S3 bucket.
type Store struct {
	bucket   string
	s3Client *s3.Client
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewStore loads AWS configuration and creates the client and uploader.
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg.Storage.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}
	s3cfg := cfg.Storage.S3

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(s3cfg.Region))
	}
	if s3cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})

	return NewStoreWithClient(client, cfg.Storage.Bucket), nil
}

// NewStoreWithClient wraps an existing S3 client.
func NewStoreWithClient(client *s3.Client, bucket string) *Store {
	return &Store{
		bucket:   bucket,
		s3Client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = defaultPartSize
		}),
		logger: logger.With(zap.String("component", "s3_store"), zap.String("bucket", bucket)),
	}
}

// Put uploads body to key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts core.PutOptions) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentEncoding != "" {
		input.ContentEncoding = aws.String(opts.ContentEncoding)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").
			WithDetail("key", key)
	}

	location := fmt.Sprintf("s3://%s", path.Join(s.bucket, key))
	s.logger.Debug("object written", zap.String("location", location), zap.Int("bytes", len(body)))
	return location, nil
}

// Close is a no-op; the AWS SDK holds no long-lived resources.
func (s *Store) Close() error {
	return nil
}
