package minio

import (
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterStore(registry.Info{
		Name:         "minio",
		Description:  "MinIO / S3-compatible partition store",
		Version:      "1.0.0",
		Capabilities: []string{"replace", "gzip", "zstd"},
		Settings: []string{
			"storage.bucket",
			"storage.minio.endpoint",
			"storage.minio.access_key",
			"storage.minio.secret_key",
			"storage.minio.use_ssl",
			"storage.minio.region",
		},
	}, func(cfg *config.Config) (core.ObjectStore, error) {
		return NewStore(cfg)
	})
}
