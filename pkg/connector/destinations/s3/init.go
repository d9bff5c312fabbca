package s3

import (
	"context"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
)

func init() {
	// Register the S3 object store
	_ = registry.RegisterStore(registry.Info{
		Name:         "s3",
		Description:  "Amazon S3 partition store (multipart uploads)",
		Version:      "1.0.0",
		Capabilities: []string{"replace", "gzip", "zstd", "multipart"},
		Settings: []string{
			"storage.bucket",
			"storage.s3.region",
			"storage.s3.endpoint",
			"storage.s3.access_key_id",
			"storage.s3.secret_access_key",
			"storage.s3.use_path_style",
		},
	}, func(cfg *config.Config) (core.ObjectStore, error) {
		return NewStore(context.Background(), cfg)
	})
}
