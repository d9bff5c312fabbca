package gcs

import (
	"context"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
)

func init() {
	// Register the GCS object store
	_ = registry.RegisterStore(registry.Info{
		Name:         "gcs",
		Description:  "Google Cloud Storage partition store",
		Version:      "1.0.0",
		Capabilities: []string{"replace", "gzip", "zstd"},
		Settings:     []string{"storage.bucket", "storage.gcs.project_id", "storage.gcs.credentials_file"},
	}, func(cfg *config.Config) (core.ObjectStore, error) {
		return NewStore(context.Background(), cfg)
	})
}
