package local

import (
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterStore(registry.Info{
		Name:         "local",
		Description:  "Local filesystem partition store",
		Version:      "1.0.0",
		Capabilities: []string{"replace", "gzip", "zstd", "atomic_rename"},
		Settings:     []string{"storage.local.directory"},
	}, func(cfg *config.Config) (core.ObjectStore, error) {
		return NewStore(cfg.Storage.Local.Directory)
	})
}
