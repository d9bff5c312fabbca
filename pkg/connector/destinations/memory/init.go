package memory

import (
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterStore(registry.Info{
		Name:         "memory",
		Description:  "In-process partition store for dry runs",
		Version:      "1.0.0",
		Capabilities: []string{"replace"},
	}, func(*config.Config) (core.ObjectStore, error) {
		return NewStore(), nil
	})
}
