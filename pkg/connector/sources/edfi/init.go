package edfi

import (
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
	"github.com/ajitpratap0/edsync/pkg/logger"
	"github.com/ajitpratap0/edsync/pkg/retry"
)

func init() {
	// Register the Ed-Fi change-feed source
	_ = registry.RegisterSource(registry.Info{
		Name:         "edfi",
		Description:  "Ed-Fi ODS/API change-feed source (client credentials, change versions)",
		Version:      "1.0.0",
		Capabilities: []string{"incremental", "full", "deletes", "post", "delete"},
		Settings: []string{
			"source.base_url",
			"source.client_id",
			"source.client_secret",
			"source.api_mode",
			"source.page_limit",
			"source.rate_limit_per_sec",
		},
	}, func(cfg *config.Config) (core.WritableSource, error) {
		return NewClient(&cfg.Source, nil, retry.FromConfig(cfg.Retry), logger.Get())
	})
}
