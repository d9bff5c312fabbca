// Package sources registers every change-feed source with the connector
// registry. Import it for side effects.
package sources

import (
	// Import all sources to trigger init() registration
	_ "github.com/ajitpratap0/edsync/pkg/connector/sources/edfi"
)
