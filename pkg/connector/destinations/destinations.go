// Package destinations registers every object store backend with the
// connector registry. Import it for side effects.
package destinations

import (
	// Import all object stores to trigger init() registration
	_ "github.com/ajitpratap0/edsync/pkg/connector/destinations/gcs"
	_ "github.com/ajitpratap0/edsync/pkg/connector/destinations/local"
	_ "github.com/ajitpratap0/edsync/pkg/connector/destinations/memory"
	_ "github.com/ajitpratap0/edsync/pkg/connector/destinations/minio"
	_ "github.com/ajitpratap0/edsync/pkg/connector/destinations/s3"
)
