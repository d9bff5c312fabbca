// Package core defines the contracts between the extraction engine and its
// connectors: the change-feed source and the object stores receiving
// partitions.
package core

import (
	"context"
	"iter"

	"github.com/ajitpratap0/edsync/pkg/models"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeObjectStore ConnectorType = "object_store"
)

// Source is a paginated change-feed API.
type Source interface {
	// CurrentVersion returns the newest change version known to the source.
	CurrentVersion(ctx context.Context, sourceKey string) (int64, error)

	// FetchPages lazily yields the pages of one endpoint, starting at offset
	// zero on every call. The first empty page is yielded and ends the
	// sequence. A yielded error ends the sequence as well.
	FetchPages(ctx context.Context, sourceKey string, endpoint models.Endpoint, bounds *models.VersionRange) iter.Seq2[models.Page, error]
}

// DeleteOutcome distinguishes a removal from an already absent record.
type DeleteOutcome string

const (
	DeleteRemoved DeleteOutcome = "removed"
	DeleteAbsent  DeleteOutcome = "absent"
)

// WritableSource also accepts write-back operations.
type WritableSource interface {
	Source

	// Delete removes one record. A record that does not exist is a success.
	Delete(ctx context.Context, sourceKey string, endpoint models.Endpoint, id string) (DeleteOutcome, error)

	// Post creates records one by one and returns their locations. The first
	// failure stops the batch; locations created so far are returned with
	// the error.
	Post(ctx context.Context, sourceKey string, endpoint models.Endpoint, records [][]byte) ([]string, error)

	// Close releases connections held by the source.
	Close() error
}

// PutOptions describe the object being written.
type PutOptions struct {
	ContentType     string
	ContentEncoding string
}

// ObjectStore receives partition objects. Putting an existing key replaces
// the object.
type ObjectStore interface {
	// Put stores body under key and returns the object's location URI.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error)
	Close() error
}
