package models

import (
	"encoding/json"
)

// Page is one batch of raw records returned by the source.
type Page struct {
	Offset  int
	Records []json.RawMessage
}

// Empty marks the terminal page of a sequence.
func (p Page) Empty() bool {
	return len(p.Records) == 0
}

// ShapedRecord is the persisted form of a source record.
type ShapedRecord struct {
	IsCompleteExtract bool            `json:"is_complete_extract"`
	ID                *string         `json:"id"`
	Data              json.RawMessage `json:"data"`
}

// ExtractKind separates changed records from deletion tombstones.
type ExtractKind string

const (
	// KindRecords holds created or updated records
	KindRecords ExtractKind = "records"
	// KindDeletes holds deletion tombstones
	KindDeletes ExtractKind = "deletes"
)

// PartitionKey addresses one written object. Endpoint is the source
// endpoint path; several endpoints may feed the same table.
type PartitionKey struct {
	Table       string
	TemporalKey string
	Kind        ExtractKind
	Endpoint    string
	Sequence    int
}
