package pipeline

import (
	"bytes"
	stdjson "encoding/json"
	"strings"

	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/models"
)

// Identifier fields, matched case-sensitively. Delete tombstones carry the
// resource id as "Id".
const (
	recordIDField = "id"
	deleteIDField = "Id"
)

// ShapeRecord wraps one raw source record. The identifier has its hyphens
// removed; a missing or non-string identifier leaves ID nil. The record body
// is kept as received.
func ShapeRecord(raw stdjson.RawMessage, kind models.ExtractKind, completeExtract bool) models.ShapedRecord {
	field := recordIDField
	if kind == models.KindDeletes {
		field = deleteIDField
	}
	return models.ShapedRecord{
		IsCompleteExtract: completeExtract,
		ID:                extractID(raw, field),
		Data:              raw,
	}
}

// ShapePage shapes every record of page.
func ShapePage(page models.Page, kind models.ExtractKind, completeExtract bool) []models.ShapedRecord {
	shaped := make([]models.ShapedRecord, len(page.Records))
	for i, raw := range page.Records {
		shaped[i] = ShapeRecord(raw, kind, completeExtract)
	}
	return shaped
}

func extractID(raw stdjson.RawMessage, field string) *string {
	var fields map[string]stdjson.RawMessage
	if err := jsonpool.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	value := bytes.TrimSpace(fields[field])
	if len(value) == 0 || value[0] != '"' {
		return nil
	}
	var id string
	if err := jsonpool.Unmarshal(value, &id); err != nil {
		return nil
	}
	id = strings.ReplaceAll(id, "-", "")
	return &id
}
