// Package models provides the data structures shared by the edsync engine:
// endpoints, watermarks, extraction units, pages, shaped records, partition
// keys and run results.
package models

import (
	"fmt"
	"strings"
	"time"
)

// NoWatermark marks the absence of a committed change version, or a lookup
// that failed. Zero is a real watermark.
const NoWatermark int64 = -1

// Endpoint describes one resource collection exposed by the source API.
// Path is its identity, e.g. /ed-fi/students or /ed-fi/students/deletes.
type Endpoint struct {
	// Path is the resource path appended to the data URL
	Path string `json:"path" yaml:"path"`
	// Table is the logical destination name of the collection
	Table string `json:"table" yaml:"table"`
	// IsDeleteVariant marks feeds of deletion tombstones
	IsDeleteVariant bool `json:"is_delete_variant" yaml:"is_delete_variant"`
}

// Kind returns the extract kind written for this endpoint.
func (e Endpoint) Kind() ExtractKind {
	if e.IsDeleteVariant {
		return KindDeletes
	}
	return KindRecords
}

// Watermark is one committed change version for a source key.
type Watermark struct {
	SourceKey  string    `json:"source_key"`
	Value      int64     `json:"newest_change_version"`
	CapturedAt time.Time `json:"timestamp"`
}

// Mode selects between full and incremental extraction.
type Mode string

const (
	// ModeFull extracts every record of every non-delete endpoint
	ModeFull Mode = "full"
	// ModeIncremental extracts changes between two change versions
	ModeIncremental Mode = "incremental"
)

// ParseMode parses "full" or "incremental", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModeIncremental:
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("unknown extraction mode %q", s)
	}
}

// VersionRange bounds an incremental unit. From is the previous watermark
// (exclusive) and To the current change version (inclusive).
type VersionRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ExtractionUnit is the work for one endpoint in one run. Bounds is nil in
// full mode.
type ExtractionUnit struct {
	Endpoint Endpoint      `json:"endpoint"`
	Mode     Mode          `json:"mode"`
	Bounds   *VersionRange `json:"bounds,omitempty"`
}

// IsCompleteExtract reports whether the unit carries every record rather
// than a change window.
func (u ExtractionUnit) IsCompleteExtract() bool {
	return u.Bounds == nil
}
