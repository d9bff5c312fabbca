package models

import (
	"time"
)

// RunContext carries the identity of a run, supplied by the scheduler.
type RunContext struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// UnitState is the lifecycle state of an extraction unit.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitFetching  UnitState = "fetching"
	UnitWriting   UnitState = "writing"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s UnitState) Terminal() bool {
	return s == UnitSucceeded || s == UnitFailed
}

// UnitResult is the outcome of one extraction unit.
type UnitResult struct {
	Endpoint  Endpoint      `json:"endpoint"`
	State     UnitState     `json:"state"`
	Pages     int           `json:"pages"`
	Records   int64         `json:"records"`
	Locations []string      `json:"locations"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// RunResult aggregates every unit of a run.
type RunResult struct {
	RunID           string           `json:"run_id"`
	SourceKey       string           `json:"source_key"`
	Mode            Mode             `json:"mode"`
	EffectiveMode   Mode             `json:"effective_mode"`
	PreviousVersion int64            `json:"previous_version"`
	CurrentVersion  int64            `json:"current_version"`
	Success         bool             `json:"success"`
	Committed       bool             `json:"committed"`
	RecordCounts    map[string]int64 `json:"record_counts"`
	ChangedRecords  int64            `json:"changed_records"`
	DeletedRecords  int64            `json:"deleted_records"`
	FailedEndpoints []string         `json:"failed_endpoints,omitempty"`
	Units           []UnitResult     `json:"units"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}
