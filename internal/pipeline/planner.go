package pipeline

import (
	"github.com/ajitpratap0/edsync/pkg/models"
)

// PlanOptions selects the units of a run.
type PlanOptions struct {
	// Mode is the effective mode of the run
	Mode models.Mode
	// Previous is the committed watermark, Current the newest change version.
	// Both bound incremental units.
	Previous int64
	Current  int64
	// IncludeDeletesOnFull also plans delete feeds in full mode
	IncludeDeletesOnFull bool
}

// Plan expands endpoints into the extraction units of a run, preserving
// catalog order. In full mode delete feeds are skipped unless opted in and
// no unit is bounded. In incremental mode every endpoint is planned with
// the range (Previous, Current], even when the range is empty.
func Plan(endpoints []models.Endpoint, opts PlanOptions) []models.ExtractionUnit {
	units := make([]models.ExtractionUnit, 0, len(endpoints))
	for _, ep := range endpoints {
		unit := models.ExtractionUnit{Endpoint: ep, Mode: opts.Mode}

		switch opts.Mode {
		case models.ModeIncremental:
			unit.Bounds = &models.VersionRange{From: opts.Previous, To: opts.Current}
		default:
			if ep.IsDeleteVariant && !opts.IncludeDeletesOnFull {
				continue
			}
		}
		units = append(units, unit)
	}
	return units
}
