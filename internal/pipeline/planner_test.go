package pipeline

import (
	"testing"

	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogFixture = []models.Endpoint{
	{Path: "/ed-fi/schools", Table: "schools"},
	{Path: "/ed-fi/schools/deletes", Table: "schools", IsDeleteVariant: true},
	{Path: "/ed-fi/students", Table: "students"},
	{Path: "/ed-fi/students/deletes", Table: "students", IsDeleteVariant: true},
}

func paths(units []models.ExtractionUnit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.Endpoint.Path)
	}
	return out
}

func TestPlanFullExcludesDeletesByDefault(t *testing.T) {
	units := Plan(catalogFixture, PlanOptions{Mode: models.ModeFull, Previous: models.NoWatermark, Current: 150})

	assert.Equal(t, []string{"/ed-fi/schools", "/ed-fi/students"}, paths(units))
	for _, u := range units {
		assert.Nil(t, u.Bounds)
		assert.Equal(t, models.ModeFull, u.Mode)
		assert.True(t, u.IsCompleteExtract())
	}
}

func TestPlanFullWithDeletesOptIn(t *testing.T) {
	units := Plan(catalogFixture, PlanOptions{Mode: models.ModeFull, IncludeDeletesOnFull: true})
	assert.Equal(t, []string{"/ed-fi/schools", "/ed-fi/schools/deletes", "/ed-fi/students", "/ed-fi/students/deletes"}, paths(units))
}

func TestPlanIncrementalBoundsEveryEndpoint(t *testing.T) {
	units := Plan(catalogFixture, PlanOptions{Mode: models.ModeIncremental, Previous: 120, Current: 150})

	require.Len(t, units, len(catalogFixture))
	for i, u := range units {
		assert.Equal(t, catalogFixture[i], u.Endpoint)
		require.NotNil(t, u.Bounds)
		assert.Equal(t, models.VersionRange{From: 120, To: 150}, *u.Bounds)
		assert.False(t, u.IsCompleteExtract())
	}
}

func TestPlanIncrementalEmptyRangeStillPlans(t *testing.T) {
	units := Plan(catalogFixture, PlanOptions{Mode: models.ModeIncremental, Previous: 150, Current: 150})
	assert.Len(t, units, len(catalogFixture))
}

func TestPlanUnitsDoNotShareBounds(t *testing.T) {
	units := Plan(catalogFixture, PlanOptions{Mode: models.ModeIncremental, Previous: 1, Current: 2})
	units[0].Bounds.To = 99
	assert.Equal(t, int64(2), units[1].Bounds.To)
}

func TestPlanEmptyCatalog(t *testing.T) {
	assert.Empty(t, Plan(nil, PlanOptions{Mode: models.ModeFull}))
}
