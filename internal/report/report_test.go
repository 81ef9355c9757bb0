package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/models"
)

func record(action models.Action, simulated bool) *models.ActionRecord {
	return &models.ActionRecord{Action: action, Simulated: simulated}
}

func TestAddRoutesBySafetyRule(t *testing.T) {
	r := &Report{}

	r.Add(engine.Assessment{Title: "Acted", Eligible: true, Unwatched: true}, record(models.ActionDelete, true))
	r.Add(engine.Assessment{Title: "Errored", Skipped: true, Reason: "adapter unavailable"}, record(models.ActionKeep, true))
	r.Add(engine.Assessment{Title: "Ambiguous", Excluded: true}, record(models.ActionKeep, true))
	r.Add(engine.Assessment{Title: "Requested", Unwatched: true, RequestedRecently: true}, record(models.ActionKeep, true))
	r.Add(engine.Assessment{Title: "Watched", Unwatched: false}, record(models.ActionKeep, true))
	r.Add(engine.Assessment{Title: "Pilot only", Unwatched: true, PartialProtection: true}, record(models.ActionKeep, true))

	assert.Equal(t, 6, r.Total)
	assert.Len(t, r.Acted, 1)
	assert.Len(t, r.SkippedErrors, 1)
	assert.Len(t, r.ExcludedAmbiguous, 1)
	assert.Len(t, r.RecentRequest, 1)
	assert.Len(t, r.WatchHistory, 1)
	assert.Len(t, r.PartialProtection, 1)

	assert.Equal(t, "Acted", r.Acted[0].Title)
	assert.Equal(t, "adapter unavailable", r.SkippedErrors[0].Reason)
}

func TestReclaimableBytesCountsOnlyDeletes(t *testing.T) {
	r := &Report{}

	r.Add(engine.Assessment{Title: "Gone", Eligible: true, Unwatched: true, SizeBytes: 5000}, record(models.ActionDelete, false))
	r.Add(engine.Assessment{Title: "Trimmed", Eligible: true, Unwatched: true, SizeBytes: 3000}, record(models.ActionKeepFirstSeason, false))
	r.Add(engine.Assessment{Title: "Kept", Eligible: true, Unwatched: true, SizeBytes: 9000}, record(models.ActionKeep, false))

	assert.Equal(t, int64(5000), r.ReclaimableBytes())
}

func TestFailedOnlyWhenEveryShowErrored(t *testing.T) {
	r := &Report{}
	assert.False(t, r.Failed(), "empty run is not a failure")

	r.Add(engine.Assessment{Title: "A", Skipped: true}, record(models.ActionKeep, true))
	assert.True(t, r.Failed())

	r.Add(engine.Assessment{Title: "B", Eligible: true, Unwatched: true}, record(models.ActionDelete, true))
	assert.False(t, r.Failed(), "partial progress still produces a report")
}

func TestEntryLabel(t *testing.T) {
	assert.Equal(t, "The Wire (2002)", Entry{Title: "The Wire", Year: 2002}.label())
	assert.Equal(t, "The Wire", Entry{Title: "The Wire"}.label())
}
