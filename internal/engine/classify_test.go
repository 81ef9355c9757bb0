package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/amaumene/showsweep/internal/models"
)

var classifyNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func baseShow() *models.Show {
	return &models.Show{
		CanonicalID:   "abc",
		PlexRatingKey: "101",
		Title:         "The Wire",
		Year:          2002,
		Seasons: []models.Season{
			{Number: 1, SizeBytes: 100},
			{Number: 2, SizeBytes: 200},
		},
	}
}

func baseOpts() Options {
	return Options{
		RequestThresholdDays: 365,
		DefaultAction:        models.ActionDelete,
	}
}

func daysAgo(days int) time.Time {
	return classifyNow.Add(-time.Duration(days) * 24 * time.Hour)
}

func TestClassifyUnwatchedUnrequestedIsEligible(t *testing.T) {
	a := Classify(baseShow(), &models.WatchRecord{}, nil, nil, baseOpts(), classifyNow)

	assert.True(t, a.Unwatched)
	assert.False(t, a.RequestedRecently)
	assert.False(t, a.PartialProtection)
	assert.True(t, a.Eligible)
	assert.Equal(t, models.ActionDelete, a.Recommended)
	assert.Equal(t, int64(300), a.SizeBytes)
}

func TestClassifyOldRequestDoesNotBlock(t *testing.T) {
	requests := []models.RequestRecord{{RequestedAt: daysAgo(400)}}
	a := Classify(baseShow(), &models.WatchRecord{}, requests, nil, baseOpts(), classifyNow)

	assert.False(t, a.RequestedRecently)
	assert.True(t, a.Eligible)
}

func TestClassifyRecentRequestBlocks(t *testing.T) {
	requests := []models.RequestRecord{
		{RequestedAt: daysAgo(400)},
		{RequestedAt: daysAgo(10)},
	}
	a := Classify(baseShow(), &models.WatchRecord{}, requests, nil, baseOpts(), classifyNow)

	assert.True(t, a.RequestedRecently)
	assert.False(t, a.Eligible)
	assert.Equal(t, models.ActionKeep, a.Recommended)
}

func TestClassifyCustomThreshold(t *testing.T) {
	opts := baseOpts()
	opts.RequestThresholdDays = 30
	requests := []models.RequestRecord{{RequestedAt: daysAgo(45)}}

	a := Classify(baseShow(), &models.WatchRecord{}, requests, nil, opts, classifyNow)
	assert.True(t, a.Eligible)
}

func TestClassifyWatchedBlocks(t *testing.T) {
	a := Classify(baseShow(), &models.WatchRecord{TotalPlays: 2}, nil, nil, baseOpts(), classifyNow)

	assert.False(t, a.Unwatched)
	assert.False(t, a.Eligible)
}

func TestClassifyMixedEpisodePlaysCountAsWatched(t *testing.T) {
	watch := &models.WatchRecord{
		EpisodePlays: []models.EpisodePlay{
			{Season: 1, Episode: 1, Plays: 0},
			{Season: 3, Episode: 7, Plays: 1},
		},
	}
	a := Classify(baseShow(), watch, nil, nil, baseOpts(), classifyNow)
	assert.False(t, a.Unwatched)
}

func TestClassifyNilRecordsMeanNoSignal(t *testing.T) {
	// Skipped sources yield nil records; that must read as unwatched and
	// unrequested, not as an error
	a := Classify(baseShow(), nil, nil, nil, baseOpts(), classifyNow)

	assert.True(t, a.Unwatched)
	assert.False(t, a.RequestedRecently)
	assert.True(t, a.Eligible)
}

func TestClassifyFirstSeasonProtection(t *testing.T) {
	show := baseShow()
	show.Seasons = []models.Season{{Number: 1, Episodes: []models.Episode{{Number: 1}, {Number: 2}}}}

	opts := baseOpts()
	a := Classify(show, &models.WatchRecord{}, nil, nil, opts, classifyNow)
	assert.False(t, a.PartialProtection, "flag off, no protection")
	assert.True(t, a.Eligible)

	opts.IgnoreFirstSeason = true
	a = Classify(show, &models.WatchRecord{}, nil, nil, opts, classifyNow)
	assert.True(t, a.PartialProtection)
	assert.False(t, a.Eligible)
}

func TestClassifyFirstEpisodeProtection(t *testing.T) {
	show := baseShow()
	show.Seasons = []models.Season{{Number: 1, Episodes: []models.Episode{{Number: 1}}}}

	opts := baseOpts()
	opts.IgnoreFirstEpisode = true
	a := Classify(show, &models.WatchRecord{}, nil, nil, opts, classifyNow)
	assert.True(t, a.PartialProtection)

	// Two episodes in season 1 is more than just the pilot
	show.Seasons[0].Episodes = append(show.Seasons[0].Episodes, models.Episode{Number: 2})
	a = Classify(show, &models.WatchRecord{}, nil, nil, opts, classifyNow)
	assert.False(t, a.PartialProtection)
}

func TestClassifyProtectionIgnoredForFullShows(t *testing.T) {
	opts := baseOpts()
	opts.IgnoreFirstSeason = true
	opts.IgnoreFirstEpisode = true

	a := Classify(baseShow(), &models.WatchRecord{}, nil, nil, opts, classifyNow)
	assert.False(t, a.PartialProtection)
	assert.True(t, a.Eligible)
}

func TestClassifyMonitorFallbackForProtection(t *testing.T) {
	show := baseShow()
	show.Seasons = nil // empty inventory, monitoring service stands in

	monitor := &models.MonitorRecord{SeasonFiles: []models.SeasonFileCount{
		{Season: 1, FileCount: 8},
		{Season: 2, FileCount: 0},
	}}

	opts := baseOpts()
	opts.IgnoreFirstSeason = true
	a := Classify(show, &models.WatchRecord{}, nil, monitor, opts, classifyNow)
	assert.True(t, a.PartialProtection)

	opts.IgnoreFirstSeason = false
	opts.IgnoreFirstEpisode = true
	a = Classify(show, &models.WatchRecord{}, nil, monitor, opts, classifyNow)
	assert.False(t, a.PartialProtection, "eight files is not just the pilot")

	monitor.SeasonFiles[0].FileCount = 1
	a = Classify(show, &models.WatchRecord{}, nil, monitor, opts, classifyNow)
	assert.True(t, a.PartialProtection)
}

func TestClassifyDefaultActionKeepMeansNoDestruction(t *testing.T) {
	opts := baseOpts()
	opts.DefaultAction = models.ActionKeep

	a := Classify(baseShow(), &models.WatchRecord{}, nil, nil, opts, classifyNow)
	assert.True(t, a.Eligible)
	assert.Equal(t, models.ActionKeep, a.Recommended)
}
