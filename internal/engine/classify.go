package engine

import (
	"time"

	"github.com/amaumene/showsweep/internal/models"
)

// Options control one reconciliation run
type Options struct {
	ForceRefresh         bool
	SkipRequests         bool // treat the request source as "no signal"
	SkipWatchHistory     bool // treat the watch-history source as "no signal"
	IgnoreFirstSeason    bool
	IgnoreFirstEpisode   bool
	RequestThresholdDays int
	CacheTTL             time.Duration
	MaxRetries           int
	DefaultAction        models.Action
}

// Assessment is the engine's verdict for one show
type Assessment struct {
	CanonicalID string
	RatingKey   string
	TVDBID      string
	Title       string
	Year        int
	SizeBytes   int64

	Unwatched         bool
	RequestedRecently bool
	PartialProtection bool
	Eligible          bool
	Recommended       models.Action

	// Error handling outcomes; both force the recommended action to keep
	Skipped  bool // adapter unavailable after retries
	Excluded bool // ambiguous identity, awaiting re-resolution
	Reason   string
}

// Classify derives the eligibility verdict from the gathered records. It is
// a pure function: no I/O, no mutation of library state, deterministic for
// fixed inputs and clock.
func Classify(show *models.Show, watch *models.WatchRecord, requests []models.RequestRecord, monitor *models.MonitorRecord, opts Options, now time.Time) Assessment {
	assessment := Assessment{
		CanonicalID: show.CanonicalID,
		RatingKey:   show.PlexRatingKey,
		TVDBID:      show.TVDBID,
		Title:       show.Title,
		Year:        show.Year,
		SizeBytes:   show.SizeBytes(),
	}

	// Any positive watch signal anywhere in the inventory excludes deletion;
	// a missing record counts as no signal.
	assessment.Unwatched = !watch.Watched()

	threshold := time.Duration(opts.RequestThresholdDays) * 24 * time.Hour
	for _, request := range requests {
		if now.Sub(request.RequestedAt) < threshold {
			assessment.RequestedRecently = true
			break
		}
	}

	assessment.PartialProtection = partialProtection(show, monitor, opts)

	assessment.Eligible = assessment.Unwatched &&
		!assessment.RequestedRecently &&
		!assessment.PartialProtection

	assessment.Recommended = models.ActionKeep
	if assessment.Eligible {
		if opts.DefaultAction.Valid() {
			assessment.Recommended = opts.DefaultAction
		}
	}
	return assessment
}

// partialProtection reports whether the configured ignore flags shield the
// show because its only downloaded content is exactly the first season or
// first episode. The media server inventory decides; the monitoring
// service's file counts stand in when the inventory is empty.
func partialProtection(show *models.Show, monitor *models.MonitorRecord, opts Options) bool {
	if !opts.IgnoreFirstSeason && !opts.IgnoreFirstEpisode {
		return false
	}

	if len(show.Seasons) > 0 {
		if opts.IgnoreFirstSeason && show.HasOnlyFirstSeason() {
			return true
		}
		if opts.IgnoreFirstEpisode && show.HasOnlyFirstEpisode() {
			return true
		}
		return false
	}

	if monitor == nil {
		return false
	}
	withFiles := 0
	onlyFirst := false
	firstEpisodeCount := 0
	for _, season := range monitor.SeasonFiles {
		if season.FileCount == 0 {
			continue
		}
		withFiles++
		if season.Season == 1 {
			onlyFirst = true
			firstEpisodeCount = season.FileCount
		}
	}
	if withFiles != 1 || !onlyFirst {
		return false
	}
	if opts.IgnoreFirstSeason {
		return true
	}
	return opts.IgnoreFirstEpisode && firstEpisodeCount == 1
}
