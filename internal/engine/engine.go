package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/showsweep/internal/cache"
	"github.com/amaumene/showsweep/internal/identity"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/ratelimit"
	"github.com/amaumene/showsweep/internal/services/tautulli"
)

// Engine joins cached and freshly fetched per-source records by canonical id
// and classifies each show's eligibility for removal. It never mutates
// library state; its only writes are cache entries and identity mappings.
type Engine struct {
	store   *cache.Store
	mapper  *identity.Mapper
	watch   WatchSource
	history HistorySource
	request RequestSource
	monitor MonitorSource
	logger  *logrus.Logger

	// now is replaceable in tests
	now func() time.Time
}

// New creates a reconciliation engine. Nil sources are treated as disabled
// ("no signal"), which is how the skip flags are wired through.
func New(store *cache.Store, mapper *identity.Mapper, watch WatchSource, history HistorySource, request RequestSource, monitor MonitorSource, logger *logrus.Logger) *Engine {
	return &Engine{
		store:   store,
		mapper:  mapper,
		watch:   watch,
		history: history,
		request: request,
		monitor: monitor,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile assesses every show in the snapshot. Per-show errors never abort
// the run: unreachable adapters skip the show with action keep, ambiguous
// identities exclude it. Cancelling the context stops the scan between
// shows; assessments already produced stay valid.
func (e *Engine) Reconcile(ctx context.Context, shows []*models.Show, opts Options) ([]Assessment, error) {
	assessments := make([]Assessment, 0, len(shows))

	for _, show := range shows {
		if err := ctx.Err(); err != nil {
			return assessments, err
		}

		assessment := e.assess(ctx, show, opts)
		assessments = append(assessments, assessment)
	}

	e.logger.WithField("count", len(assessments)).Info("Reconciliation completed")
	return assessments, nil
}

// assess gathers the per-source records for one show and classifies it
func (e *Engine) assess(ctx context.Context, show *models.Show, opts Options) Assessment {
	log := e.logger.WithFields(logrus.Fields{
		"canonical_id": show.CanonicalID,
		"title":        show.Title,
	})

	watch, err := e.gatherWatch(ctx, show, opts)
	if err != nil {
		return e.errorAssessment(show, err, log)
	}

	requests, err := e.gatherRequests(ctx, show, opts)
	if err != nil {
		return e.errorAssessment(show, err, log)
	}

	monitor, err := e.gatherMonitor(ctx, show, opts)
	if err != nil {
		return e.errorAssessment(show, err, log)
	}

	assessment := Classify(show, watch, requests, monitor, opts, e.now())
	log.WithFields(logrus.Fields{
		"unwatched":          assessment.Unwatched,
		"requested_recently": assessment.RequestedRecently,
		"partial_protection": assessment.PartialProtection,
		"eligible":           assessment.Eligible,
	}).Debug("Show assessed")
	return assessment
}

// errorAssessment turns a gather failure into a keep verdict
func (e *Engine) errorAssessment(show *models.Show, err error, log *logrus.Entry) Assessment {
	assessment := Assessment{
		CanonicalID: show.CanonicalID,
		RatingKey:   show.PlexRatingKey,
		TVDBID:      show.TVDBID,
		Title:       show.Title,
		Year:        show.Year,
		SizeBytes:   show.SizeBytes(),
		Recommended: models.ActionKeep,
		Reason:      err.Error(),
	}
	if errors.Is(err, identity.ErrAmbiguous) {
		assessment.Excluded = true
		log.WithError(err).Warn("Show excluded from decisions")
	} else {
		assessment.Skipped = true
		log.WithError(err).Warn("Show skipped, adapter unavailable")
	}
	return assessment
}

// cached reads a fresh cache entry into out, reporting whether it hit.
// A corrupted entry is dropped and treated as a miss so the caller
// rebuilds it from the adapter instead of failing the show every run.
func (e *Engine) cached(entityType models.EntityType, canonicalID string, opts Options, out interface{}) (bool, error) {
	if opts.ForceRefresh {
		return false, nil
	}

	err := e.store.GetRecord(entityType, canonicalID, opts.CacheTTL, out)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cache.ErrCorrupted) {
		e.logger.WithError(err).WithField("canonical_id", canonicalID).Warn("Corrupted cache entry, rebuilding from source")
		if err := e.store.Invalidate(entityType, canonicalID); err != nil {
			return false, err
		}
		return false, nil
	}
	if errors.Is(err, cache.ErrMissing) {
		return false, nil
	}
	return false, err
}

// gatherWatch returns the show's watch record, cache-first. The watch-history
// service's per-show stats are merged with the media server's own play
// history so either positive signal blocks deletion. Skipping the
// watch-history service never silences the media server's own history.
func (e *Engine) gatherWatch(ctx context.Context, show *models.Show, opts Options) (*models.WatchRecord, error) {
	watchEnabled := !opts.SkipWatchHistory && e.watch != nil
	if !watchEnabled && e.history == nil {
		return nil, nil
	}

	var cachedRecord models.WatchRecord
	hit, err := e.cached(models.EntityWatch, show.CanonicalID, opts, &cachedRecord)
	if err != nil {
		return nil, err
	}
	if hit {
		return &cachedRecord, nil
	}

	record := &models.WatchRecord{CanonicalID: show.CanonicalID}

	if watchEnabled {
		var stats *tautulli.WatchStats
		err := e.retry(ctx, opts, func() error {
			s, err := e.watch.GetWatchStats(ctx, show.PlexRatingKey)
			if err != nil {
				return err
			}
			stats = s
			return nil
		})
		if err != nil {
			return nil, err
		}
		record.TotalPlays = stats.TotalPlays
		record.LastWatchedAt = stats.LastWatchedAt

		// The watch-history service often knows the TVDB id before anyone
		// else; register it so the monitoring source can be joined.
		if stats.TVDBID != "" && show.TVDBID == "" {
			if err := e.mapper.RegisterTVDBID(show.CanonicalID, stats.TVDBID); err != nil {
				if errors.Is(err, identity.ErrAmbiguous) {
					return nil, err
				}
				e.logger.WithError(err).Warn("Failed to register TVDB id")
			} else {
				show.TVDBID = stats.TVDBID
			}
		}
	}

	if record.TotalPlays == 0 && e.history != nil {
		var watched bool
		err := e.retry(ctx, opts, func() error {
			w, err := e.history.HasWatchHistory(ctx, show.PlexRatingKey)
			if err != nil {
				return err
			}
			watched = w
			return nil
		})
		if err != nil {
			return nil, err
		}
		if watched {
			record.TotalPlays = 1
		}
	}

	// Fetch, then commit; the network call never runs inside the transaction
	if err := e.store.Put(models.EntityWatch, show.CanonicalID, record); err != nil {
		return nil, err
	}
	return record, nil
}

// gatherRequests returns the show's request records, cache-first
func (e *Engine) gatherRequests(ctx context.Context, show *models.Show, opts Options) ([]models.RequestRecord, error) {
	if opts.SkipRequests || e.request == nil {
		return nil, nil
	}

	var cachedRecords []models.RequestRecord
	hit, err := e.cached(models.EntityRequest, show.CanonicalID, opts, &cachedRecords)
	if err != nil {
		return nil, err
	}
	if hit {
		return cachedRecords, nil
	}

	var records []models.RequestRecord
	err = e.retry(ctx, opts, func() error {
		r, err := e.request.GetRequests(ctx, show.PlexRatingKey)
		if err != nil {
			return err
		}
		records = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].CanonicalID = show.CanonicalID
	}

	if err := e.store.Put(models.EntityRequest, show.CanonicalID, records); err != nil {
		return nil, err
	}
	return records, nil
}

// gatherMonitor returns the monitoring service's record, cache-first. A show
// without a TVDB id cannot be joined to the monitoring service and yields no
// signal.
func (e *Engine) gatherMonitor(ctx context.Context, show *models.Show, opts Options) (*models.MonitorRecord, error) {
	if e.monitor == nil || show.TVDBID == "" {
		return nil, nil
	}

	var cachedRecord models.MonitorRecord
	hit, err := e.cached(models.EntityMonitor, show.CanonicalID, opts, &cachedRecord)
	if err != nil {
		return nil, err
	}
	if hit {
		return &cachedRecord, nil
	}

	var record *models.MonitorRecord
	err = e.retry(ctx, opts, func() error {
		r, err := e.monitor.GetMonitorRecord(ctx, show.TVDBID)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &models.MonitorRecord{}
	}
	record.CanonicalID = show.CanonicalID

	if err := e.store.Put(models.EntityMonitor, show.CanonicalID, record); err != nil {
		return nil, err
	}
	return record, nil
}

// retry runs op with exponential backoff up to the configured limit. A rate
// limit timeout already waited its full policy and is not retried; it
// surfaces as adapter unavailability like any other exhausted retry.
func (e *Engine) retry(ctx context.Context, opts Options, op func() error) error {
	wrapped := func() error {
		err := op()
		if errors.Is(err, ratelimit.ErrTimeout) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(opts.MaxRetries)), ctx)
	if err := backoff.Retry(wrapped, policy); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return nil
}
