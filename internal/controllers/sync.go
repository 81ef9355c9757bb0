package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/identity"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/services/plex"
)

// SyncController mirrors the media server library into the local database
type SyncController struct {
	db     *models.Database
	plex   *plex.Client
	mapper *identity.Mapper
	logger *logrus.Logger
}

// NewSyncController creates a new sync controller
func NewSyncController(db *models.Database, plexClient *plex.Client, mapper *identity.Mapper, logger *logrus.Logger) *SyncController {
	return &SyncController{
		db:     db,
		plex:   plexClient,
		mapper: mapper,
		logger: logger,
	}
}

// SyncLibrary refreshes the local show snapshot from the media server and
// returns the shows currently in the library, plus an excluded assessment
// for every entry whose identity could not be resolved. Shows that
// disappeared from the server stay in the database marked inactive so their
// audit history keeps a subject.
func (c *SyncController) SyncLibrary(ctx context.Context) ([]*models.Show, []engine.Assessment, error) {
	c.logger.Info("Starting library sync")

	if err := c.db.MarkAllShowsInactive(); err != nil {
		return nil, nil, fmt.Errorf("failed to mark shows inactive: %w", err)
	}

	entries, err := c.plex.ListShows(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list library shows: %w", err)
	}
	c.logger.WithField("count", len(entries)).Info("Retrieved library shows")

	shows := make([]*models.Show, 0, len(entries))
	var excluded []engine.Assessment
	for _, entry := range entries {
		show, err := c.syncShow(entry)
		if err != nil {
			// An unresolved identity keeps the show out of this run but
			// must not abort the sync for everyone else. It still has to
			// show up in the final report.
			if errors.Is(err, identity.ErrAmbiguous) {
				c.logger.WithError(err).WithField("title", entry.Title).Warn("Identity unresolved, show excluded from decisions")
				excluded = append(excluded, excludedAssessment(entry, err))
				continue
			}
			return nil, nil, err
		}
		shows = append(shows, show)
	}

	c.logger.WithFields(logrus.Fields{
		"count":    len(shows),
		"excluded": len(excluded),
	}).Info("Library sync completed")
	return shows, excluded, nil
}

// excludedAssessment stands in for a library entry that never reached the
// engine; it is force-kept like any other exclusion.
func excludedAssessment(entry *plex.ShowEntry, err error) engine.Assessment {
	var size int64
	for _, season := range entry.Seasons {
		size += season.SizeBytes
	}
	return engine.Assessment{
		RatingKey:   entry.RatingKey,
		Title:       entry.Title,
		Year:        entry.Year,
		SizeBytes:   size,
		Recommended: models.ActionKeep,
		Excluded:    true,
		Reason:      err.Error(),
	}
}

// syncShow resolves one library entry to its canonical id and upserts it
func (c *SyncController) syncShow(entry *plex.ShowEntry) (*models.Show, error) {
	canonicalID, err := c.mapper.Resolve(models.SourcePlex, entry.RatingKey, identity.Hints{
		Title: entry.Title,
		Year:  entry.Year,
		GUID:  entry.GUID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	show, err := c.db.GetShow(canonicalID)
	if errors.Is(err, bolthold.ErrNotFound) {
		show = &models.Show{
			CanonicalID: canonicalID,
			CreatedAt:   now,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load show %q: %w", entry.Title, err)
	}

	show.PlexRatingKey = entry.RatingKey
	if show.TVDBID == "" {
		show.TVDBID = identity.TVDBIDFromGUID(entry.GUID)
	}
	show.Title = entry.Title
	show.Year = entry.Year
	show.GUID = entry.GUID
	show.Path = entry.Path
	show.Seasons = entry.Seasons
	show.Active = true
	show.LastSeenAt = now
	show.UpdatedAt = now

	if err := c.db.UpsertShow(show); err != nil {
		return nil, fmt.Errorf("failed to upsert show %q: %w", entry.Title, err)
	}
	return show, nil
}
