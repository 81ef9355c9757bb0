package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/showsweep/internal/cache"
	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/models"
)

// MediaServer is the destructive surface of the media server adapter
type MediaServer interface {
	DeleteShow(ctx context.Context, ratingKey string) error
	KeepFirstSeason(ctx context.Context, ratingKey string) error
	KeepFirstEpisode(ctx context.Context, ratingKey string) error
}

// Monitor is the destructive surface of the monitoring service adapter
type Monitor interface {
	Unmonitor(ctx context.Context, tvdbID string) error
}

// Prompter asks the user to choose an action for one eligible show
type Prompter interface {
	Choose(assessment engine.Assessment) (models.Action, error)
}

// Dispatcher converts assessments into actions and records every outcome in
// the append-only audit log
type Dispatcher struct {
	db       *models.Database
	media    MediaServer
	monitor  Monitor
	prompter Prompter
	logger   *logrus.Logger
}

// New creates a dispatcher. monitor may be nil when no monitoring service is
// configured; prompter may be nil in non-interactive runs.
func New(db *models.Database, media MediaServer, monitor Monitor, prompter Prompter, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		db:       db,
		media:    media,
		monitor:  monitor,
		prompter: prompter,
		logger:   logger,
	}
}

// Apply decides and performs the action for one assessment. Ineligible shows
// are always kept, no mode or configuration overrides that. With dryRun the
// decided action is recorded as simulated and no destructive call is made.
// Real-mode adapter failures degrade to a keep record annotated with the
// failure, never a silent skip.
func (d *Dispatcher) Apply(ctx context.Context, assessment engine.Assessment, mode models.Mode, dryRun bool) (*models.ActionRecord, error) {
	action := models.ActionKeep
	actor := models.ActorAuto

	if assessment.Eligible {
		action = assessment.Recommended
		if mode == models.ModeInteractive && d.prompter != nil {
			chosen, err := d.prompter.Choose(assessment)
			if err != nil {
				return nil, fmt.Errorf("prompt failed: %w", err)
			}
			if !chosen.Valid() {
				chosen = models.ActionKeep
			}
			action = chosen
			actor = models.ActorInteractive
		}
	}

	record := &models.ActionRecord{
		CanonicalID: assessment.CanonicalID,
		Title:       assessment.Title,
		Action:      action,
		Simulated:   dryRun,
		Actor:       actor,
	}

	if !dryRun && action != models.ActionKeep {
		if err := d.execute(ctx, assessment, action); err != nil {
			d.logger.WithError(err).WithField("title", assessment.Title).Error("Action failed, keeping show")
			record.Action = models.ActionKeep
			record.Failure = err.Error()
		}
	}

	if err := d.persist(record); err != nil {
		return nil, err
	}

	d.logger.WithFields(logrus.Fields{
		"title":     assessment.Title,
		"action":    record.Action,
		"simulated": record.Simulated,
	}).Info("Action recorded")
	return record, nil
}

// execute issues the destructive calls for one action
func (d *Dispatcher) execute(ctx context.Context, assessment engine.Assessment, action models.Action) error {
	switch action {
	case models.ActionDelete:
		if err := d.media.DeleteShow(ctx, assessment.RatingKey); err != nil {
			return err
		}
	case models.ActionKeepFirstSeason:
		if err := d.media.KeepFirstSeason(ctx, assessment.RatingKey); err != nil {
			return err
		}
	case models.ActionKeepFirstEpisode:
		if err := d.media.KeepFirstEpisode(ctx, assessment.RatingKey); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unexpected action %q", action)
	}

	// Stop the download manager from re-grabbing what was just removed.
	// Unmonitor failures don't undo the media server action, so they are
	// logged rather than failing the whole dispatch.
	if d.monitor != nil && assessment.TVDBID != "" {
		if err := d.monitor.Unmonitor(ctx, assessment.TVDBID); err != nil {
			d.logger.WithError(err).WithField("tvdb_id", assessment.TVDBID).Warn("Failed to unmonitor series")
		}
	}
	return nil
}

// persist appends the record, retrying once. A second failure aborts the run.
func (d *Dispatcher) persist(record *models.ActionRecord) error {
	err := d.db.InsertActionRecord(record)
	if err == nil {
		return nil
	}
	d.logger.WithError(err).Warn("Action record insert failed, retrying once")

	if err := d.db.InsertActionRecord(record); err != nil {
		return fmt.Errorf("%w: action record did not commit: %v", cache.ErrTransaction, err)
	}
	return nil
}
