package controllers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/showsweep/internal/config"
	"github.com/amaumene/showsweep/internal/dispatch"
	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/report"
)

// Prefetcher warms an adapter's run-scoped cache before the per-show loop
type Prefetcher interface {
	Prefetch(ctx context.Context) error
}

// SweepController runs one full sweep: sync, reconcile, dispatch, report
type SweepController struct {
	cfg        *config.Config
	syncCtrl   *SyncController
	eng        *engine.Engine
	dispatcher *dispatch.Dispatcher
	prefetch   Prefetcher
	logger     *logrus.Logger
}

// NewSweepController creates a new sweep controller. prefetch may be nil
// when the request source is disabled.
func NewSweepController(cfg *config.Config, syncCtrl *SyncController, eng *engine.Engine, dispatcher *dispatch.Dispatcher, prefetch Prefetcher, logger *logrus.Logger) *SweepController {
	return &SweepController{
		cfg:        cfg,
		syncCtrl:   syncCtrl,
		eng:        eng,
		dispatcher: dispatcher,
		prefetch:   prefetch,
		logger:     logger,
	}
}

// Run executes one sweep and returns the final report. Per-show failures
// are folded into the report; only run-level failures (library listing,
// audit log) return an error.
func (c *SweepController) Run(ctx context.Context, mode models.Mode) (*report.Report, error) {
	dryRun := !c.cfg.Apply
	if dryRun {
		c.logger.Info("Simulation mode, no content will be deleted")
	} else {
		c.logger.Warn("Apply mode, eligible content WILL be deleted")
	}

	shows, excluded, err := c.syncCtrl.SyncLibrary(ctx)
	if err != nil {
		return nil, fmt.Errorf("library sync failed: %w", err)
	}

	// One paginated fetch up front beats one request-list scan per show
	if c.prefetch != nil && !c.cfg.SkipOverseerr {
		if err := c.prefetch.Prefetch(ctx); err != nil {
			c.logger.WithError(err).Warn("Request prefetch failed, falling back to per-show fetches")
		}
	}

	assessments, err := c.eng.Reconcile(ctx, shows, c.engineOptions())
	if err != nil {
		return nil, fmt.Errorf("reconciliation aborted: %w", err)
	}
	// Shows the sync could not resolve still get a keep record and a
	// place in the report.
	assessments = append(assessments, excluded...)

	rep := &report.Report{DryRun: dryRun}
	for _, assessment := range assessments {
		record, err := c.dispatcher.Apply(ctx, assessment, mode, dryRun)
		if err != nil {
			// Dispatch errors are audit-log failures; continuing would
			// leave actions unrecorded.
			return nil, fmt.Errorf("dispatch failed for %q: %w", assessment.Title, err)
		}
		rep.Add(assessment, record)
	}

	rep.Log(c.logger)
	if rep.Failed() {
		return rep, fmt.Errorf("all %d shows skipped due to adapter errors", rep.Total)
	}
	return rep, nil
}

// engineOptions maps run configuration onto engine options
func (c *SweepController) engineOptions() engine.Options {
	action := models.Action(c.cfg.DefaultAction)
	if !action.Valid() {
		action = models.ActionKeep
	}
	return engine.Options{
		ForceRefresh:         c.cfg.ForceRefresh,
		SkipRequests:         c.cfg.SkipOverseerr,
		SkipWatchHistory:     c.cfg.SkipTautulli,
		IgnoreFirstSeason:    c.cfg.IgnoreFirstSeason,
		IgnoreFirstEpisode:   c.cfg.IgnoreFirstEpisode,
		RequestThresholdDays: c.cfg.RequestThresholdDays,
		CacheTTL:             c.cfg.CacheTTL(),
		MaxRetries:           c.cfg.MaxRetries,
		DefaultAction:        action,
	}
}
