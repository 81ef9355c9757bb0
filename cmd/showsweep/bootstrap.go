package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/showsweep/internal/cache"
	"github.com/amaumene/showsweep/internal/config"
	"github.com/amaumene/showsweep/internal/controllers"
	"github.com/amaumene/showsweep/internal/dispatch"
	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/identity"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/ratelimit"
	"github.com/amaumene/showsweep/internal/services/overseerr"
	"github.com/amaumene/showsweep/internal/services/plex"
	"github.com/amaumene/showsweep/internal/services/sonarr"
	"github.com/amaumene/showsweep/internal/services/tautulli"
	"github.com/amaumene/showsweep/internal/utils"
)

// app holds the pieces every subcommand needs
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *models.Database
	store  *cache.Store
}

// newApp loads configuration and opens the database. Offline commands skip
// the service credential checks; they never talk to any adapter.
func newApp(opts *rootOptions, offline bool) (*app, error) {
	var cfg *config.Config
	var err error
	if offline {
		cfg, err = config.LoadOffline()
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}

	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFile)

	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  cache.NewStore(db, logger),
	}, nil
}

// Close releases the database
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// buildSweep wires the adapters, engine and dispatcher for a sweep run
func (a *app) buildSweep() (*controllers.SweepController, error) {
	limiter := ratelimit.New(a.cfg.RateLimitTimeout(), a.logger)
	limiter.SetLimit(models.SourcePlex, a.cfg.RateLimitPlex)
	limiter.SetLimit(models.SourceOverseerr, a.cfg.RateLimitOverseerr)
	limiter.SetLimit(models.SourceTautulli, a.cfg.RateLimitTautulli)
	limiter.SetLimit(models.SourceSonarr, a.cfg.RateLimitSonarr)

	plexClient, err := plex.NewClient(a.cfg, limiter, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Plex client: %w", err)
	}

	var watch engine.WatchSource
	if !a.cfg.SkipTautulli {
		tautulliClient, err := tautulli.NewClient(a.cfg, limiter, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Tautulli client: %w", err)
		}
		watch = tautulliClient
	}

	var request engine.RequestSource
	var prefetch controllers.Prefetcher
	if !a.cfg.SkipOverseerr {
		overseerrClient, err := overseerr.NewClient(a.cfg, limiter, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Overseerr client: %w", err)
		}
		request = overseerrClient
		prefetch = overseerrClient
	}

	// Sonarr is optional; without it there is no monitoring signal and
	// nothing to unmonitor after a delete.
	var monitorSource engine.MonitorSource
	var monitor dispatch.Monitor
	if a.cfg.SonarrURL != "" {
		sonarrClient, err := sonarr.NewClient(a.cfg, limiter, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Sonarr client: %w", err)
		}
		monitorSource = sonarrClient
		monitor = sonarrClient
	}

	mapper := identity.NewMapper(a.db, a.logger)
	eng := engine.New(a.store, mapper, watch, plexClient, request, monitorSource, a.logger)

	prompter := dispatch.NewConsolePrompter(os.Stdin, os.Stdout)
	dispatcher := dispatch.New(a.db, plexClient, monitor, prompter, a.logger)

	syncCtrl := controllers.NewSyncController(a.db, plexClient, mapper, a.logger)
	return controllers.NewSweepController(a.cfg, syncCtrl, eng, dispatcher, prefetch, a.logger), nil
}
