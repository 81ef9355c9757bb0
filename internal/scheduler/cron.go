package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/showsweep/internal/controllers"
	"github.com/amaumene/showsweep/internal/models"
)

// Scheduler runs sweeps on a cron schedule. Daemon sweeps are always
// non-interactive; there is no terminal to prompt on.
type Scheduler struct {
	cron      *cron.Cron
	sweepCtrl *controllers.SweepController
	schedule  string
	logger    *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(sweepCtrl *controllers.SweepController, schedule string, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		sweepCtrl: sweepCtrl,
		schedule:  schedule,
		logger:    logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.WithField("schedule", s.schedule).Info("Starting scheduler")

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep()
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runSweep executes the scheduled sweep job
func (s *Scheduler) runSweep() {
	s.logger.Info("Running scheduled sweep")
	ctx := context.Background()

	if _, err := s.sweepCtrl.Run(ctx, models.ModeNonInteractive); err != nil {
		s.logger.WithError(err).Error("Sweep job failed")
	} else {
		s.logger.Info("Sweep job completed successfully")
	}
}
