package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amaumene/showsweep/internal/scheduler"
)

func newDaemonCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run sweeps on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			sweepCtrl, err := app.buildSweep()
			if err != nil {
				return err
			}

			sched := scheduler.NewScheduler(sweepCtrl, app.cfg.SweepSchedule, app.logger)
			if err := sched.Start(); err != nil {
				return err
			}

			app.logger.Info("Showsweep daemon is running")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			sig := <-sigChan
			app.logger.WithField("signal", sig).Info("Received shutdown signal")

			sched.Stop()
			app.logger.Info("Showsweep daemon stopped")
			return nil
		},
	}
}
