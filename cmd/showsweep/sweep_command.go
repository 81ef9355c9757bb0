package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amaumene/showsweep/internal/models"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var (
		skipConfirmation   bool
		forceRefresh       bool
		action             string
		skipOverseerr      bool
		skipTautulli       bool
		ignoreFirstSeason  bool
		ignoreFirstEpisode bool
		apply              bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep over the library, interactively unless told otherwise",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			// Flags override the environment only when given
			flags := cmd.Flags()
			if flags.Changed("skip-confirmation") {
				app.cfg.SkipConfirmation = skipConfirmation
			}
			if flags.Changed("force-refresh") {
				app.cfg.ForceRefresh = forceRefresh
			}
			if flags.Changed("action") {
				if !models.Action(action).Valid() {
					return fmt.Errorf("invalid action %q", action)
				}
				app.cfg.DefaultAction = action
			}
			if flags.Changed("skip-overseerr") {
				app.cfg.SkipOverseerr = skipOverseerr
			}
			if flags.Changed("skip-tautulli") {
				app.cfg.SkipTautulli = skipTautulli
			}
			if flags.Changed("ignore-first-season") {
				app.cfg.IgnoreFirstSeason = ignoreFirstSeason
			}
			if flags.Changed("ignore-first-episode") {
				app.cfg.IgnoreFirstEpisode = ignoreFirstEpisode
			}
			if flags.Changed("apply") {
				app.cfg.Apply = apply
			}

			sweepCtrl, err := app.buildSweep()
			if err != nil {
				return err
			}

			mode := models.ModeInteractive
			if app.cfg.SkipConfirmation {
				mode = models.ModeNonInteractive
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = sweepCtrl.Run(ctx, mode)
			return err
		},
	}

	cmd.Flags().BoolVar(&skipConfirmation, "skip-confirmation", false, "Apply the configured action to every eligible show without prompting")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Bypass cached per-source records and refetch everything")
	cmd.Flags().StringVar(&action, "action", "", "Action for eligible shows in non-interactive mode (delete, keep_first_season, keep_first_episode, keep)")
	cmd.Flags().BoolVar(&skipOverseerr, "skip-overseerr", false, "Skip the request check")
	cmd.Flags().BoolVar(&skipTautulli, "skip-tautulli", false, "Skip the watch history check")
	cmd.Flags().BoolVar(&ignoreFirstSeason, "ignore-first-season", false, "Never act on shows whose only content is season 1")
	cmd.Flags().BoolVar(&ignoreFirstEpisode, "ignore-first-episode", false, "Never act on shows whose only content is the first episode")
	cmd.Flags().BoolVar(&apply, "apply", false, "Really delete content; without this flag every run is a simulation")

	return cmd
}
