package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "showsweep",
		Short:         "Reclaim disk space from unwatched, unrequested TV shows",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newSweepCommand(opts))
	rootCmd.AddCommand(newDaemonCommand(opts))
	rootCmd.AddCommand(newCacheCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))

	return rootCmd
}

type rootOptions struct {
	debug bool
}
