package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/showsweep/internal/models"
)

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local cache database",
	}

	cacheCmd.AddCommand(newCacheCheckCommand(opts))
	cacheCmd.AddCommand(newCacheRepairCommand(opts))
	cacheCmd.AddCommand(newCacheBackupCommand(opts))
	cacheCmd.AddCommand(newCacheRestoreCommand(opts))
	cacheCmd.AddCommand(newCacheClearCommand(opts))

	return cacheCmd
}

func newCacheCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify cache integrity without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			problems, err := app.store.Check()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, "Cache integrity OK")
				return nil
			}
			fmt.Fprintf(out, "Found %d problems:\n", len(problems))
			for _, problem := range problems {
				fmt.Fprintf(out, "  - %s\n", problem)
			}
			fmt.Fprintln(out, "Run 'showsweep cache repair' to fix them")
			return nil
		},
	}
}

func newCacheRepairCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Drop corrupted cache entries and orphaned mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.Repair(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache repaired")
			return nil
		},
	}
}

func newCacheBackupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [path]",
		Short: "Write a consistent snapshot of the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				if err := os.MkdirAll(app.cfg.BackupDir, 0755); err != nil {
					return fmt.Errorf("failed to create backup directory: %w", err)
				}
				stamp := time.Now().Format("20060102-150405")
				path = filepath.Join(app.cfg.BackupDir, "showsweep-"+stamp+".db")
			}

			if err := app.store.Backup(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		},
	}
}

func newCacheRestoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <path>",
		Short: "Replace the database with a backup snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.Restore(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database restored from %s\n", args[0])
			return nil
		},
	}
}

func newCacheClearCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Invalidate every cached per-source record",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			for _, entityType := range []models.EntityType{models.EntityWatch, models.EntityRequest, models.EntityMonitor} {
				if err := app.store.InvalidateAll(entityType); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}
}
