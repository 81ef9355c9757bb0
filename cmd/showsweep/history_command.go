package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var canonicalID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the action audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.db.GetActionRecords()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTITLE\tACTION\tMODE\tACTOR\tRESULT")
			for _, record := range records {
				if canonicalID != "" && record.CanonicalID != canonicalID {
					continue
				}
				mode := "real"
				if record.Simulated {
					mode = "simulated"
				}
				result := "ok"
				if record.Failure != "" {
					result = "failed: " + record.Failure
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					record.Timestamp.Format("2006-01-02 15:04:05"),
					record.Title,
					record.Action,
					mode,
					record.Actor,
					result,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&canonicalID, "show", "", "Only print records for this canonical show id")
	return cmd
}
