package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded with --store",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening result store: %w", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "no stored runs")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTASK\tSTARTED\tFILES\tROWS\tFAILURES")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
				r.ID, r.Task, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Files, r.RowCount, r.FailureCount)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
