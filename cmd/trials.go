package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/feature"
	"github.com/fakeyudi/eyetrial/internal/gaze"
	"github.com/fakeyudi/eyetrial/internal/trial"
)

var trialsJSON bool

var trialsCmd = &cobra.Command{
	Use:   "trials <file>",
	Short: "Segment one recording and list its trials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}
		defer f.Close()

		trials, err := trial.Segment(f, cfg.Display())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if trialsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(trials)
		}

		if len(trials) == 0 {
			fmt.Fprintln(out, "no complete trials found")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tLINES\tSAMPLES\tDURATION(s)\tOUTCOME")
		for i, tr := range trials {
			outcome, err := feature.Outcome(tr.Lines)
			if err != nil {
				outcome = "-"
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%.3f\t%s\n",
				i+1, len(tr.Lines), len(tr.Samples), gaze.Duration(tr.Samples), outcome)
		}
		return tw.Flush()
	},
}

func init() {
	trialsCmd.Flags().BoolVar(&trialsJSON, "json", false, "print trials with their lines and samples as JSON")
	rootCmd.AddCommand(trialsCmd)
}
