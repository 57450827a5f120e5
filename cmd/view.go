package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/report"
	"github.com/fakeyudi/eyetrial/internal/runner"
	"github.com/fakeyudi/eyetrial/internal/store"
	"github.com/fakeyudi/eyetrial/internal/tui"
)

var (
	plainOutput bool
	viewRunID   string
)

var viewCmd = &cobra.Command{
	Use:   "view [file]",
	Short: "View an analysis result file or a stored run",
	Example: `  eyetrial view MGS_analyzed.csv
  eyetrial view --run 4f1c... --plain`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			res  *runner.Result
			name string
			err  error
		)
		switch {
		case viewRunID != "":
			res, err = loadStoredRun(cmd, viewRunID)
			name = "run " + viewRunID
		case len(args) == 1:
			res, err = loadResultFile(args[0])
			name = args[0]
		default:
			return fmt.Errorf("give a result file or --run <id>")
		}
		if err != nil {
			return err
		}

		if plainOutput || !term.IsTerminal(os.Stdout.Fd()) {
			report.WriteSummary(cmd.OutOrStdout(), res)
			return nil
		}
		return tui.Run(res, name)
	},
}

// loadResultFile parses a CSV or JSON table. For CSV, failures come from the
// sibling <TASK>_bad_trials.txt when it exists.
func loadResultFile(path string) (*runner.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	res, err := report.ParserFor(ext).Parse(data)
	if err != nil {
		return nil, err
	}
	if ext == ".json" {
		return res, nil
	}

	task := strings.TrimSuffix(filepath.Base(path), "_analyzed"+filepath.Ext(path))
	if res.Task != "" {
		task = res.Task
	}
	logPath := filepath.Join(filepath.Dir(path), report.FailureLogFile(task))
	logData, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	failures, err := report.ParseFailureLog(logData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", logPath, err)
	}
	if res.Task == "" {
		res.Task = task
	}
	res.Failures = append(res.Failures, failures...)
	return res, nil
}

func loadStoredRun(cmd *cobra.Command, id string) (*runner.Result, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	defer db.Close()

	_, res, err := db.LoadRun(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	viewCmd.Flags().StringVar(&viewRunID, "run", "", "view a stored run by ID instead of a file")
	rootCmd.AddCommand(viewCmd)
}
