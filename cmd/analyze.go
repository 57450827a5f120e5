package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/config"
	"github.com/fakeyudi/eyetrial/internal/feature"
	"github.com/fakeyudi/eyetrial/internal/logging"
	"github.com/fakeyudi/eyetrial/internal/report"
	"github.com/fakeyudi/eyetrial/internal/runner"
	"github.com/fakeyudi/eyetrial/internal/store"
)

var (
	analyzeFormat  string
	analyzeWorkers int
	analyzeStore   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [TASK...]",
	Short: "Analyze every recording of the given tasks (default: all configured)",
	Example: `  eyetrial analyze
  eyetrial analyze MGS --format json
  eyetrial analyze VGS GAP --workers 4 --store`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := analyzeOptions{Format: analyzeFormat, Store: analyzeStore}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = analyzeWorkers
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		tasks := args
		if len(tasks) == 0 {
			tasks = cfg.Tasks
		}
		return analyzeTasks(cmd.Context(), cmd.OutOrStdout(), cfg, tasks, opts)
	},
}

type analyzeOptions struct {
	Format string
	Store  bool
}

// analyzeTasks runs each task in turn, writes its outputs and optionally
// records the run in the store. The first failing task aborts the rest.
func analyzeTasks(ctx context.Context, out io.Writer, c config.Config, tasks []string, opts analyzeOptions) error {
	kinds := make([]feature.TaskKind, 0, len(tasks))
	for _, t := range tasks {
		k, err := feature.ParseTaskKind(t)
		if err != nil {
			return fmt.Errorf("unknown task %q (want one of %s)", t, strings.Join(taskNames(), ", "))
		}
		kinds = append(kinds, k)
	}

	renderer, err := report.RendererFor(opts.Format)
	if err != nil {
		return err
	}

	var db *store.Store
	if opts.Store {
		db, err = store.Open(c.DBPath)
		if err != nil {
			return fmt.Errorf("opening result store: %w", err)
		}
		defer db.Close()
	}

	r := runner.New(runner.Options{
		BaseDir: c.BaseDir,
		Pattern: c.Pattern,
		Display: c.Display(),
		Workers: c.Workers,
	})

	for _, kind := range kinds {
		started := time.Now()
		res, err := r.Run(ctx, kind)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", kind, err)
		}
		finished := time.Now()

		paths, err := report.WriteResult(c.OutputDir, res, renderer)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d file(s), %d row(s), %d failed trial(s)\n",
			kind, res.Files, len(res.Rows), len(res.Failures))
		fmt.Fprintf(out, "  wrote %s\n  wrote %s\n", paths.Table, paths.FailureLog)
		if len(res.Skipped) > 0 {
			fmt.Fprintf(out, "  skipped %d file(s) outside <task>/<group>/<subject>/\n", len(res.Skipped))
		}

		if db != nil {
			run, err := db.SaveRun(ctx, c.BaseDir, res, started, finished)
			if err != nil {
				return fmt.Errorf("storing %s run: %w", kind, err)
			}
			logging.From(ctx).Info("run stored", "task", kind, "run_id", run.ID)
			fmt.Fprintf(out, "  stored run %s\n", run.ID)
		}
	}
	return nil
}

func taskNames() []string {
	names := make([]string, len(feature.AllTasks))
	for i, k := range feature.AllTasks {
		names[i] = k.String()
	}
	return names
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "csv", "table format: csv or json")
	analyzeCmd.Flags().IntVarP(&analyzeWorkers, "workers", "w", 1, "recordings processed in parallel")
	analyzeCmd.Flags().BoolVar(&analyzeStore, "store", false, "also record the run in the SQLite store")
	rootCmd.AddCommand(analyzeCmd)
}
