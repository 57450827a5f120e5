package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/logging"
	"github.com/fakeyudi/eyetrial/internal/watch"
)

var (
	watchFormat   string
	watchStore    bool
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [TASK...]",
	Short: "Re-analyze tasks whenever their recordings change",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if len(names) == 0 {
			names = cfg.Tasks
		}
		tasks := make([]string, len(names))
		for i, t := range names {
			tasks[i] = strings.ToUpper(t)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cmd, tasks)
	},
}

func runWatch(ctx context.Context, cmd *cobra.Command, tasks []string) error {
	logger := logging.From(ctx)
	out := cmd.OutOrStdout()
	opts := analyzeOptions{Format: watchFormat, Store: watchStore}

	w, err := watch.New(cfg.BaseDir, cfg.Pattern, watchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := analyzeTasks(ctx, out, cfg, tasks, opts); err != nil {
		return err
	}
	fmt.Fprintf(out, "watching %s for changes (ctrl+c to stop)\n", cfg.BaseDir)

	return w.Run(ctx, func(ctx context.Context, paths []string) {
		var changed []string
		for _, t := range watch.Tasks(cfg.BaseDir, paths) {
			if slices.Contains(tasks, strings.ToUpper(t)) {
				changed = append(changed, strings.ToUpper(t))
			}
		}
		if len(changed) == 0 {
			return
		}
		logger.Info("recordings changed, re-analyzing", "tasks", changed, "files", len(paths))
		// one bad recording must not stop the watcher
		if err := analyzeTasks(ctx, out, cfg, changed, opts); err != nil {
			logger.Error("analysis failed", "tasks", changed, "error", err)
		}
	})
}

func init() {
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "csv", "table format: csv or json")
	watchCmd.Flags().BoolVar(&watchStore, "store", false, "record every run in the SQLite store")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-analyzing")
	rootCmd.AddCommand(watchCmd)
}
