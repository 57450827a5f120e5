package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/config"
	"github.com/fakeyudi/eyetrial/internal/logging"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

var (
	flagBaseDir   string
	flagOutputDir string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "eyetrial",
	Short: "Extract per-trial saccade features from EyeLink recordings",
	Long: `eyetrial segments EyeLink .asc recordings into trials and computes
outcome, latency, peak velocity, spatial accuracy and delay for every trial
of the VGS, MGS and GAP tasks.

Recordings are expected at <base>/<task>/<group>/<subject>/<file>.asc.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load and merge config files.
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, project)
		if err := config.ApplyEnv(&cfg); err != nil {
			return err
		}

		// Flags win over files and environment.
		flags := cmd.Flags()
		if flags.Changed("base-dir") {
			cfg.BaseDir = flagBaseDir
		}
		if flags.Changed("output-dir") {
			cfg.OutputDir = flagOutputDir
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(logging.With(ctx, logger))
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagBaseDir, "base-dir", "", "directory holding the <task>/<group>/<subject> tree")
	pf.StringVar(&flagOutputDir, "output-dir", "", "directory for result files")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
}
