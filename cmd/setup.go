package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/config"
	"github.com/fakeyudi/eyetrial/internal/profile"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Record the display setup in the global config (re-run anytime to edit)",
	// Bypass the normal PersistentPreRunE so setup works with a broken config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		existing := config.Defaults()
		if global, err := config.LoadGlobal(); err == nil {
			existing = config.Merge(global, nil)
		}

		c, err := profile.RunSetup(cmd.InOrStdin(), cmd.OutOrStdout(), existing)
		if err != nil {
			return fmt.Errorf("setup cancelled: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}

		path, err := config.SaveGlobal(c)
		if err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Saved %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Run 'eyetrial analyze' to process your recordings.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
