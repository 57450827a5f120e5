package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/eyetrial/internal/api"
	"github.com/fakeyudi/eyetrial/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over HTTP as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ListenAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening result store: %w", err)
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", cfg.DBPath, addr)
		return api.Serve(ctx, addr, api.NewRouter(&api.App{Store: db}))
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}
