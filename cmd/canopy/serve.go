package main

import (
	"context"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the bot behind an HTTP API: events are posted to /events, sessions
are administered under /sessions and outbound calls are streamed over
WebSocket at /sessions/{id}/stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		if err := cli.RunServe(sigCtx, cfg, logger); err != nil {
			return err
		}
		if sig := sigCtx.Signal(); sig != nil {
			logger.Info("canopy server stopped gracefully", "signal", sig.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides the config)")
}
