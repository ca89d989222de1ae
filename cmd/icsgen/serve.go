package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"icsgen/internal/archive"
	appLog "icsgen/internal/log"
	"icsgen/internal/web"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the invite form and JSON API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// CLI --listen overrides config file listen if provided.
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		svc, err := newService(cfg)
		if err != nil {
			return err
		}

		// Root context with cancellation on SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Archive.Enabled() {
			sweeper, err := archive.NewSweeper(cfg.Archive.Dir, cfg.Archive.Sweep, cfg.Archive.MaxAge)
			if err != nil {
				return err
			}
			if err := sweeper.Start(); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				sweeper.Stop(stopCtx)
			}()
		}

		appLog.Info("icsgen starting", "version", version)
		if err := web.ListenAndServe(ctx, cfg, svc); err != nil {
			appLog.Error("HTTP server failed", err, "listen", cfg.Listen)
			return err
		}
		appLog.Info("icsgen exiting")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "HTTP listen address (overrides config)")
}
