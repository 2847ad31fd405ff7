package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/llm-reliability/internal/scheduler"
	"github.com/tjfontaine/llm-reliability/internal/server"
	"github.com/tjfontaine/llm-reliability/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture API and the drift detection scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			shutdownTracer, err := telemetry.Init("llm-reliability", rt.cfg.Telemetry, rt.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					rt.logger.Error("tracer shutdown failed", "error", err)
				}
			}()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if rt.cfg.Drift.Enabled && len(rt.cfg.Monitor.Applications) > 0 {
				worker := scheduler.NewWorker(rt.detector, rt.store,
					rt.cfg.Monitor.Applications, rt.cfg.Drift.DetectionInterval,
					scheduler.WithLogger(rt.logger),
					scheduler.WithPublishers(rt.publisher),
					scheduler.WithStats(rt.store),
				)
				worker.Start(ctx)
				defer worker.Close()
				rt.logger.Info("drift scheduler started",
					"applications", rt.cfg.Monitor.Applications,
					"interval", rt.cfg.Drift.DetectionInterval,
				)
			}

			api := &server.API{
				Store:    rt.store,
				Engine:   rt.validator,
				Detector: rt.detector,
				Registry: rt.registry,
				Logger:   rt.logger,
			}
			srv := server.New(rt.cfg.Server.Port, rt.logger, api)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				rt.logger.Info("shutting down", "signal", sig.String())
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	return cmd
}
