package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"simkyc/internal/platform/config"
	"simkyc/internal/platform/httpserver"
	"simkyc/internal/platform/logger"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log)
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.sweeper != nil {
		if err := app.sweeper.Start(); err != nil {
			return err
		}
		log.Info("sweeper started", "schedule", cfg.Sweeper.Schedule)
	}

	srv := httpserver.New(cfg.Server, app.router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting simkyc", "addr", cfg.Server.Addr, "storage", app.storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if app.sweeper != nil {
		select {
		case <-app.sweeper.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
