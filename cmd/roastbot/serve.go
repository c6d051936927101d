package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"roastbot/internal/adapters/httpapi"
	"roastbot/internal/config"
	"roastbot/internal/logging"
	"roastbot/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	cleanup, err := telemetry.Init(ctx, "roastbot", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown otel")
		}
	}()

	a, err := build(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer a.close()

	opts := httpapi.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		RunRateLimit:   cfg.RunRateLimit,
		Metrics:        a.metrics.Handler(),
		Logger:         logger,
	}
	if cfg.ArtifactBackend == config.BackendLocal {
		opts.ArtifactDir = cfg.ArtifactDir
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.Router(a.orch, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("starting roastbot")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	if err := a.orch.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown runs")
	}
	logger.Info().Msg("roastbot stopped")
	return nil
}
