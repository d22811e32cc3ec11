package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"dzchess-analyzer/internal/config"
	"dzchess-analyzer/internal/handler"
	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/middleware"
	"dzchess-analyzer/internal/router"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job runner and the stale sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log := logging.For("server")
	log.Info().Str("env", cfg.App.Environment).Str("version", cfg.App.Version).Msg("starting")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	a.runner.Start()

	var sweeper handler.Sweeper
	if cfg.Sweep.Enabled {
		if err := a.sweep.Start(); err != nil {
			log.Warn().Err(err).Msg("sweep not started")
		}
		sweeper = a.sweep
	}

	r := router.New(router.Config{
		Handler: handler.New(cfg.App.Name, cfg.App.Version,
			handler.Dependency{Name: "store", Pinger: a.store},
			handler.Dependency{Name: "jobs", Pinger: a.jobStore},
		),
		JobHandler:      handler.NewJobHandler(a.runner),
		PlayerHandler:   handler.NewPlayerHandler(a.reporter),
		AdminHandler:    handler.NewAdminHandler(a.store, sweeper, a.store.Dialect()),
		AuthMiddleware:  middleware.NewAuthMiddleware(cfg.App.APIKeys),
		SubmitRateLimit: cfg.Server.SubmitRateLimit,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server error")
	}

	ctx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	// stop taking requests before the runner drains
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	if err := a.close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("close")
	}

	log.Info().Msg("server stopped")
	return serveErr
}
