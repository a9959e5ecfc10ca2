package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mediasvc/internal/config"
	"mediasvc/internal/logging"
	"mediasvc/internal/observability"
	"mediasvc/internal/server/app"
	serverHTTP "mediasvc/internal/server/http"
	"mediasvc/internal/utils/id"
)

const defaultShutdownTimeout = 10 * time.Second

// NewMediaService opens the configured store and wires the media service on top of it.
func NewMediaService(ctx context.Context, cfg config.Config, obs *observability.Observability, logger logging.Logger) (*app.MediaService, func(), error) {
	strategy, err := id.ParseStrategy(cfg.Media.IDStrategy)
	if err != nil {
		return nil, nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	store, cleanup, err := BuildStore(openCtx, cfg.Storage, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, err
	}

	service, err := app.NewMediaService(store, MediaConfig(cfg),
		app.WithIDGenerator(id.NewGenerator(strategy)),
		app.WithLogger(logger),
		app.WithObservability(obs),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return service, cleanup, nil
}

// RunServer starts the HTTP API server and blocks until a shutdown signal is received.
func RunServer(cfg config.Config) error {
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting media server...")

	obs, cleanupObs := InitObservability(cfg, logger)
	defer cleanupObs()

	LogServerConfiguration(logger, cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	service, cleanupStore, err := NewMediaService(ctx, cfg, obs, logging.ForService(obs, "MediaService"))
	if err != nil {
		return fmt.Errorf("build media service: %w", err)
	}
	defer cleanupStore()

	if retention := cfg.Storage.Retention(); retention > 0 {
		janitor := &app.Janitor{
			Service:  service,
			MaxAge:   retention,
			Interval: cfg.Storage.SweepInterval,
			Logger:   logging.ForService(obs, "Retention"),
		}
		go janitor.Run(ctx)
		logger.Info("Retention janitor started (max age %s)", retention)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           serverHTTP.NewRouter(service, RouterConfig(cfg), obs),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return serveUntilSignal(server, cfg.Server.ShutdownTimeout, logger)
}

func serveUntilSignal(server *http.Server, shutdownTimeout time.Duration, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := server.Shutdown(ctx)

		serveErr := <-errCh
		if serveErr == http.ErrServerClosed {
			serveErr = nil
		}

		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}

		logger.Info("Server stopped")
		return nil
	}
}
