package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/notifier/internal/app"
	"github.com/allisson/notifier/internal/config"
)

// shutdownGrace is added to the drain timeout so the consumer reports its own timeout first.
const shutdownGrace = 5 * time.Second

type consumerRunner interface {
	Start(ctx context.Context) error
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

type serverRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// RunConsumer starts the notification consumer and the metrics server with graceful shutdown support.
// Blocks until receiving SIGINT/SIGTERM, the delivery stream is lost or the metrics server fails.
// On shutdown, in-flight messages are drained within SHUTDOWN_TIMEOUT_SECONDS before the broker
// and status store connections are closed.
func RunConsumer(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting notifier", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	consumer, err := container.Consumer()
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return runConsumer(ctx, consumer, metricsServer, logger, cfg.ShutdownTimeout+shutdownGrace)
}

func runConsumer(
	ctx context.Context,
	consumer consumerRunner,
	server serverRunner,
	logger *slog.Logger,
	shutdownTimeout time.Duration,
) error {
	if err := consumer.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		return errors.Join(fmt.Errorf("failed to start consumer: %w", err), consumer.Stop(stopCtx))
	}

	serverErr := make(chan error, 1)
	if server != nil {
		go func() {
			if err := server.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- consumer.Run(ctx)
	}()

	var errs []error
	runDone := false

	// Wait for shutdown signal, consumer failure or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-runErr:
		runDone = true
		if err != nil {
			logger.Error("consumer error, initiating shutdown", slog.Any("error", err))
			errs = append(errs, fmt.Errorf("consumer error: %w", err))
		}
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		errs = append(errs, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if err := consumer.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("consumer stop: %w", err))
	}

	if !runDone {
		select {
		case err := <-runErr:
			if err != nil {
				errs = append(errs, fmt.Errorf("consumer error: %w", err))
			}
		case <-shutdownCtx.Done():
			errs = append(errs, fmt.Errorf("consumer did not return: %w", shutdownCtx.Err()))
		}
	}

	return errors.Join(errs...)
}
