// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/notifier/internal/broker"
	"github.com/allisson/notifier/internal/config"
	"github.com/allisson/notifier/internal/http"
	"github.com/allisson/notifier/internal/metrics"
	"github.com/allisson/notifier/internal/notification/repository"
	"github.com/allisson/notifier/internal/notification/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger       *slog.Logger
	redisClient  *redis.Client
	brokerClient *broker.Client

	// Repositories
	statusRepo *repository.RedisStatusRepository

	// Metrics
	metricsProvider     *metrics.Provider
	notificationMetrics metrics.NotificationMetrics

	// Use Cases
	dispatcher usecase.Dispatcher
	consumer   *usecase.Consumer

	// Servers
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                      sync.Mutex
	loggerInit              sync.Once
	redisClientInit         sync.Once
	brokerClientInit        sync.Once
	statusRepoInit          sync.Once
	metricsProviderInit     sync.Once
	notificationMetricsInit sync.Once
	dispatcherInit          sync.Once
	consumerInit            sync.Once
	metricsServerInit       sync.Once
	initErrors              map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// storedError returns the error recorded for a component that failed to initialize.
func (c *Container) storedError(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErrors[name]
}

func (c *Container) storeError(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initErrors[name] = err
}

// RedisClient returns the status store client. It does not connect until first use.
func (c *Container) RedisClient() (*redis.Client, error) {
	c.redisClientInit.Do(func() {
		client, err := repository.NewClient(c.config.RedisURL)
		if err != nil {
			c.storeError("redisClient", fmt.Errorf("failed to create redis client: %w", err))
			return
		}
		c.redisClient = client
	})
	if err := c.storedError("redisClient"); err != nil {
		return nil, err
	}
	return c.redisClient, nil
}

// StatusRepository returns the notification status repository.
func (c *Container) StatusRepository() (*repository.RedisStatusRepository, error) {
	c.statusRepoInit.Do(func() {
		client, err := c.RedisClient()
		if err != nil {
			c.storeError("statusRepo", fmt.Errorf("failed to get redis client for status repository: %w", err))
			return
		}
		c.statusRepo = repository.NewRedisStatusRepository(client, c.config.StatusTTL, c.Logger())
	})
	if err := c.storedError("statusRepo"); err != nil {
		return nil, err
	}
	return c.statusRepo, nil
}

// BrokerClient returns the broker client. It does not connect until Connect or Publish.
func (c *Container) BrokerClient() *broker.Client {
	c.brokerClientInit.Do(func() {
		c.brokerClient = broker.NewClient(broker.Config{
			URL:                c.config.RabbitMQURL,
			ExchangeName:       c.config.ExchangeName,
			QueueName:          c.config.QueueName,
			RoutingPattern:     c.config.RoutingPattern,
			DeadLetterExchange: c.config.DeadLetterExchange,
			ConnectMaxRetries:  c.config.BrokerConnectMaxRetries,
		}, c.Logger())
	})
	return c.brokerClient
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	c.metricsProviderInit.Do(func() {
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.storeError("metricsProvider", fmt.Errorf("failed to create metrics provider: %w", err))
			return
		}
		c.metricsProvider = provider
	})
	if err := c.storedError("metricsProvider"); err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// NotificationMetrics returns the notification metrics recorder.
// A no-op recorder is returned when metrics are disabled.
func (c *Container) NotificationMetrics() (metrics.NotificationMetrics, error) {
	c.notificationMetricsInit.Do(func() {
		value, err := c.initNotificationMetrics()
		if err != nil {
			c.storeError("notificationMetrics", err)
			return
		}
		c.notificationMetrics = value
	})
	if err := c.storedError("notificationMetrics"); err != nil {
		return nil, err
	}
	return c.notificationMetrics, nil
}

// Dispatcher returns the event dispatcher wired with the notification handlers.
func (c *Container) Dispatcher() (usecase.Dispatcher, error) {
	c.dispatcherInit.Do(func() {
		value, err := c.initDispatcher()
		if err != nil {
			c.storeError("dispatcher", err)
			return
		}
		c.dispatcher = value
	})
	if err := c.storedError("dispatcher"); err != nil {
		return nil, err
	}
	return c.dispatcher, nil
}

// Consumer returns the notification consumer.
func (c *Container) Consumer() (*usecase.Consumer, error) {
	c.consumerInit.Do(func() {
		value, err := c.initConsumer()
		if err != nil {
			c.storeError("consumer", err)
			return
		}
		c.consumer = value
	})
	if err := c.storedError("consumer"); err != nil {
		return nil, err
	}
	return c.consumer, nil
}

// MetricsServer returns the HTTP server exposing metrics and health checks.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		value, err := c.initMetricsServer()
		if err != nil {
			c.storeError("metricsServer", err)
			return
		}
		c.metricsServer = value
	})
	if err := c.storedError("metricsServer"); err != nil {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// The consumer owns the broker and status store when it was created; its Stop closes them.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.consumer != nil {
		if err := c.consumer.Stop(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("consumer stop: %w", err))
		}
	} else {
		if c.brokerClient != nil {
			if err := c.brokerClient.Close(); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("broker close: %w", err))
			}
		}
		if c.statusRepo != nil {
			if err := c.statusRepo.Close(); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("status store close: %w", err))
			}
		} else if c.redisClient != nil {
			if err := c.redisClient.Close(); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
			}
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initNotificationMetrics creates the notification metrics recorder.
func (c *Container) initNotificationMetrics() (metrics.NotificationMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for notification metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpNotificationMetrics(), nil
	}

	notificationMetrics, err := metrics.NewNotificationMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}
	return notificationMetrics, nil
}

// initDispatcher creates the dispatcher with the log notifier handlers, rate limiter and metrics.
func (c *Container) initDispatcher() (usecase.Dispatcher, error) {
	logger := c.Logger()

	handlers := usecase.NewNotificationHandlers(usecase.NewLogNotifier(logger))
	baseDispatcher := usecase.NewEventDispatcher(
		handlers.Map(),
		usecase.NewRateLimiter(c.config.DispatchRateLimit),
		logger,
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		notificationMetrics, err := c.NotificationMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get notification metrics for dispatcher: %w", err)
		}
		return usecase.NewDispatcherWithMetrics(baseDispatcher, notificationMetrics), nil
	}

	return baseDispatcher, nil
}

// initConsumer creates the consumer with all its dependencies.
func (c *Container) initConsumer() (*usecase.Consumer, error) {
	statusRepo, err := c.StatusRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get status repository for consumer: %w", err)
	}

	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for consumer: %w", err)
	}

	notificationMetrics, err := c.NotificationMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get notification metrics for consumer: %w", err)
	}

	consumerConfig := usecase.ConsumerConfig{
		PrefetchCount:       c.config.PrefetchCount,
		MaxDeliveryAttempts: c.config.MaxDeliveryAttempts,
		RequeueBaseDelay:    c.config.RequeueBaseDelay,
		RequeueMaxDelay:     c.config.RequeueMaxDelay,
		ShutdownTimeout:     c.config.ShutdownTimeout,
	}

	return usecase.NewConsumer(
		statusRepo,
		c.BrokerClient(),
		dispatcher,
		notificationMetrics,
		consumerConfig,
		c.Logger(),
	), nil
}

// initMetricsServer creates the metrics server, reporting readiness from the consumer.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	consumer, err := c.Consumer()
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer for metrics server: %w", err)
	}

	return http.NewMetricsServer(
		c.config.MetricsHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
		consumer,
	), nil
}
