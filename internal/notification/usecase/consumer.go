package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/allisson/notifier/internal/broker"
	apperrors "github.com/allisson/notifier/internal/errors"
	"github.com/allisson/notifier/internal/metrics"
	"github.com/allisson/notifier/internal/notification/domain"
)

// invalidEventType labels metrics of messages that could not be decoded.
const invalidEventType = "invalid"

// bookkeepingTimeout bounds the status writes of a failed message, which run even
// after the message context was cancelled by Stop.
const bookkeepingTimeout = 5 * time.Second

// ConsumerConfig tunes message processing.
type ConsumerConfig struct {
	// PrefetchCount bounds both unacknowledged deliveries and concurrent handlers.
	PrefetchCount int
	// MaxDeliveryAttempts is the number of failed attempts after which a message is
	// rejected without requeue. Zero requeues forever.
	MaxDeliveryAttempts int
	RequeueBaseDelay    time.Duration
	RequeueMaxDelay     time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight messages.
	ShutdownTimeout time.Duration
}

// Consumer receives task events, deduplicates them by event id, dispatches them and
// acknowledges each message only once its side effect succeeded.
type Consumer struct {
	store      StatusRepository
	broker     Broker
	dispatcher Dispatcher
	metrics    metrics.NotificationMetrics
	config     ConsumerConfig
	logger     *slog.Logger

	// randomization spreads requeue delays around each exponential step.
	randomization float64

	mu       sync.Mutex
	sub      broker.Subscription
	sem      *semaphore.Weighted
	procCtx  context.Context
	cancel   context.CancelFunc
	stopping bool
	done     chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
	ready    atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// NewConsumer creates a consumer. Nothing is connected until Start.
func NewConsumer(
	store StatusRepository,
	brk Broker,
	dispatcher Dispatcher,
	m metrics.NotificationMetrics,
	config ConsumerConfig,
	logger *slog.Logger,
) *Consumer {
	if config.PrefetchCount <= 0 {
		config.PrefetchCount = 10
	}
	return &Consumer{
		store:      store,
		broker:     brk,
		dispatcher: dispatcher,
		metrics:    m,
		config:     config,
		logger:     logger.With("component", "consumer"),
		sem:        semaphore.NewWeighted(int64(config.PrefetchCount)),
		done:       make(chan struct{}),

		randomization: requeueRandomization,
	}
}

// Start verifies the status store, connects to the broker, declares the topology and
// subscribes to the queue. Any failure is fatal; call Stop to release what was opened.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting notification consumer")

	if err := c.store.Ping(ctx); err != nil {
		c.logger.Error("failed to connect to status store", slog.Any("error", err))
		return apperrors.Wrap(err, "start consumer")
	}
	c.logger.Info("connected to status store")

	if err := c.broker.Connect(ctx); err != nil {
		c.logger.Error("failed to connect to broker", slog.Any("error", err))
		return apperrors.Wrap(err, "start consumer")
	}

	topology, err := c.broker.DeclareTopology(ctx)
	if err != nil {
		c.logger.Error("failed to declare broker topology", slog.Any("error", err))
		return apperrors.Wrap(err, "start consumer")
	}
	c.logger.Info("broker topology declared",
		slog.String("exchange", topology.Exchange),
		slog.String("queue", topology.Queue),
		slog.String("dead_letter_exchange", topology.DeadLetter),
		slog.Int("queued_messages", topology.MessageCount),
	)

	sub, err := c.broker.Subscribe(ctx, c.config.PrefetchCount)
	if err != nil {
		c.logger.Error("failed to subscribe to queue", slog.Any("error", err))
		return apperrors.Wrap(err, "start consumer")
	}

	c.mu.Lock()
	c.sub = sub
	// in-flight messages outlive the caller's context and are cancelled by Stop
	c.procCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Unlock()
	c.ready.Store(true)

	c.logger.Info("notification consumer started and listening for messages",
		slog.Int("prefetch", c.config.PrefetchCount),
	)
	return nil
}

// Run processes deliveries until ctx is cancelled or the delivery stream ends.
// Each message is handled in its own goroutine, at most PrefetchCount at a time.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	sub, procCtx := c.sub, c.procCtx
	c.mu.Unlock()
	if sub == nil {
		return apperrors.Wrap(apperrors.ErrNotStarted, "consumer")
	}

	deliveries := sub.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.ready.Store(false)
				if c.isStopping() {
					return nil
				}
				err := apperrors.Wrap(apperrors.ErrConnection, "delivery stream closed")
				if subErr := sub.Err(); subErr != nil {
					err = apperrors.Join(err, subErr)
				}
				return err
			}
			if !c.track(ctx, d) {
				// requeued for another consumer
				_ = d.Nack(true)
				return nil
			}
			go func() {
				defer c.untrack(procCtx)
				_ = c.HandleDelivery(procCtx, d)
			}()
		}
	}
}

// track reserves a processing slot for d. It reports false when the consumer is shutting down.
func (c *Consumer) track(ctx context.Context, d broker.Delivery) bool {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		c.sem.Release(1)
		return false
	}
	c.wg.Add(1)
	c.inFlight.Add(1)
	c.metrics.AddInFlight(ctx, 1)
	return true
}

func (c *Consumer) untrack(ctx context.Context) {
	c.metrics.AddInFlight(ctx, -1)
	c.inFlight.Add(-1)
	c.sem.Release(1)
	c.wg.Done()
}

// HandleDelivery runs the per-message pipeline: decode, dedup check, mark pending,
// dispatch, then mark processed and ack, or mark failed and reject.
// It returns the processing error, if any, after the message has been rejected.
func (c *Consumer) HandleDelivery(ctx context.Context, d broker.Delivery) error {
	start := time.Now()

	event, err := domain.DecodeEvent(d.Body())
	if err != nil {
		c.logger.Error("failed to decode event",
			slog.String("message_id", d.MessageID()),
			slog.Any("error", err),
		)
		c.metrics.RecordEvent(ctx, invalidEventType, metrics.OutcomeDecodeError)
		return c.reject(ctx, d, attemptKey(d, nil), invalidEventType, err)
	}

	eventType := string(event.Type)
	logger := c.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", eventType),
	)

	if status, ok := c.store.Get(ctx, event.ID); ok && status == domain.NotificationStatusProcessed {
		logger.Info("event already processed, skipping")
		c.metrics.RecordEvent(ctx, eventType, metrics.OutcomeDuplicate)
		if err := d.Ack(); err != nil {
			logger.Error("failed to ack duplicate event", slog.Any("error", err))
			return apperrors.Wrapf(err, "ack event %s", event.ID)
		}
		return nil
	}

	c.store.Set(ctx, event.ID, domain.NotificationStatusPending)
	logger.Info("processing event",
		slog.String("task_id", event.TaskID.String()),
		slog.String("user_id", event.UserID.String()),
		slog.Bool("redelivered", d.Redelivered()),
	)

	if err := c.dispatcher.Dispatch(ctx, event); err != nil {
		logger.Error("failed to process event", slog.Any("error", err))
		bctx, cancel := bookkeepingContext(ctx)
		defer cancel()
		c.store.Set(bctx, event.ID, domain.NotificationStatusFailed)
		c.metrics.RecordEvent(ctx, eventType, metrics.OutcomeFailed)
		c.metrics.RecordDuration(ctx, eventType, time.Since(start), metrics.OutcomeFailed)
		return c.reject(ctx, d, attemptKey(d, &event), eventType, err)
	}

	c.store.Set(ctx, event.ID, domain.NotificationStatusProcessed)
	if err := d.Ack(); err != nil {
		// the broker redelivers and the processed status absorbs the duplicate
		logger.Error("failed to ack event", slog.Any("error", err))
		return apperrors.Wrapf(err, "ack event %s", event.ID)
	}

	c.metrics.RecordEvent(ctx, eventType, metrics.OutcomeProcessed)
	c.metrics.RecordDuration(ctx, eventType, time.Since(start), metrics.OutcomeProcessed)
	logger.Info("successfully processed event")
	return nil
}

// reject returns a failed message to the broker. Below the attempt limit it is requeued
// after a backoff; at the limit it is rejected without requeue, which dead-letters it
// when the queue has a dead-letter exchange.
func (c *Consumer) reject(ctx context.Context, d broker.Delivery, key, eventType string, cause error) error {
	bctx, cancel := bookkeepingContext(ctx)
	attempts := c.store.IncrAttempts(bctx, key)
	cancel()

	if limit := c.config.MaxDeliveryAttempts; limit > 0 && attempts >= int64(limit) {
		c.logger.Error("message exceeded delivery attempts, rejecting",
			slog.String("attempt_key", key),
			slog.Int64("attempts", attempts),
			slog.Any("error", cause),
		)
		c.metrics.RecordEvent(ctx, eventType, metrics.OutcomeDeadLettered)
		if err := d.Nack(false); err != nil {
			return apperrors.Join(cause, apperrors.Wrap(err, "reject message"))
		}
		return cause
	}

	delay := requeueDelay(attempts, c.config.RequeueBaseDelay, c.config.RequeueMaxDelay, c.randomization)
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		case <-c.done:
			timer.Stop()
		}
	}

	if err := d.Nack(true); err != nil {
		return apperrors.Join(cause, apperrors.Wrap(err, "requeue message"))
	}
	return cause
}

// bookkeepingContext detaches ctx from cancellation so a failed message is still
// recorded as failed and counted when Stop cuts its processing short.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// attemptKey identifies a message across redeliveries.
func attemptKey(d broker.Delivery, event *domain.Event) string {
	if event != nil {
		return event.ID.String()
	}
	if id := d.MessageID(); id != "" {
		return id
	}
	sum := sha256.Sum256(d.Body())
	return hex.EncodeToString(sum[:])
}

// Stop cancels the subscription, waits for in-flight messages up to ShutdownTimeout
// (or ctx), then closes the broker channel, the broker connection and the status store.
// Every step is attempted and their errors are joined. Stop is safe to call more than once.
func (c *Consumer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stop(ctx)
	})
	return c.stopErr
}

func (c *Consumer) stop(ctx context.Context) error {
	c.logger.Info("stopping notification consumer")
	c.ready.Store(false)

	c.mu.Lock()
	c.stopping = true
	sub, cancel := c.sub, c.cancel
	c.mu.Unlock()
	close(c.done)

	var errs []error
	if sub != nil {
		if err := sub.Cancel(); err != nil {
			errs = append(errs, apperrors.Wrap(err, "cancel subscription"))
		}
	}

	inFlight := c.waitInFlight()
	if err := c.drain(ctx, inFlight); err != nil {
		errs = append(errs, err)
	}
	if cancel != nil {
		cancel()
	}

	// cancelled handlers still record their failure before the store is closed
	bookkeeping := time.NewTimer(bookkeepingTimeout)
	select {
	case <-inFlight:
	case <-bookkeeping.C:
		c.logger.Warn("in-flight messages did not finish after cancellation",
			slog.Int64("in_flight", c.inFlight.Load()),
		)
	}
	bookkeeping.Stop()

	if err := c.broker.CloseChannel(); err != nil {
		errs = append(errs, err)
	}
	if err := c.broker.CloseConnection(); err != nil {
		errs = append(errs, err)
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}

	err := apperrors.Join(errs...)
	if err != nil {
		c.logger.Error("notification consumer stopped with errors", slog.Any("error", err))
		return err
	}
	c.logger.Info("notification consumer stopped")
	return nil
}

// waitInFlight returns a channel closed once every tracked message has finished.
func (c *Consumer) waitInFlight() <-chan struct{} {
	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()
	return drained
}

func (c *Consumer) drain(ctx context.Context, drained <-chan struct{}) error {
	if c.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ShutdownTimeout)
		defer cancel()
	}

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return apperrors.Wrapf(ctx.Err(), "drain %d in-flight messages", c.inFlight.Load())
	}
}

func (c *Consumer) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// Ready reports whether the consumer is subscribed, not stopping and not
// waiting for the broker connection to come back.
func (c *Consumer) Ready() bool {
	if !c.ready.Load() {
		return false
	}
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	return sub == nil || !sub.Reconnecting()
}

// InFlight returns the number of messages currently being processed.
func (c *Consumer) InFlight() int64 {
	return c.inFlight.Load()
}
