package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/allisson/notifier/internal/errors"
	"github.com/allisson/notifier/internal/notification/domain"
)

// Config holds the broker connection and topology settings.
type Config struct {
	URL                string
	ExchangeName       string
	QueueName          string
	RoutingPattern     string
	DeadLetterExchange string
	ConnectMaxRetries  int
	ConsumerTag        string
}

// Topology describes the declared exchange and queue.
type Topology struct {
	Exchange     string
	Queue        string
	DeadLetter   string
	MessageCount int
	Consumers    int
}

// Client owns one broker connection and one channel shared by every consumer and publisher call.
type Client struct {
	config     Config
	logger     *slog.Logger
	dial       dialer
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	conn   connection
	ch     channel
	closed bool
}

// NewClient creates a client. No connection is made until Connect.
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.RoutingPattern == "" {
		config.RoutingPattern = "task.*"
	}
	return &Client{
		config:     config,
		logger:     logger.With("component", "broker"),
		dial:       dialAMQP,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Connect dials the broker and opens a channel, retrying with exponential backoff.
// It fails with an error wrapping ErrConnection once the retries are exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.closed {
		return apperrors.Wrap(apperrors.ErrClosed, "broker client")
	}

	attempt := 0
	operation := func() error {
		attempt++
		conn, err := c.dial(c.config.URL)
		if err != nil {
			c.logger.Warn("broker connection attempt failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			return err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			c.logger.Warn("broker channel open failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			return err
		}
		c.conn = conn
		c.ch = ch
		return nil
	}

	var policy backoff.BackOff = c.newBackOff()
	if c.config.ConnectMaxRetries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(c.config.ConnectMaxRetries))
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("connect to broker after %d attempts: %w: %w", attempt, apperrors.ErrConnection, err)
	}

	c.logger.Info("connected to broker", slog.Int("attempts", attempt))
	return nil
}

func (c *Client) currentChannel() (channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotStarted, "broker channel")
	}
	return c.ch, nil
}

// DeclareTopology declares the durable topic exchange, the durable queue and their binding.
// When a dead-letter exchange is configured it is declared too, with a queue collecting
// rejected messages. Declaring an identical topology again is a no-op on the broker.
func (c *Client) DeclareTopology(ctx context.Context) (Topology, error) {
	ch, err := c.currentChannel()
	if err != nil {
		return Topology{}, err
	}
	return c.declare(ch)
}

func (c *Client) declare(ch channel) (Topology, error) {
	topology := Topology{Exchange: c.config.ExchangeName}

	var queueArgs amqp.Table
	if dlx := c.config.DeadLetterExchange; dlx != "" {
		deadQueue := c.config.QueueName + ".dead"
		if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return Topology{}, apperrors.Wrapf(err, "declare dead-letter exchange %s", dlx)
		}
		if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
			return Topology{}, apperrors.Wrapf(err, "declare dead-letter queue %s", deadQueue)
		}
		if err := ch.QueueBind(deadQueue, "", dlx, false, nil); err != nil {
			return Topology{}, apperrors.Wrapf(err, "bind dead-letter queue %s", deadQueue)
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": dlx}
		topology.DeadLetter = dlx
	}

	if err := ch.ExchangeDeclare(
		c.config.ExchangeName,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return Topology{}, apperrors.Wrapf(err, "declare exchange %s", c.config.ExchangeName)
	}

	queue, err := ch.QueueDeclare(c.config.QueueName, true, false, false, false, queueArgs)
	if err != nil {
		return Topology{}, apperrors.Wrapf(err, "declare queue %s", c.config.QueueName)
	}

	if err := ch.QueueBind(queue.Name, c.config.RoutingPattern, c.config.ExchangeName, false, nil); err != nil {
		return Topology{}, apperrors.Wrapf(err, "bind queue %s", queue.Name)
	}

	topology.Queue = queue.Name
	topology.MessageCount = queue.Messages
	topology.Consumers = queue.Consumers
	return topology, nil
}

// Subscribe sets the prefetch window and starts consuming the queue with manual acknowledgement.
// The subscription survives connection loss by reconnecting and redeclaring the topology.
func (c *Client) Subscribe(ctx context.Context, prefetch int) (Subscription, error) {
	ch, err := c.currentChannel()
	if err != nil {
		return nil, err
	}

	tag := c.config.ConsumerTag
	if tag == "" {
		tag = "notifier-" + c.config.QueueName
	}

	deliveries, err := c.consume(ch, prefetch, tag)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(ctx, c, prefetch, tag)
	go sub.forward(deliveries)
	return sub, nil
}

func (c *Client) consume(ch channel, prefetch int, tag string) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, apperrors.Wrapf(err, "set prefetch %d", prefetch)
	}
	deliveries, err := ch.Consume(
		c.config.QueueName,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, apperrors.Wrapf(err, "consume queue %s", c.config.QueueName)
	}
	return deliveries, nil
}

// resubscribe replaces a lost connection and resumes consuming.
func (c *Client) resubscribe(ctx context.Context, prefetch int, tag string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	if _, err := c.declare(c.ch); err != nil {
		return nil, err
	}
	return c.consume(c.ch, prefetch, tag)
}

func (c *Client) cancel(tag string) error {
	ch, err := c.currentChannel()
	if err != nil {
		return nil
	}
	if err := ch.Cancel(tag, false); err != nil {
		return apperrors.Wrapf(err, "cancel consumer %s", tag)
	}
	return nil
}

// Publish sends an event to the exchange as a persistent message routed by its type.
// A closed connection is re-established first.
func (c *Client) Publish(ctx context.Context, event domain.Event) error {
	body, err := event.Encode()
	if err != nil {
		return apperrors.Wrapf(err, "encode event %s", event.ID)
	}

	ch, err := c.ensureChannel(ctx)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, c.config.ExchangeName, string(event.Type), false, false, msg); err != nil {
		return apperrors.Wrapf(err, "publish event %s", event.ID)
	}

	c.logger.Debug("event published",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
	)
	return nil
}

func (c *Client) ensureChannel(ctx context.Context) (channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.ch != nil {
		return c.ch, nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.ch = nil, nil

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	if _, err := c.declare(c.ch); err != nil {
		return nil, err
	}
	return c.ch, nil
}

// CloseChannel closes the shared channel. Closing an unopened channel is a no-op.
func (c *Client) CloseChannel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return nil
	}
	err := c.ch.Close()
	c.ch = nil
	if err != nil && !apperrors.Is(err, amqp.ErrClosed) {
		return apperrors.Wrap(err, "close broker channel")
	}
	return nil
}

// CloseConnection closes the broker connection. Closing an unopened connection is a no-op.
// The client cannot connect again afterwards.
func (c *Client) CloseConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !apperrors.Is(err, amqp.ErrClosed) {
		return apperrors.Wrap(err, "close broker connection")
	}
	return nil
}

// Close closes the channel then the connection, attempting both.
func (c *Client) Close() error {
	return apperrors.Join(c.CloseChannel(), c.CloseConnection())
}
