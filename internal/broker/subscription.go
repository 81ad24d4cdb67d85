package broker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Subscription is an active consumer registration on the queue.
type Subscription interface {
	// Deliveries yields inbound messages. It is closed after Cancel, or when
	// the connection is lost and cannot be re-established.
	Deliveries() <-chan Delivery
	// Cancel stops the broker from sending further messages.
	Cancel() error
	// Err reports why Deliveries closed without Cancel, if it did.
	Err() error
	// Reconnecting reports whether the connection was lost and is being re-established.
	Reconnecting() bool
}

type subscription struct {
	client   *Client
	prefetch int
	tag      string
	out      chan Delivery

	ctx          context.Context
	stop         context.CancelFunc
	once         sync.Once
	mu           sync.Mutex
	err          error
	closed       chan struct{}
	reconnecting atomic.Bool
}

func newSubscription(ctx context.Context, client *Client, prefetch int, tag string) *subscription {
	subCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	return &subscription{
		client:   client,
		prefetch: prefetch,
		tag:      tag,
		out:      make(chan Delivery),
		ctx:      subCtx,
		stop:     stop,
		closed:   make(chan struct{}),
	}
}

func (s *subscription) Deliveries() <-chan Delivery {
	return s.out
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Reconnecting() bool {
	return s.reconnecting.Load()
}

// Cancel is safe to call more than once.
func (s *subscription) Cancel() error {
	var err error
	s.once.Do(func() {
		s.stop()
		err = s.client.cancel(s.tag)
	})
	return err
}

// forward relays broker deliveries until cancelled, reconnecting when the channel drops.
func (s *subscription) forward(deliveries <-chan amqp.Delivery) {
	defer close(s.closed)
	defer close(s.out)

	for {
		for d := range deliveries {
			select {
			case s.out <- delivery{d: d}:
			case <-s.ctx.Done():
				// unacked messages are requeued by the broker when the channel closes
				return
			}
		}

		if s.ctx.Err() != nil {
			return
		}

		s.client.logger.Warn("broker delivery channel closed, reconnecting",
			slog.String("consumer_tag", s.tag),
		)
		s.reconnecting.Store(true)
		next, err := s.client.resubscribe(s.ctx, s.prefetch, s.tag)
		s.reconnecting.Store(false)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.client.logger.Error("broker reconnect failed", slog.Any("error", err))
			return
		}
		s.client.logger.Info("broker subscription resumed", slog.String("consumer_tag", s.tag))
		deliveries = next
	}
}
