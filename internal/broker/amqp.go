// Package broker wraps a RabbitMQ connection for the task event topology:
// connecting with retries, declaring the exchange and queue, consuming with
// manual acknowledgement and publishing events.
package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// connection is the subset of *amqp.Connection the client uses.
type connection interface {
	Channel() (channel, error)
	IsClosed() bool
	Close() error
}

// channel is the subset of *amqp.Channel the client uses.
type channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// dialer opens a broker connection.
type dialer func(url string) (connection, error)

// amqpConnection adapts *amqp.Connection to connection.
type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{Connection: conn}, nil
}

// Delivery is a single inbound message awaiting acknowledgement.
type Delivery interface {
	Body() []byte
	MessageID() string
	Redelivered() bool
	Ack() error
	Nack(requeue bool) error
}

type delivery struct {
	d amqp.Delivery
}

func (m delivery) Body() []byte      { return m.d.Body }
func (m delivery) MessageID() string { return m.d.MessageId }
func (m delivery) Redelivered() bool { return m.d.Redelivered }
func (m delivery) Ack() error        { return m.d.Ack(false) }

func (m delivery) Nack(requeue bool) error {
	return m.d.Nack(false, requeue)
}
