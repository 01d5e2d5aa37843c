package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Disposition is a handler's verdict on a delivered message.
type Disposition int

const (
	// Ack removes the message: it was processed, or processing it again
	// would be a safe no-op.
	Ack Disposition = iota
	// Requeue returns the message for redelivery after a transient failure.
	Requeue
	// DeadLetter routes a structurally unprocessable message to the
	// dead-letter queue. It will not be retried.
	DeadLetter
)

// Handler processes one message body and returns its disposition.
type Handler func(body []byte) Disposition

// Consumer holds a RabbitMQ connection and channel for one consume loop.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConsumer dials RabbitMQ and opens a channel with prefetch 1, so the
// broker delivers one unacknowledged message at a time. Per-trade transition
// ordering depends on this.
func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch}, nil
}

// Consume declares the topic exchange, the dead-letter topology and a durable
// queue bound to routingKey, then dispatches deliveries to handler until ctx
// is cancelled or the delivery channel closes. Runs its loop in a goroutine;
// returns once consumption is established.
func (c *Consumer) Consume(ctx context.Context, exchange, dlxExchange, dlxQueue, queueName, routingKey string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for queue %s", queueName)
	}

	if err := c.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	if err := c.channel.ExchangeDeclare(dlxExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	dlq, err := c.channel.QueueDeclare(dlxQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := c.channel.QueueBind(dlq.Name, "#", dlxExchange, false, nil); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": dlxExchange,
	})
	if err != nil {
		return err
	}
	if err := c.channel.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return err
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Printf("level=info component=rabbitmq_consumer msg=\"consume loop stopping\" queue=%s", queueName)
				return
			case d, ok := <-msgs:
				if !ok {
					if ctx.Err() == nil {
						log.Printf("level=error component=rabbitmq_consumer msg=\"delivery channel closed\" queue=%s", queueName)
					}
					return
				}
				switch handler(d.Body) {
				case Ack:
					d.Ack(false)
				case Requeue:
					log.Printf("level=warn component=rabbitmq_consumer msg=\"handler requested redelivery\" queue=%s message_id=%s", queueName, d.MessageId)
					d.Nack(false, true)
				case DeadLetter:
					log.Printf("level=error component=rabbitmq_consumer msg=\"dead-lettering message\" queue=%s message_id=%s", queueName, d.MessageId)
					d.Nack(false, false)
				}
			}
		}
	}()

	return nil
}

// Close shuts down the channel and connection; the consume loop goroutine
// exits when the delivery channel closes.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
