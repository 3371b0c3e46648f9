package intake

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer binds a durable queue to the domain-event topic exchange and turns
// each delivery into a notification.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	notifier Notifier
	timeout  time.Duration

	workers  int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(url, exchange, queue string, workers int, n Notifier) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queue,
		notifier: n,
		timeout:  10 * time.Second,
		workers:  workers,
	}, nil
}

func (c *Consumer) Start() error {
	if err := c.ch.Qos(c.workers*2, 0, false); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for _, key := range RoutingKeys {
		if err := c.ch.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
			return err
		}
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for d := range msgs {
				c.handle(d)
			}
		}()
	}
	log.Printf("[AMQP] consuming %s on %s (%d workers)", q.Name, c.exchange, c.workers)
	return nil
}

// handle acks processed and unusable deliveries; only transient failures are
// requeued.
func (c *Consumer) handle(d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.process(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrMalformedEvent), permanent(err):
		log.Printf("[AMQP] dropping %s (%s): %v", d.RoutingKey, d.MessageId, err)
		_ = d.Nack(false, false)
	default:
		log.Printf("[AMQP] %s (%s) failed, requeueing: %v", d.RoutingKey, d.MessageId, err)
		_ = d.Nack(false, !d.Redelivered)
	}
}

func (c *Consumer) process(ctx context.Context, routingKey string, body []byte) error {
	req, err := MapEvent(routingKey, body)
	if err != nil {
		return err
	}
	_, err = c.notifier.Notify(ctx, req)
	return err
}

// Close stops the channel, which ends the delivery stream, and waits for the
// workers to finish.
func (c *Consumer) Close() error {
	var err error
	c.stopOnce.Do(func() {
		_ = c.ch.Close()
		c.wg.Wait()
		err = c.conn.Close()
	})
	return err
}
