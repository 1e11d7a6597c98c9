package rabbitmq

import (
	"context"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer receives turn messages with manual acks and a prefetch window
// equal to the worker's concurrency.
type Consumer struct {
	conn       *amqp.Connection
	mu         sync.Mutex // guards publishing on ch from worker goroutines
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

func NewConsumer(url, queue string, prefetch int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	fail := func(err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		return fail(err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail(err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fail(err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, deliveries: msgs}, nil
}

func (c *Consumer) Deliveries() <-chan amqp.Delivery { return c.deliveries }

// Retry parks d on the retry queue for delay; it dead-letters back to the
// main queue when the message expires. d is acked once parked.
func (c *Consumer) Retry(ctx context.Context, d amqp.Delivery, delay time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	err := c.ch.PublishWithContext(pctx, "", RetryQueue(c.queue), false, false, retryPublishing(d, delay))
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return d.Ack(false)
}

func retryPublishing(d amqp.Delivery, delay time.Duration) amqp.Publishing {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Body:         d.Body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(ms, 10),
	}
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
