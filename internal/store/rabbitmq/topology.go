package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queues derived from the main queue name.
func RetryQueue(queue string) string { return queue + ".retry" }
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// DeclareTopology declares the main queue, its retry queue (TTL'd messages
// dead-letter back to main) and the DLQ that receives rejected turns. Both
// the server and the worker call it so either can start first.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(
		DeadLetterQueue(queue),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		RetryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DeadLetterQueue(queue),
		},
	)
	return err
}
