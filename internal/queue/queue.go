// Package queue consumes ingestion batches from RabbitMQ. Failed deliveries
// go to <queue>_retry, which dead-letters back to the main queue after a
// delay; after MaxRetries they are parked in <queue>_dlq.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docdrift/internal/ingest"
)

// RetryDelay is how long a message waits in the retry queue.
const RetryDelay = 10 * time.Second

// Names of the auxiliary queues for name.
func RetryQueue(name string) string { return name + "_retry" }
func DeadLetterQueue(name string) string { return name + "_dlq" }

// Declarer is the subset of *amqp.Channel needed to declare queues.
type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// Publisher is the subset of *amqp.Channel needed to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Dial connects to the broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares name, its dead-letter queue and its retry queue.
func SetupQueues(ch Declarer, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", name, err)
	}

	dlq := DeadLetterQueue(name)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", dlq, err)
	}

	retry := RetryQueue(name)
	_, err := ch.QueueDeclare(retry, true, false, false, false, amqp.Table{
		"x-message-ttl":             int32(RetryDelay / time.Millisecond),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": name,
	})
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", retry, err)
	}
	return nil
}

// Publish sends batches to name as one persistent JSON message.
func Publish(ctx context.Context, ch Publisher, name string, batches []ingest.Batch) error {
	body, err := json.Marshal(batches)
	if err != nil {
		return fmt.Errorf("failed to encode batches: %w", err)
	}
	return ch.PublishWithContext(ctx, "", name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}
