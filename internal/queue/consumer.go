package queue

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	amqp "github.com/rabbitmq/amqp091-go"

	"docdrift/internal/config"
	"docdrift/internal/envelope"
	"docdrift/internal/errors"
	"docdrift/internal/ingest"
)

const retriesHeader = "x-retries"

// Action is what happens to a delivery after handling.
type Action int

const (
	Ack Action = iota
	Retry
	DeadLetter
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	default:
		return "dead-letter"
	}
}

// errPermanent marks failures a redelivery cannot fix.
var errPermanent = stderrors.New("permanent failure")

// Decide maps a handling error to an action. Permanent failures skip the
// retry queue; transient ones are retried until maxRetries is reached.
func Decide(err error, retries, maxRetries int) Action {
	switch {
	case err == nil:
		return Ack
	case stderrors.Is(err, errPermanent):
		return DeadLetter
	case retries >= maxRetries:
		return DeadLetter
	default:
		return Retry
	}
}

// Retries reads the retry count a delivery carries.
func Retries(headers amqp.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// DecodeBatches accepts a JSON array of batches or a single batch object,
// optionally zstd-compressed (Content-Encoding "zstd").
func DecodeBatches(body []byte, contentEncoding string) ([]ingest.Batch, error) {
	if contentEncoding == "zstd" {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if body, err = dec.DecodeAll(body, nil); err != nil {
			return nil, fmt.Errorf("%w: zstd body: %v", errPermanent, err)
		}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty message", errPermanent)
	}
	if trimmed[0] == '[' {
		var batches []ingest.Batch
		if err := json.Unmarshal(trimmed, &batches); err != nil {
			return nil, fmt.Errorf("%w: %v", errPermanent, err)
		}
		return batches, nil
	}
	var b ingest.Batch
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", errPermanent, err)
	}
	return []ingest.Batch{b}, nil
}

// Consumer feeds queued batches to the ingestion runner.
type Consumer struct {
	cfg    config.QueueConfig
	runner *ingest.Runner
	logger *slog.Logger
}

// NewConsumer creates a consumer for cfg.Queue.
func NewConsumer(cfg config.QueueConfig, runner *ingest.Runner, logger *slog.Logger) *Consumer {
	return &Consumer{cfg: cfg, runner: runner, logger: logger}
}

// Handle ingests one message. An unavailable store or a cancelled run is
// returned as an error for retry. Invalid events are acknowledged with
// their failures logged.
func (c *Consumer) Handle(ctx context.Context, msg amqp.Delivery) (*ingest.BatchReport, error) {
	batches, err := DecodeBatches(msg.Body, msg.ContentEncoding)
	if err != nil {
		return nil, err
	}
	rep := c.runner.Run(ctx, batches)
	if rep.Status == envelope.OK {
		return rep, nil
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	for _, s := range rep.Sources {
		if s.Status == envelope.Unavailable {
			return rep, errors.New(errors.StoreUnavailable, "graph store unavailable for source "+s.Source, nil)
		}
	}
	c.logger.Warn("Queued batch partially ingested", "runId", rep.RunID, "status", rep.Status, "error", rep.Err().Error())
	return rep, nil
}

// Settle acks, retries or dead-letters msg according to err.
func (c *Consumer) Settle(ctx context.Context, pub Publisher, msg amqp.Delivery, err error) Action {
	retries := Retries(msg.Headers)
	action := Decide(err, retries, c.cfg.MaxRetries)

	switch action {
	case Ack:
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ack message", "error", ackErr.Error())
		}
		return action
	case Retry:
		headers := amqp.Table{}
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers[retriesHeader] = int32(retries + 1)
		c.forward(ctx, pub, msg, RetryQueue(c.cfg.Queue), headers)
	case DeadLetter:
		c.logger.Warn("Sending message to DLQ", "dlq", DeadLetterQueue(c.cfg.Queue), "retries", retries)
		c.forward(ctx, pub, msg, DeadLetterQueue(c.cfg.Queue), msg.Headers)
	}
	return action
}

// forward republishes msg to target and acks the original, or nacks it back
// onto the queue when the publish fails.
func (c *Consumer) forward(ctx context.Context, pub Publisher, msg amqp.Delivery, target string, headers amqp.Table) {
	err := pub.PublishWithContext(ctx, "", target, false, false, amqp.Publishing{
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		Body:            msg.Body,
		Headers:         headers,
		DeliveryMode:    amqp.Persistent,
	})
	if err != nil {
		c.logger.Error("Failed to forward message", "queue", target, "error", err.Error())
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// Run declares the queues and consumes until ctx is cancelled or the
// channel closes.
func (c *Consumer) Run(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := SetupQueues(ch, c.cfg.Queue); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(c.cfg.Queue, "docdrift_consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("Listening for ingestion batches", "queue", c.cfg.Queue)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping consumer", "queue", c.cfg.Queue)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel for %s closed", c.cfg.Queue)
			}
			rep, err := c.Handle(ctx, msg)
			if err != nil {
				c.logger.Error("Error processing message", "queue", c.cfg.Queue, "error", err.Error())
			} else {
				c.logger.Info("Message processed", "queue", c.cfg.Queue, "runId", rep.RunID)
			}
			c.Settle(context.WithoutCancel(ctx), ch, msg, err)
		}
	}
}
