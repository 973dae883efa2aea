// Package kafka provides a Kafka transport for consolidation jobs and
// results using segmentio/kafka-go.
//
// Requeue-with-backoff is implemented by re-publishing the job message to
// the jobs topic with an incremented attempt count and a not_before
// timestamp, then committing the original offset. Kafka has no native
// delayed delivery; the consumer honors not_before by waiting before
// handing the message to a worker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/memd/pkg/queue"
)

// Config holds Kafka transport settings.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// JobsTopic carries consolidation requests.
	JobsTopic string

	// ResultsTopic carries terminal job results.
	ResultsTopic string

	// DeadLetterTopic carries rejected jobs with diagnostic context.
	DeadLetterTopic string

	// GroupID is the consumer group for the jobs topic.
	GroupID string
}

// Consumer implements queue.Consumer over a Kafka consumer group.
type Consumer struct {
	reader *kafka.Reader
	writer *kafka.Writer // jobs topic, for requeues
	dlq    *kafka.Writer
	logger *zap.Logger
}

// NewConsumer creates a Kafka jobs consumer.
func NewConsumer(c Config, logger *zap.Logger) (*Consumer, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if c.JobsTopic == "" {
		return nil, fmt.Errorf("jobs topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    c.JobsTopic,
		GroupID:  c.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	consumer := &Consumer{
		reader: reader,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(c.Brokers...),
			Topic:    c.JobsTopic,
			Balancer: &kafka.Hash{}, // key by scope so one scope stays on one partition
		},
		logger: logger,
	}

	if c.DeadLetterTopic != "" {
		consumer.dlq = &kafka.Writer{
			Addr:     kafka.TCP(c.Brokers...),
			Topic:    c.DeadLetterTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}

	return consumer, nil
}

// Receive fetches the next job message, honoring not_before delays.
func (c *Consumer) Receive(ctx context.Context) (queue.Delivery, error) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching message: %w", err)
		}

		var payload queue.JobMessage
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			// Undecodable payloads go straight to the DLQ; there is nothing
			// to retry.
			c.logger.Error("dropping undecodable job message",
				zap.Error(err),
				zap.Int64("offset", msg.Offset),
			)
			if dlqErr := c.publishDeadLetter(ctx, msg.Value, "undecodable payload: "+err.Error()); dlqErr != nil {
				return nil, dlqErr
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return nil, fmt.Errorf("committing undecodable message: %w", err)
			}
			continue
		}

		if wait := time.Until(payload.NotBefore); wait > 0 {
			c.logger.Debug("delaying requeued job",
				zap.String("job_id", payload.JobID),
				zap.Duration("wait", wait),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return &delivery{consumer: c, raw: msg, payload: &payload}, nil
	}
}

// Close stops the reader and writers.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if werr := c.writer.Close(); err == nil {
		err = werr
	}
	if c.dlq != nil {
		if derr := c.dlq.Close(); err == nil {
			err = derr
		}
	}
	return err
}

func (c *Consumer) publishDeadLetter(ctx context.Context, original []byte, reason string) error {
	if c.dlq == nil {
		c.logger.Warn("no dead-letter topic configured, dropping message", zap.String("reason", reason))
		return nil
	}

	envelope, err := json.Marshal(map[string]any{
		"reason":      reason,
		"rejected_at": time.Now().UTC(),
		"payload":     json.RawMessage(original),
	})
	if err != nil {
		return fmt.Errorf("encoding dead-letter envelope: %w", err)
	}

	if err := c.dlq.WriteMessages(ctx, kafka.Message{Value: envelope}); err != nil {
		return fmt.Errorf("publishing to dead-letter topic: %w", err)
	}
	return nil
}

// delivery implements queue.Delivery for one fetched Kafka message.
type delivery struct {
	consumer *Consumer
	raw      kafka.Message
	payload  *queue.JobMessage
}

func (d *delivery) Message() *queue.JobMessage {
	return d.payload
}

func (d *delivery) Ack(ctx context.Context) error {
	if err := d.consumer.reader.CommitMessages(ctx, d.raw); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	return nil
}

func (d *delivery) Requeue(ctx context.Context, delay time.Duration) error {
	requeued := *d.payload
	requeued.AttemptCount++
	requeued.NotBefore = time.Now().UTC().Add(delay)

	value, err := json.Marshal(&requeued)
	if err != nil {
		return fmt.Errorf("encoding requeued job: %w", err)
	}

	err = d.consumer.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(scopeKeyOf(&requeued)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("requeuing job %s: %w", requeued.JobID, err)
	}

	return d.Ack(ctx)
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	if err := d.consumer.publishDeadLetter(ctx, d.raw.Value, reason); err != nil {
		return err
	}
	return d.Ack(ctx)
}

// scopeKeyOf renders the message's scope as a partition key. Full canonical
// escaping is not needed here; stable ordering is.
func scopeKeyOf(m *queue.JobMessage) string {
	job := m.ToJob()
	return job.Scope.Key()
}

// Publisher implements queue.Publisher over a Kafka results topic.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka results publisher.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if c.ResultsTopic == "" {
		return nil, fmt.Errorf("results topic is required")
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(c.Brokers...),
			Topic:    c.ResultsTopic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}, nil
}

// PublishResult publishes a terminal job result keyed by job id.
func (p *Publisher) PublishResult(ctx context.Context, result *queue.ResultMessage) error {
	if result == nil {
		return queue.ErrNilResult
	}

	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result for job %s: %w", result.JobID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(result.JobID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publishing result for job %s: %w", result.JobID, err)
	}

	p.logger.Debug("published job result",
		zap.String("job_id", result.JobID),
		zap.String("status", string(result.Status)),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
