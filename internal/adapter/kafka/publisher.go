// Package kafka publishes change notifications for events, wildfires, and
// droughts to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/config"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces change messages to the configured changes topic.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the changes topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaChangesTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// Publish writes one change. Messages are keyed by record key so all changes
// for a record land on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, changes ...domain.Change) error {
	if len(changes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(changes))
	for i := range changes {
		msg, err := serializeToMessage(changes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		for _, c := range changes {
			p.metrics.ChangesPublished.WithLabelValues(c.Entity, "error").Inc()
		}
		p.logger.Error("publish changes failed", "count", len(changes), "error", err)
		return fmt.Errorf("publish changes: %w", err)
	}
	for _, c := range changes {
		p.metrics.ChangesPublished.WithLabelValues(c.Entity, "success").Inc()
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards changes. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...domain.Change) error { return nil }

func (NopPublisher) Close() error { return nil }

// serializeToMessage marshals a Change into a Kafka message.
func serializeToMessage(change domain.Change) (kafkago.Message, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s change: %w", change.Entity, err)
	}
	return kafkago.Message{
		Key:   []byte(change.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "entity", Value: []byte(change.Entity)},
			{Key: "action", Value: []byte(change.Action)},
			{Key: "occurred_at", Value: []byte(change.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
