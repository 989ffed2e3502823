package producers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/provider-credit-ledger/internal/config"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/segmentio/kafka-go"
)

// CorrelationIDHeader carries the id of the HTTP request that produced the event
const CorrelationIDHeader = "correlation-id"

// InteractionEventProducer writes encoded interaction events keyed by the
// provider account, so every event for one provider lands on the same partition.
type InteractionEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

var _ EventPublisher = (*InteractionEventProducer)(nil)

// NewInteractionEventProducer ensures the interaction topic exists and opens a writer
func NewInteractionEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*InteractionEventProducer, error) {
	if cfg.InteractionTopic == "" {
		return nil, fmt.Errorf("kafka interaction topic is not configured")
	}

	if err := ensureTopic(ctx, logger, cfg, cfg.InteractionTopic); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.InteractionTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.MaxWait,
	}

	return &InteractionEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.InteractionTopic,
	}, nil
}

func (p *InteractionEventProducer) Publish(ctx context.Context, event events.Event) error {
	value, err := events.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Kind(), err)
	}

	key := event.Provider().String()
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-kind", Value: []byte(event.Kind())},
		},
	}
	if correlationID := events.CorrelationID(ctx); correlationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: CorrelationIDHeader, Value: []byte(correlationID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish interaction event",
			"topic", p.topic,
			"key", key,
			"kind", event.Kind(),
			"error", err,
		)
		return fmt.Errorf("failed to publish %s event to %s: %w", event.Kind(), p.topic, err)
	}

	p.logger.Debug("Published interaction event",
		"topic", p.topic,
		"key", key,
		"kind", event.Kind(),
	)
	return nil
}

func (p *InteractionEventProducer) Close() error {
	p.logger.Info("Closing interaction event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
