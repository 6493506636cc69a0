package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"settlement-reconciler/config"
	"settlement-reconciler/internal/core/domain"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// DefaultTopic receives settlement outcome events.
const DefaultTopic = "settlement.outcome"

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher on a Kafka topic. Messages are
// keyed by batch id so events of one batch stay on one partition.
type Publisher struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// NewPublisher creates a synchronous Kafka writer for the configured brokers.
func NewPublisher(cfg config.KafkaConfig, log zerolog.Logger) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return newPublisher(w, topic, log)
}

func newPublisher(w messageWriter, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{writer: w, topic: topic, log: log}
}

// Name implements ports.EventPublisher.
func (p *Publisher) Name() string { return "kafka" }

// Publish writes the event and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, event *domain.SettlementOutcomeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(event.BatchID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}

	p.log.Debug().
		Str("topic", p.topic).
		Str("event_id", event.EventID.String()).
		Int64("batch_id", event.BatchID).
		Msg("outcome event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
