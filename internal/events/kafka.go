package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/updownhq/updown/internal/domain"
)

// KafkaSink publishes events to a Kafka topic for downstream consumers.
// The message key is the event type, so consumers see each type in order.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaWriter builds a writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaSink creates a KafkaSink over an existing writer.
func NewKafkaSink(writer *kafka.Writer) *KafkaSink {
	return &KafkaSink{writer: writer}
}

var _ domain.EventSink = (*KafkaSink)(nil)

// Publish writes the JSON-encoded event envelope.
func (s *KafkaSink) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Type),
		Value: payload,
		Time:  ev.At,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
