package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Events are published one at a time from the request path, so the writer
// flushes almost immediately instead of waiting out kafka-go's 1s batch window.
const (
	writerBatchTimeout = 10 * time.Millisecond
	writerWriteTimeout = 2 * time.Second
)

// NewKafkaWriter returns a writer that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: writerBatchTimeout,
		WriteTimeout: writerWriteTimeout,
	}
}

// KafkaPublisher writes events to a topic keyed by payment id, so every
// event of one payment lands on the same partition.
type KafkaPublisher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewKafkaPublisher(log *slog.Logger, producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{log: log, producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event %s: %w", e.ID, err)
	}

	headers := injectTraceHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte(e.Type)}})
	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(e.PaymentID),
		Value:   payload,
		Headers: headers,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		p.log.ErrorContext(ctx, "audit publish failed", "event_id", e.ID, "type", e.Type, "err", err)
		return fmt.Errorf("audit: publish event %s: %w", e.ID, err)
	}
	p.log.DebugContext(ctx, "audit published", "event_id", e.ID, "type", e.Type)
	return nil
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
