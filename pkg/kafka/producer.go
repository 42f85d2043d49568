package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// TraceIDHeader is the record header that carries the trace ID
const TraceIDHeader = "x-trace-id"

// MessageWriter is the subset of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON events to a single topic
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a producer for topic on the given brokers
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// NewProducerWithWriter wraps an existing writer
func NewProducerWithWriter(w MessageWriter) *Producer {
	return &Producer{writer: w}
}

// Publish marshals event and writes it keyed by key. Records with the same
// key land on the same partition so per-order ordering holds.
func (p *Producer) Publish(ctx context.Context, key, eventType, traceID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if traceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: TraceIDHeader, Value: []byte(traceID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close flushes pending writes
func (p *Producer) Close() error {
	return p.writer.Close()
}
