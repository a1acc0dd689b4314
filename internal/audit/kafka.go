package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaEmitter implements Emitter using segmentio/kafka-go.
type KafkaEmitter struct {
	writer *kafka.Writer
}

// NewKafkaEmitter creates a Kafka emitter that writes audit events to the
// given topic. Returns nil when brokers or topic are unset; callers should
// fall back to NopEmitter. Call Close when shutting down.
func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaEmitter{writer: writer}
}

// Emit serializes the event as JSON and writes it to the topic, keyed by
// subject so one identity's events stay ordered within a partition.
func (p *KafkaEmitter) Emit(ctx context.Context, e Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var key []byte
	if e.Subject != "" {
		key = []byte(e.Subject)
	}
	writeCtx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{Key: key, Value: payload})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaEmitter) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
