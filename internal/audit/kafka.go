package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafka.Writer the shipper uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaShipper publishes each entry to a topic, keyed by request id so all
// entries for one request land on the same partition in order.
type KafkaShipper struct {
	writer messageWriter
}

// NewKafkaShipper creates a shipper writing to cfg.Topic on cfg.Brokers
func NewKafkaShipper(cfg *config.AuditKafkaConfig) (*KafkaShipper, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	return newKafkaShipperWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}), nil
}

func newKafkaShipperWithWriter(w messageWriter) *KafkaShipper {
	return &KafkaShipper{writer: w}
}

// Ship publishes an entry
func (ks *KafkaShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(entry.RequestID),
		Value: data,
		Time:  entry.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}
	if err := ks.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (ks *KafkaShipper) Close() error {
	return ks.writer.Close()
}
