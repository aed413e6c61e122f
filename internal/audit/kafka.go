// Package audit publishes authorization membership changes to Kafka.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KafClaw/robotd/internal/auth"
	"github.com/KafClaw/robotd/internal/config"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is an auth.Auditor writing one JSON message per event.
// Messages are keyed by group so changes to a group stay ordered.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafkaPublisher returns a publisher for cfg, or nil when auditing is disabled.
func NewKafkaPublisher(cfg config.AuditConfig) *KafkaPublisher {
	if !cfg.Enabled() {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers()...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return NewPublisher(w)
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second}
}

// Record implements auth.Auditor.
func (p *KafkaPublisher) Record(ctx context.Context, ev auth.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Group),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(ev.Action)},
			{Key: "robot", Value: []byte(ev.Robot)},
		},
		Time: ev.Time,
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
