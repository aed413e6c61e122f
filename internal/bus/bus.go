// Package bus provides the async message bus between a robot's adapter and its handlers.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known metadata keys.
const (
	MetaKeyPrivate   = "private"
	MetaKeyMentioned = "mentioned"
)

// InboundMessage represents a message from the adapter to the handlers.
type InboundMessage struct {
	Adapter   string         `json:"adapter"`
	UserID    string         `json:"user_id"`
	UserName  string         `json:"user_name"`
	RoomID    string         `json:"room_id"`
	TraceID   string         `json:"trace_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Private reports whether the message was sent directly to the robot.
func (m *InboundMessage) Private() bool { return m.flag(MetaKeyPrivate) }

// Mentioned reports whether the adapter saw the robot mentioned. Adapters
// set it when the platform marks mentions out of band and the content no
// longer carries the robot's name.
func (m *InboundMessage) Mentioned() bool { return m.flag(MetaKeyMentioned) }

func (m *InboundMessage) flag(key string) bool {
	v, _ := m.Metadata[key].(bool)
	return v
}

// OutboundMessage represents a message from a handler to the adapter.
type OutboundMessage struct {
	Adapter string `json:"adapter"`
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id,omitempty"`
	TraceID string `json:"trace_id"`
	Content string `json:"content"`
}

// MessageBus decouples the adapter from the handlers.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage
	subs     map[string][]func(*OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundMessage, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound sends a message from the adapter to the handlers.
// It blocks when the buffer is full until ctx is done.
func (b *MessageBus) PublishInbound(ctx context.Context, msg *InboundMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks until a message is available or context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a message from a handler to the adapter.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg *OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a callback for outbound messages to a specific adapter.
func (b *MessageBus) Subscribe(adapter string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[adapter] = append(b.subs[adapter], callback)
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.deliver(msg)
		}
	}
}

// FlushOutbound delivers pending outbound messages on the calling goroutine.
// Call it after the dispatcher has stopped.
func (b *MessageBus) FlushOutbound() {
	for {
		select {
		case msg := <-b.outbound:
			b.deliver(msg)
		default:
			return
		}
	}
}

func (b *MessageBus) deliver(msg *OutboundMessage) {
	b.mu.RLock()
	callbacks := b.subs[msg.Adapter]
	b.mu.RUnlock()

	for _, cb := range callbacks {
		cb(msg)
	}
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
