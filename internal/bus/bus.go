// Package bus provides the async message bus between chat channels and the gateway.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InboundMessage represents a chat message received by a channel.
type InboundMessage struct {
	Channel     string    `json:"channel"`
	ChatID      string    `json:"chat_id"`
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	AuthorIsBot bool      `json:"author_is_bot"`
	Content     string    `json:"content"`
	TraceID     string    `json:"trace_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// OutboundMessage represents something the gateway wants a channel to deliver.
// Either Content (a reply to ReplyTo) or Reaction (an emoji on ReplyTo) is set.
type OutboundMessage struct {
	Channel  string `json:"channel"`
	ChatID   string `json:"chat_id"`
	ReplyTo  string `json:"reply_to,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
	Content  string `json:"content,omitempty"`
	Reaction string `json:"reaction,omitempty"`
	TraceID  string `json:"trace_id"`
}

// IsReaction reports whether the message is a reaction rather than a reply.
func (m *OutboundMessage) IsReaction() bool {
	return m.Reaction != "" && m.Content == ""
}

// MessageBus decouples channels from the gateway.
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

// PublishInbound sends a message from a channel to the gateway, blocking
// while the inbound buffer is full. It gives up when ctx is done.
// Missing timestamps and trace IDs are filled in.
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

// PublishOutbound queues a message for delivery by the channel named in msg.Channel.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a callback for outbound messages to a specific channel.
func (b *MessageBus) Subscribe(channel string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[channel] = append(b.subs[channel], callback)
}

// DispatchOutbound runs the outbound message dispatcher until ctx is done.
// Messages still buffered at that point are dispatched before it returns.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-b.outbound:
					b.dispatch(msg)
				default:
					return ctx.Err()
				}
			}
		case msg := <-b.outbound:
			b.dispatch(msg)
		}
	}
}

func (b *MessageBus) dispatch(msg *OutboundMessage) {
	b.mu.RLock()
	callbacks := b.subs[msg.Channel]
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
