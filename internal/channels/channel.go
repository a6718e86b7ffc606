// Package channels adapts chat platforms to the message bus.
package channels

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/lorebot/internal/bus"
)

// Channel defines the interface for chat platforms (Discord, Slack, etc).
type Channel interface {
	// Name returns the channel name (e.g. "discord").
	Name() string
	// Start connects to the platform and begins publishing inbound messages.
	Start(ctx context.Context) error
	// Stop disconnects and waits for in-flight deliveries.
	Stop() error
	// Send delivers one outbound message (a reply or a reaction).
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// DeliveryHook observes the result of every delivery attempt. err is nil on success.
type DeliveryHook func(msg *bus.OutboundMessage, err error)

// sendTimeout bounds a single platform call.
const sendTimeout = 30 * time.Second

// BaseChannel provides common functionality for channels.
//
// Delivery is attempted once per outbound message. Each attempt runs under
// its own sendTimeout rather than the channel's run context, so a reply that
// is already queued is still sent while the bot shuts down; a platform call
// that hangs is abandoned after the timeout and reported as failed.
type BaseChannel struct {
	Bus        *bus.MessageBus
	OnDelivery DeliveryHook

	// sendFn replaces the channel's Send in tests.
	sendFn func(ctx context.Context, msg *bus.OutboundMessage) error
	ctx    context.Context
	wg     sync.WaitGroup
}

// subscribe binds the channel to ctx and routes outbound messages for name
// to send. Each delivery runs in its own goroutine; failures are logged and
// reported to OnDelivery, never retried.
func (b *BaseChannel) subscribe(ctx context.Context, name string, send func(ctx context.Context, msg *bus.OutboundMessage) error) {
	b.ctx = ctx
	b.Bus.Subscribe(name, func(msg *bus.OutboundMessage) {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.deliver(name, send, msg)
		}()
	})
}

func (b *BaseChannel) deliver(name string, send func(ctx context.Context, msg *bus.OutboundMessage) error, msg *bus.OutboundMessage) {
	if b.sendFn != nil {
		send = b.sendFn
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	err := send(ctx, msg)
	if err != nil {
		slog.Error("Channel: can't send message", "channel", name, "chat_id", msg.ChatID, "reply_to", msg.ReplyTo, "trace_id", msg.TraceID, "error", err)
	} else {
		slog.Debug("Channel: message delivered", "channel", name, "chat_id", msg.ChatID, "trace_id", msg.TraceID)
	}
	if b.OnDelivery != nil {
		b.OnDelivery(msg, err)
	}
}

// publish hands msg to the gateway. Once the channel's context is done the
// message is dropped instead of blocking on a full bus.
func (b *BaseChannel) publish(msg *bus.InboundMessage) {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.Bus.PublishInbound(ctx, msg); err != nil {
		slog.Warn("Channel: dropping inbound message", "channel", msg.Channel, "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
	}
}

// wait blocks until all in-flight deliveries have finished.
func (b *BaseChannel) wait() {
	b.wg.Wait()
}
