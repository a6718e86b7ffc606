package channels

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/goleak"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/config"
)

type deliveryRecorder struct {
	mu   sync.Mutex
	msgs []*bus.OutboundMessage
	errs []error
	done chan struct{}
}

func newDeliveryRecorder() *deliveryRecorder {
	return &deliveryRecorder{done: make(chan struct{}, 10)}
}

func (r *deliveryRecorder) hook(msg *bus.OutboundMessage, err error) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *deliveryRecorder) await(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBaseChannelDeliversThroughBus(t *testing.T) {
	defer goleak.VerifyNone(t)

	msgBus := bus.NewMessageBus()
	rec := newDeliveryRecorder()
	base := &BaseChannel{Bus: msgBus, OnDelivery: rec.hook}

	var called int32
	base.sendFn = func(ctx context.Context, msg *bus.OutboundMessage) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected send context to carry a deadline")
		}
		atomic.AddInt32(&called, 1)
		return nil
	}
	base.subscribe(t.Context(), "discord", nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- msgBus.DispatchOutbound(ctx) }()

	msgBus.PublishOutbound(&bus.OutboundMessage{Channel: "discord", ChatID: "c1", ReplyTo: "m1", Content: "A"})
	rec.await(t)

	cancel()
	<-done
	base.wait()

	if atomic.LoadInt32(&called) != 1 {
		t.Fatalf("expected one send, got %d", called)
	}
	if rec.errs[0] != nil {
		t.Fatalf("expected success, got %v", rec.errs[0])
	}
}

func TestBaseChannelReportsFailureWithoutRetry(t *testing.T) {
	rec := newDeliveryRecorder()
	base := &BaseChannel{Bus: bus.NewMessageBus(), OnDelivery: rec.hook}

	var called int32
	boom := errors.New("platform down")
	base.sendFn = func(ctx context.Context, msg *bus.OutboundMessage) error {
		atomic.AddInt32(&called, 1)
		return boom
	}
	base.deliver("slack", nil, &bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "A"})
	rec.await(t)

	if atomic.LoadInt32(&called) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", called)
	}
	if !errors.Is(rec.errs[0], boom) {
		t.Fatalf("expected hook to see send error, got %v", rec.errs[0])
	}
}

func TestNewPicksPlatformChannel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	for _, platform := range []string{config.PlatformDiscord, config.PlatformSlack, config.PlatformWhatsApp, config.PlatformKafka} {
		ch, err := New(&config.Config{Platform: platform}, msgBus, nil)
		if err != nil {
			t.Fatalf("%s: %v", platform, err)
		}
		if ch.Name() != platform {
			t.Fatalf("expected %s channel, got %s", platform, ch.Name())
		}
	}

	_, err := New(&config.Config{Platform: "irc"}, msgBus, nil)
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "PLATFORM" {
		t.Fatalf("expected PLATFORM config error, got %v", err)
	}
}

func TestSendBeforeStartFails(t *testing.T) {
	msgBus := bus.NewMessageBus()
	msg := &bus.OutboundMessage{ChatID: "c", Content: "A"}
	for _, ch := range []Channel{
		NewDiscordChannel(config.DiscordConfig{}, msgBus),
		NewSlackChannel(config.SlackConfig{}, msgBus),
		NewWhatsAppChannel(config.WhatsAppConfig{}, msgBus),
		NewKafkaChannel(config.KafkaConfig{}, msgBus),
	} {
		if err := ch.Send(t.Context(), msg); err == nil {
			t.Fatalf("%s: expected error sending before start", ch.Name())
		}
		if err := ch.Stop(); err != nil {
			t.Fatalf("%s: stop before start: %v", ch.Name(), err)
		}
	}
}

func TestDiscordInboundCarriesBotFlag(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewDiscordChannel(config.DiscordConfig{}, msgBus)

	ch.handleInbound(nil)
	ch.handleInbound(&discordgo.Message{ID: "orphan", Content: "lore"})
	ch.handleInbound(&discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   "Tell me the LORE",
		Author:    &discordgo.User{ID: "u1", Bot: true},
	})

	if msgBus.InboundSize() != 1 {
		t.Fatalf("expected only the authored message to be published, got %d", msgBus.InboundSize())
	}
	msg, _ := msgBus.ConsumeInbound(t.Context())
	if msg.Channel != "discord" || msg.ChatID != "c1" || msg.MessageID != "m1" || msg.SenderID != "u1" {
		t.Fatalf("unexpected inbound %+v", msg)
	}
	if !msg.AuthorIsBot || msg.Content != "Tell me the LORE" {
		t.Fatalf("expected bot flag and verbatim content, got %+v", msg)
	}
}

func TestPublishDropsWhenStoppedAndBusFull(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewDiscordChannel(config.DiscordConfig{}, msgBus)
	ctx, cancel := context.WithCancel(t.Context())
	ch.subscribe(ctx, ch.Name(), ch.Send)

	msg := &discordgo.Message{ID: "m", ChannelID: "c", Content: "lore", Author: &discordgo.User{ID: "u"}}
	for msgBus.InboundSize() < 100 {
		ch.handleInbound(msg)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		ch.handleInbound(msg)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("inbound publish blocked after the channel context ended")
	}
}
