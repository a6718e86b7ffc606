package channels

import (
	"fmt"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/config"
)

// New returns the channel for cfg.Platform. hook, when non-nil, observes
// every delivery attempt.
func New(cfg *config.Config, messageBus *bus.MessageBus, hook DeliveryHook) (Channel, error) {
	switch cfg.Platform {
	case config.PlatformDiscord:
		ch := NewDiscordChannel(cfg.Discord, messageBus)
		ch.OnDelivery = hook
		return ch, nil
	case config.PlatformSlack:
		ch := NewSlackChannel(cfg.Slack, messageBus)
		ch.OnDelivery = hook
		return ch, nil
	case config.PlatformWhatsApp:
		ch := NewWhatsAppChannel(cfg.WhatsApp, messageBus)
		ch.OnDelivery = hook
		return ch, nil
	case config.PlatformKafka:
		ch := NewKafkaChannel(cfg.Kafka, messageBus)
		ch.OnDelivery = hook
		return ch, nil
	default:
		return nil, &config.ConfigError{Key: "PLATFORM", Err: fmt.Errorf("unknown platform %q", cfg.Platform)}
	}
}
