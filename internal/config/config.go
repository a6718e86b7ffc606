// Package config provides configuration types and loading for lorebot.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Supported chat platforms.
const (
	PlatformDiscord  = "discord"
	PlatformSlack    = "slack"
	PlatformWhatsApp = "whatsapp"
	PlatformKafka    = "kafka"
)

// Config is the root configuration struct.
// Every value is read once at startup and never changes afterwards.
type Config struct {
	// Chance is the reply probability as a percentage, 0 through 100.
	Chance          float64 `envconfig:"CHANCE" default:"10"`
	LoreFile        string  `envconfig:"LORE_FILE" default:"/app/lore.txt"`
	LoreSplitter    string  `envconfig:"LORE_SPLITTER" default:"~"`
	Triggers        string  `envconfig:"TRIGGERS" required:"true"`
	TriggerSplitter string  `envconfig:"TRIGGER_SPLITTER" default:"~"`
	Disablers       string  `envconfig:"DISABLERS" required:"true"`
	DisableSplitter string  `envconfig:"DISABLE_SPLITTER" default:"~"`
	// DisableFor is the cooldown in seconds after a disabler match.
	DisableFor      int64  `envconfig:"DISABLE_FOR" default:"600"`
	DisableReaction string `envconfig:"DISABLE_REACTION"`

	Platform    string `envconfig:"PLATFORM" default:"discord"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	TimelineDB  string `envconfig:"TIMELINE_DB"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	Discord  DiscordConfig  `ignored:"true"`
	Slack    SlackConfig    `ignored:"true"`
	WhatsApp WhatsAppConfig `ignored:"true"`
	Kafka    KafkaConfig    `ignored:"true"`
}

// ---------------------------------------------------------------------------
// Platforms
// ---------------------------------------------------------------------------

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token string `envconfig:"DISCORD_TOKEN"`
}

// SlackConfig configures the Slack socket mode channel.
type SlackConfig struct {
	BotToken string `envconfig:"SLACK_BOT_TOKEN"`
	AppToken string `envconfig:"SLACK_APP_TOKEN"`
}

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	// DB is the sqlite session store. Empty means ~/.lorebot/whatsapp.db.
	DB string `envconfig:"WHATSAPP_DB"`
}

// KafkaConfig configures the Kafka relay channel.
type KafkaConfig struct {
	Brokers       string `envconfig:"KAFKA_BROKERS"`
	InboundTopic  string `envconfig:"KAFKA_INBOUND_TOPIC" default:"lorebot.inbound"`
	OutboundTopic string `envconfig:"KAFKA_OUTBOUND_TOPIC" default:"lorebot.outbound"`
	GroupID       string `envconfig:"KAFKA_GROUP_ID" default:"lorebot"`
	TLS           bool   `envconfig:"KAFKA_TLS"`
	SASLMechanism string `envconfig:"KAFKA_SASL_MECHANISM"`
	Username      string `envconfig:"KAFKA_USERNAME"`
	Password      string `envconfig:"KAFKA_PASSWORD"`
}

// BrokerList splits the comma separated broker list.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Probability returns the reply chance as a probability in [0,1].
func (c *Config) Probability() float64 {
	return c.Chance / 100
}

// Level returns the slog level named by LOG_LEVEL.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate checks every setting and returns the first problem as a *ConfigError.
func (c *Config) Validate() error {
	if math.IsNaN(c.Chance) || c.Chance < 0 || c.Chance > 100 {
		return &ConfigError{Key: "CHANCE", Err: fmt.Errorf("should be a percentage, 0 through 100, but parsed %v", c.Chance)}
	}
	splitters := []struct{ key, raw string }{
		{"LORE_SPLITTER", c.LoreSplitter},
		{"TRIGGER_SPLITTER", c.TriggerSplitter},
		{"DISABLE_SPLITTER", c.DisableSplitter},
	}
	for _, s := range splitters {
		if _, err := ParseSplitter(s.key, s.raw); err != nil {
			return err
		}
	}
	if c.DisableFor < 0 {
		return &ConfigError{Key: "DISABLE_FOR", Err: fmt.Errorf("must be a non-negative number of seconds, got %d", c.DisableFor)}
	}
	if strings.TrimSpace(c.LogLevel) != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
			return &ConfigError{Key: "LOG_LEVEL", Err: err}
		}
	}
	return c.validatePlatform()
}

func (c *Config) validatePlatform() error {
	switch strings.ToLower(strings.TrimSpace(c.Platform)) {
	case PlatformDiscord:
		if strings.TrimSpace(c.Discord.Token) == "" {
			return &ConfigError{Key: "DISCORD_TOKEN", Err: errMissing}
		}
	case PlatformSlack:
		if strings.TrimSpace(c.Slack.BotToken) == "" {
			return &ConfigError{Key: "SLACK_BOT_TOKEN", Err: errMissing}
		}
		if !strings.HasPrefix(strings.TrimSpace(c.Slack.AppToken), "xapp-") {
			return &ConfigError{Key: "SLACK_APP_TOKEN", Err: fmt.Errorf("socket mode needs an app-level token starting with xapp-")}
		}
	case PlatformWhatsApp:
	case PlatformKafka:
		if len(c.Kafka.BrokerList()) == 0 {
			return &ConfigError{Key: "KAFKA_BROKERS", Err: errMissing}
		}
		switch strings.ToUpper(strings.TrimSpace(c.Kafka.SASLMechanism)) {
		case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return &ConfigError{Key: "KAFKA_SASL_MECHANISM", Err: fmt.Errorf("unsupported mechanism %q", c.Kafka.SASLMechanism)}
		}
	default:
		return &ConfigError{Key: "PLATFORM", Err: fmt.Errorf("unknown platform %q", c.Platform)}
	}
	return nil
}

// ParseSplitter validates a delimiter setting and returns its single rune.
// Surrounding whitespace is trimmed, except that a value consisting of exactly
// one whitespace rune (e.g. a newline) is taken as-is.
func ParseSplitter(key, raw string) (rune, error) {
	s := strings.TrimSpace(raw)
	if s == "" && utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		if unicode.IsSpace(r) {
			return r, nil
		}
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, &ConfigError{Key: key, Err: fmt.Errorf("expected exactly one character, got %q", raw)}
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0, &ConfigError{Key: key, Err: fmt.Errorf("invalid UTF-8 in %q", raw)}
	}
	return r, nil
}
