package kshark

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/KafClaw/lorebot/internal/config"
)

// DialTimeout is the default broker dial timeout.
const DialTimeout = 8 * time.Second

// SASLMechanism builds the mechanism named by KAFKA_SASL_MECHANISM.
// An empty name means no authentication and returns nil.
func SASLMechanism(cfg config.KafkaConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(strings.TrimSpace(cfg.SASLMechanism)) {
	case "":
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism %q", cfg.SASLMechanism)
	}
}

// TLSConfig returns the client TLS settings, or nil when KAFKA_TLS is off.
func TLSConfig(cfg config.KafkaConfig, serverName string) *tls.Config {
	if !cfg.TLS {
		return nil
	}
	return &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
}

// Dialer builds a kafka.Dialer with TLS and SASL configured. An empty
// serverName lets kafka-go take it from each dialed address.
func Dialer(cfg config.KafkaConfig, serverName string) (*kafka.Dialer, error) {
	mech, err := SASLMechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       DialTimeout,
		DualStack:     true,
		TLS:           TLSConfig(cfg, serverName),
		SASLMechanism: mech,
	}, nil
}

// Transport builds a kafka.Transport with TLS and SASL configured.
func Transport(cfg config.KafkaConfig) (*kafka.Transport, error) {
	mech, err := SASLMechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		TLS:         TLSConfig(cfg, ""),
		SASL:        mech,
		DialTimeout: DialTimeout,
	}, nil
}

// Describe summarizes the security settings without secrets.
func Describe(cfg config.KafkaConfig) string {
	proto := "PLAINTEXT"
	switch {
	case cfg.TLS && cfg.SASLMechanism != "":
		proto = "SASL_SSL"
	case cfg.TLS:
		proto = "SSL"
	case cfg.SASLMechanism != "":
		proto = "SASL_PLAINTEXT"
	}
	if cfg.SASLMechanism == "" {
		return proto
	}
	return fmt.Sprintf("%s (%s as %s)", proto, strings.ToUpper(cfg.SASLMechanism), cfg.Username)
}
