package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// defaultedKeys are settings that fall back to a default when unset.
// A warning is logged for each one so a misnamed variable is noticed.
var defaultedKeys = []string{
	"CHANCE",
	"LORE_FILE",
	"LORE_SPLITTER",
	"TRIGGER_SPLITTER",
	"DISABLE_SPLITTER",
	"DISABLE_FOR",
}

// Load loads the configuration from environment variables.
// Env files are read first but never override variables already set.
// Any failure is returned as a *ConfigError.
func Load() (*Config, error) {
	LoadEnvFileCandidates()

	cfg := &Config{}
	if err := process("", cfg); err != nil {
		return nil, err
	}
	// Platform groups carry fully qualified keys, so no prefix is applied.
	for _, spec := range []any{&cfg.Discord, &cfg.Slack, &cfg.WhatsApp, &cfg.Kafka} {
		if err := process("", spec); err != nil {
			return nil, err
		}
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))

	for _, key := range defaultedKeys {
		if _, ok := os.LookupEnv(key); !ok {
			slog.Warn("Config: setting not found in the environment, using default", "key", key, "default", defaultFor(cfg, key))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func process(prefix string, spec any) error {
	err := envconfig.Process(prefix, spec)
	if err == nil {
		return nil
	}
	var perr *envconfig.ParseError
	if errors.As(err, &perr) {
		return &ConfigError{Key: perr.KeyName, Err: fmt.Errorf("cannot parse %q as %s: %w", perr.Value, perr.TypeName, perr.Err)}
	}
	return &ConfigError{Err: err}
}

func defaultFor(cfg *Config, key string) string {
	switch key {
	case "CHANCE":
		return fmt.Sprintf("%v", cfg.Chance)
	case "LORE_FILE":
		return cfg.LoreFile
	case "LORE_SPLITTER":
		return cfg.LoreSplitter
	case "TRIGGER_SPLITTER":
		return cfg.TriggerSplitter
	case "DISABLE_SPLITTER":
		return cfg.DisableSplitter
	case "DISABLE_FOR":
		return fmt.Sprintf("%d", cfg.DisableFor)
	}
	return ""
}
