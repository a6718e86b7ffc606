package cli

import (
	"errors"
	"log/slog"

	"github.com/KafClaw/lorebot/internal/config"
	"github.com/KafClaw/lorebot/internal/engine"
	"github.com/KafClaw/lorebot/internal/lore"
	"github.com/KafClaw/lorebot/internal/matcher"
	"github.com/KafClaw/lorebot/internal/suspend"
)

// bot is everything built from configuration before any platform connection.
type bot struct {
	cfg       *config.Config
	corpus    *lore.Corpus
	triggers  *matcher.Index
	disablers *matcher.Index
	clock     *suspend.Clock
	engine    *engine.Engine
}

// bootstrap loads the corpus, compiles both phrase sets and builds the engine.
// Every error is fatal and returned before anything starts.
func bootstrap(cfg *config.Config) (*bot, error) {
	corpus, err := lore.LoadCorpus(cfg.LoreFile, cfg.LoreSplitter)
	if err != nil {
		return nil, err
	}
	triggers, err := buildIndex("TRIGGERS", "TRIGGER_SPLITTER", cfg.Triggers, cfg.TriggerSplitter)
	if err != nil {
		return nil, err
	}
	disablers, err := buildIndex("DISABLERS", "DISABLE_SPLITTER", cfg.Disablers, cfg.DisableSplitter)
	if err != nil {
		return nil, err
	}

	clock := &suspend.Clock{}
	eng, err := engine.New(engine.Options{
		Corpus:    corpus,
		Triggers:  triggers,
		Disablers: disablers,
		Clock:     clock,
		Chance:    cfg.Probability(),
		Cooldown:  cfg.DisableFor,
	})
	if err != nil {
		return nil, err
	}
	return &bot{
		cfg:       cfg,
		corpus:    corpus,
		triggers:  triggers,
		disablers: disablers,
		clock:     clock,
		engine:    eng,
	}, nil
}

func buildIndex(key, splitterKey, raw, splitter string) (*matcher.Index, error) {
	phrases, err := lore.ParsePhrases(splitterKey, raw, splitter)
	if err != nil {
		return nil, err
	}
	if len(phrases) == 0 {
		slog.Warn("Config: phrase list is empty and will never match", "key", key)
	}
	ix, err := matcher.Build(phrases)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Key == "" {
			cfgErr.Key = key
		}
		return nil, err
	}
	return ix, nil
}
