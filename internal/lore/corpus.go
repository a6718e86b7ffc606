// Package lore loads the reply corpus and the trigger/disabler phrase sets.
package lore

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/KafClaw/lorebot/internal/config"
)

// Corpus is the immutable, non-empty list of reply lines.
type Corpus struct {
	lines []string
}

// LoadCorpus reads path, splits it on delimiter and trims every line.
// Blank lines are dropped; a corpus with no lines left is an error.
func LoadCorpus(path, delimiter string) (*Corpus, error) {
	sep, err := config.ParseSplitter("LORE_SPLITTER", delimiter)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &config.ConfigError{Key: "LORE_FILE", Err: fmt.Errorf("failed to read %s: %w", path, err)}
	}
	c, err := NewCorpus(split(string(data), sep, false))
	if err != nil {
		return nil, &config.ConfigError{Key: "LORE_FILE", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return c, nil
}

// ErrEmptyCorpus is returned when no lore lines remain after trimming.
var ErrEmptyCorpus = errors.New("lore corpus is empty")

// NewCorpus builds a corpus from already split lines.
func NewCorpus(lines []string) (*Corpus, error) {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyCorpus
	}
	return &Corpus{lines: out}, nil
}

// Len returns the number of lines.
func (c *Corpus) Len() int { return len(c.lines) }

// Line returns the i-th line.
func (c *Corpus) Line(i int) string { return c.lines[i] }

// Pick returns one line chosen uniformly with intn, which must return a value in [0,n).
// A nil intn uses math/rand/v2, which is safe for concurrent use.
func (c *Corpus) Pick(intn func(n int) int) string {
	if intn == nil {
		intn = rand.IntN
	}
	return c.lines[intn(len(c.lines))]
}

// ParsePhrases splits raw on delimiter and returns trimmed, lower-cased,
// non-empty phrases in their original order. key names the setting in errors.
func ParsePhrases(key, raw, delimiter string) ([]string, error) {
	sep, err := config.ParseSplitter(key, delimiter)
	if err != nil {
		return nil, err
	}
	return split(raw, sep, true), nil
}

func split(raw string, sep rune, lower bool) []string {
	parts := strings.Split(raw, string(sep))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if lower {
			p = strings.ToLower(p)
		}
		out = append(out, p)
	}
	return out
}
