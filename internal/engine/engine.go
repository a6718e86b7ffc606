// Package engine decides, for one chat message, whether lorebot replies,
// stays quiet, or suspends itself.
package engine

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/KafClaw/lorebot/internal/lore"
	"github.com/KafClaw/lorebot/internal/matcher"
	"github.com/KafClaw/lorebot/internal/suspend"
)

// Outcome is the terminal branch a message reached.
type Outcome int

const (
	// OutcomeSuspended means a disabler phrase matched and the bot is now cooling down.
	OutcomeSuspended Outcome = iota
	// OutcomeIgnoredBot means the author is a bot.
	OutcomeIgnoredBot
	// OutcomeChanceMissed means the random draw failed.
	OutcomeChanceMissed
	// OutcomeCooling means an earlier disabler match is still in effect.
	OutcomeCooling
	// OutcomeNoTrigger means no trigger phrase matched.
	OutcomeNoTrigger
	// OutcomeReply means a lore line should be sent.
	OutcomeReply
)

var outcomeNames = [...]string{
	OutcomeSuspended:    "suspended",
	OutcomeIgnoredBot:   "ignored_bot",
	OutcomeChanceMissed: "chance_missed",
	OutcomeCooling:      "cooling",
	OutcomeNoTrigger:    "no_trigger",
	OutcomeReply:        "reply",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome, in evaluation order.
func Outcomes() []Outcome {
	return []Outcome{OutcomeSuspended, OutcomeIgnoredBot, OutcomeChanceMissed, OutcomeCooling, OutcomeNoTrigger, OutcomeReply}
}

// Event is the part of an inbound chat message the engine looks at.
type Event struct {
	AuthorIsBot bool
	Text        string
}

// Decision is the result of evaluating one Event.
type Decision struct {
	Outcome Outcome
	// Reply is the lore line to send; set only for OutcomeReply.
	Reply string
	// Until is the suspension end (unix seconds) written for OutcomeSuspended.
	Until int64
}

// Options configures an Engine. Corpus, Triggers, Disablers and Clock are required.
type Options struct {
	Corpus    *lore.Corpus
	Triggers  *matcher.Index
	Disablers *matcher.Index
	Clock     *suspend.Clock

	// Chance is the reply probability in [0,1].
	Chance float64
	// Cooldown is the suspension length in seconds.
	Cooldown int64

	// Test seams; nil means the real implementation.
	Now  func() int64
	Draw func(p float64) bool
	Pick func(n int) int
}

// Engine is safe for concurrent use. Its only mutable state is the shared Clock.
type Engine struct {
	corpus    *lore.Corpus
	triggers  *matcher.Index
	disablers *matcher.Index
	clock     *suspend.Clock
	chance    float64
	cooldown  int64

	now  func() int64
	draw func(p float64) bool
	pick func(n int) int
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Corpus == nil || opts.Corpus.Len() == 0:
		return nil, lore.ErrEmptyCorpus
	case opts.Triggers == nil || opts.Disablers == nil:
		return nil, errors.New("engine: trigger and disabler indexes are required")
	case opts.Clock == nil:
		return nil, errors.New("engine: clock is required")
	case opts.Chance < 0 || opts.Chance > 1:
		return nil, errors.New("engine: chance must be within [0,1]")
	case opts.Cooldown < 0:
		return nil, errors.New("engine: cooldown must not be negative")
	}
	e := &Engine{
		corpus:    opts.Corpus,
		triggers:  opts.Triggers,
		disablers: opts.Disablers,
		clock:     opts.Clock,
		chance:    opts.Chance,
		cooldown:  opts.Cooldown,
		now:       opts.Now,
		draw:      opts.Draw,
		pick:      opts.Pick,
	}
	if e.now == nil {
		e.now = suspend.Now
	}
	if e.draw == nil {
		e.draw = drawBool
	}
	if e.pick == nil {
		e.pick = rand.IntN
	}
	return e, nil
}

// drawBool succeeds with probability p. rand.Float64 is in [0,1), so p=1
// always succeeds and p=0 never does.
func drawBool(p float64) bool {
	return rand.Float64() < p
}

// Decide evaluates ev. The checks run in a fixed order and stop at the first
// terminal branch: disabler, bot author, chance, active suspension, trigger.
func (e *Engine) Decide(ev Event) Decision {
	lowered := strings.ToLower(ev.Text)

	if e.disablers.Match(lowered) {
		now := e.now()
		e.clock.Suspend(now, e.cooldown)
		return Decision{Outcome: OutcomeSuspended, Until: now + e.cooldown}
	}
	if ev.AuthorIsBot {
		return Decision{Outcome: OutcomeIgnoredBot}
	}
	if !e.draw(e.chance) {
		return Decision{Outcome: OutcomeChanceMissed}
	}
	if e.clock.IsSuspended(e.now()) {
		return Decision{Outcome: OutcomeCooling}
	}
	if !e.triggers.Match(lowered) {
		return Decision{Outcome: OutcomeNoTrigger}
	}
	return Decision{Outcome: OutcomeReply, Reply: e.corpus.Pick(e.pick)}
}

// SuspendedUntil exposes the shared clock's current window end.
func (e *Engine) SuspendedUntil() int64 {
	return e.clock.Until()
}
