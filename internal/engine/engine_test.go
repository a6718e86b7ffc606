package engine

import (
	"errors"
	"testing"

	"github.com/KafClaw/lorebot/internal/lore"
	"github.com/KafClaw/lorebot/internal/matcher"
	"github.com/KafClaw/lorebot/internal/suspend"
)

type fixture struct {
	engine *Engine
	clock  *suspend.Clock
	now    int64
	draws  int
}

// newFixture builds the engine used by the end-to-end scenarios:
// triggers ["lore"], disablers ["shutup"], corpus ["A", "B"].
func newFixture(t *testing.T, chance float64, cooldown int64) *fixture {
	t.Helper()
	corpus, err := lore.NewCorpus([]string{"A", "B"})
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	triggers, err := matcher.Build([]string{"lore"})
	if err != nil {
		t.Fatalf("triggers: %v", err)
	}
	disablers, err := matcher.Build([]string{"shutup"})
	if err != nil {
		t.Fatalf("disablers: %v", err)
	}
	f := &fixture{clock: &suspend.Clock{}, now: 1_700_000_000}
	f.engine, err = New(Options{
		Corpus:    corpus,
		Triggers:  triggers,
		Disablers: disablers,
		Clock:     f.clock,
		Chance:    chance,
		Cooldown:  cooldown,
		Now:       func() int64 { return f.now },
		Draw: func(p float64) bool {
			f.draws++
			return drawBool(p)
		},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return f
}

func TestScenarioTriggerReplies(t *testing.T) {
	f := newFixture(t, 1, 600)
	d := f.engine.Decide(Event{Text: "tell me the Lore"})
	if d.Outcome != OutcomeReply {
		t.Fatalf("expected reply, got %v", d.Outcome)
	}
	if d.Reply != "A" && d.Reply != "B" {
		t.Fatalf("unexpected reply %q", d.Reply)
	}
}

func TestScenarioDisablerSuspends(t *testing.T) {
	f := newFixture(t, 1, 600)
	d := f.engine.Decide(Event{Text: "please shutup now"})
	if d.Outcome != OutcomeSuspended || d.Reply != "" {
		t.Fatalf("expected silent suspension, got %+v", d)
	}
	if d.Until != f.now+600 || f.clock.Until() != f.now+600 {
		t.Fatalf("expected suspension until %d, got %d / %d", f.now+600, d.Until, f.clock.Until())
	}

	f.now += 599
	if d := f.engine.Decide(Event{Text: "lore?"}); d.Outcome != OutcomeCooling {
		t.Fatalf("expected cooling inside window, got %v", d.Outcome)
	}
	f.now++
	if d := f.engine.Decide(Event{Text: "lore?"}); d.Outcome != OutcomeCooling {
		t.Fatalf("expected cooling at inclusive window end, got %v", d.Outcome)
	}
	f.now++
	if d := f.engine.Decide(Event{Text: "lore?"}); d.Outcome != OutcomeReply {
		t.Fatalf("expected reply after window, got %v", d.Outcome)
	}
}

func TestScenarioZeroChanceNeverReplies(t *testing.T) {
	f := newFixture(t, 0, 600)
	for i := 0; i < 1000; i++ {
		if d := f.engine.Decide(Event{Text: "LORE lore lore"}); d.Outcome == OutcomeReply {
			t.Fatalf("reply with zero chance on iteration %d", i)
		}
	}
}

func TestDisablerTakesPrecedenceOverTrigger(t *testing.T) {
	f := newFixture(t, 1, 60)
	d := f.engine.Decide(Event{Text: "lore? no, SHUTUP"})
	if d.Outcome != OutcomeSuspended {
		t.Fatalf("expected suspension, got %v", d.Outcome)
	}
	if !f.clock.IsSuspended(f.now) {
		t.Fatal("expected clock to be suspended")
	}
	if f.draws != 0 {
		t.Fatalf("chance should not be drawn for a disabler match, drew %d", f.draws)
	}
}

func TestBotAuthoredNeverReplies(t *testing.T) {
	f := newFixture(t, 1, 60)
	d := f.engine.Decide(Event{AuthorIsBot: true, Text: "lore"})
	if d.Outcome != OutcomeIgnoredBot {
		t.Fatalf("expected bot message to be ignored, got %v", d.Outcome)
	}
	if f.draws != 0 {
		t.Fatalf("chance should not be drawn for bots, drew %d", f.draws)
	}
}

func TestBotCanStillSuspend(t *testing.T) {
	f := newFixture(t, 1, 60)
	if d := f.engine.Decide(Event{AuthorIsBot: true, Text: "shutup"}); d.Outcome != OutcomeSuspended {
		t.Fatalf("expected bot disabler to suspend, got %v", d.Outcome)
	}
}

func TestChanceDrawnBeforeSuspensionCheck(t *testing.T) {
	f := newFixture(t, 0, 60)
	f.clock.Suspend(f.now, 60)
	if d := f.engine.Decide(Event{Text: "lore"}); d.Outcome != OutcomeChanceMissed {
		t.Fatalf("expected chance miss before cooling check, got %v", d.Outcome)
	}
	if f.draws != 1 {
		t.Fatalf("expected one draw, got %d", f.draws)
	}
}

func TestNoTrigger(t *testing.T) {
	f := newFixture(t, 1, 60)
	if d := f.engine.Decide(Event{Text: "nothing to see"}); d.Outcome != OutcomeNoTrigger {
		t.Fatalf("expected no trigger, got %v", d.Outcome)
	}
}

func TestZeroCooldownSuspendsForCurrentSecond(t *testing.T) {
	f := newFixture(t, 1, 0)
	f.engine.Decide(Event{Text: "shutup"})
	if d := f.engine.Decide(Event{Text: "lore"}); d.Outcome != OutcomeCooling {
		t.Fatalf("expected cooling in the same second, got %v", d.Outcome)
	}
	f.now++
	if d := f.engine.Decide(Event{Text: "lore"}); d.Outcome != OutcomeReply {
		t.Fatalf("expected reply one second later, got %v", d.Outcome)
	}
}

func TestReplyIsVerbatimLine(t *testing.T) {
	corpus, _ := lore.NewCorpus([]string{"The Elder LORE, Unchanged!"})
	triggers, _ := matcher.Build([]string{"lore"})
	disablers, _ := matcher.Build(nil)
	e, err := New(Options{Corpus: corpus, Triggers: triggers, Disablers: disablers, Clock: &suspend.Clock{}, Chance: 1})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	d := e.Decide(Event{Text: "lore"})
	if d.Reply != "The Elder LORE, Unchanged!" {
		t.Fatalf("expected verbatim line, got %q", d.Reply)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	corpus, _ := lore.NewCorpus([]string{"A"})
	ix, _ := matcher.Build([]string{"x"})
	base := Options{Corpus: corpus, Triggers: ix, Disablers: ix, Clock: &suspend.Clock{}, Chance: 0.5}

	if _, err := New(base); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
	bad := []func(o *Options){
		func(o *Options) { o.Corpus = nil },
		func(o *Options) { o.Triggers = nil },
		func(o *Options) { o.Clock = nil },
		func(o *Options) { o.Chance = 1.5 },
		func(o *Options) { o.Cooldown = -1 },
	}
	for i, mutate := range bad {
		o := base
		mutate(&o)
		if _, err := New(o); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	o := base
	o.Corpus = nil
	if _, err := New(o); !errors.Is(err, lore.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
}

func TestOutcomeString(t *testing.T) {
	seen := map[string]bool{}
	for _, o := range Outcomes() {
		s := o.String()
		if s == "unknown" || seen[s] {
			t.Fatalf("bad or duplicate outcome name %q", s)
		}
		seen[s] = true
	}
	if Outcome(99).String() != "unknown" {
		t.Fatal("expected unknown for out of range outcome")
	}
}
