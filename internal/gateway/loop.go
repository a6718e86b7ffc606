// Package gateway turns inbound chat events into engine decisions and
// outbound replies.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/engine"
	"github.com/KafClaw/lorebot/internal/metrics"
	"github.com/KafClaw/lorebot/internal/timeline"
)

// Options configures a Loop. Timeline and Metrics are optional.
type Options struct {
	Bus      *bus.MessageBus
	Engine   *engine.Engine
	Reaction string // emoji added to a message that suspended the bot; empty for none
	Timeline *timeline.TimelineService
	Metrics  *metrics.Metrics
}

// Loop consumes inbound messages and handles each one in its own goroutine.
type Loop struct {
	bus      *bus.MessageBus
	engine   *engine.Engine
	reaction string
	timeline *timeline.TimelineService
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func New(opts Options) *Loop {
	return &Loop{
		bus:      opts.Bus,
		engine:   opts.Engine,
		reaction: opts.Reaction,
		timeline: opts.Timeline,
		metrics:  opts.Metrics,
	}
}

// Run processes messages until ctx is cancelled, then waits for in-flight
// handlers before returning.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("Gateway: loop started")
	defer l.wg.Wait()

	for {
		msg, err := l.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Gateway: loop stopped")
				return nil
			}
			slog.Error("Gateway: failed to consume message", "error", err)
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(msg)
		}()
	}
}

func (l *Loop) handle(msg *bus.InboundMessage) {
	start := time.Now()
	d := l.engine.Decide(engine.Event{AuthorIsBot: msg.AuthorIsBot, Text: msg.Content})
	took := time.Since(start)

	log := slog.With("channel", msg.Channel, "chat_id", msg.ChatID, "message_id", msg.MessageID, "trace_id", msg.TraceID)
	var out *bus.OutboundMessage
	switch d.Outcome {
	case engine.OutcomeReply:
		out = &bus.OutboundMessage{Content: d.Reply}
		log.Info("Gateway: replying with lore")
	case engine.OutcomeSuspended:
		log.Info("Gateway: disabler matched, suspended", "until", time.Unix(d.Until, 0).UTC().Format(time.RFC3339))
		if l.metrics != nil {
			l.metrics.ObserveSuspension(d.Until)
		}
		if l.reaction != "" {
			out = &bus.OutboundMessage{Reaction: l.reaction}
		}
	default:
		log.Debug("Gateway: no reply", "outcome", d.Outcome.String())
	}
	if out != nil {
		out.Channel = msg.Channel
		out.ChatID = msg.ChatID
		out.ReplyTo = msg.MessageID
		out.SenderID = msg.SenderID
		out.TraceID = msg.TraceID
	}

	if l.metrics != nil {
		l.metrics.ObserveDecision(d.Outcome.String(), took)
	}
	l.record(msg, d, out != nil)

	if out != nil {
		l.bus.PublishOutbound(out)
	}
}

// record writes the decision before anything is published, so the delivery
// hook always finds the row it updates.
func (l *Loop) record(msg *bus.InboundMessage, d engine.Decision, publishing bool) {
	if l.timeline == nil {
		return
	}
	status := timeline.DeliveryNone
	if publishing {
		status = timeline.DeliveryPending
	}
	err := l.timeline.RecordDecision(&timeline.Decision{
		TraceID:        msg.TraceID,
		Channel:        msg.Channel,
		ChatID:         msg.ChatID,
		MessageID:      msg.MessageID,
		SenderID:       msg.SenderID,
		AuthorIsBot:    msg.AuthorIsBot,
		Outcome:        d.Outcome.String(),
		Reply:          d.Reply,
		SuspendedUntil: d.Until,
		DeliveryStatus: status,
		CreatedAt:      msg.Timestamp,
	})
	if err != nil {
		slog.Warn("Gateway: can't record decision", "trace_id", msg.TraceID, "error", err)
	}
}

// OnDelivery is the channels.DeliveryHook for this loop. It counts the
// attempt and stores the result on the decision's timeline row.
func (l *Loop) OnDelivery(msg *bus.OutboundMessage, err error) {
	kind := "reply"
	if msg.IsReaction() {
		kind = "reaction"
	}
	if l.metrics != nil {
		l.metrics.ObserveDelivery(msg.Channel, kind, err)
	}
	if l.timeline == nil {
		return
	}
	status, reason := timeline.DeliverySent, ""
	if err != nil {
		status, reason = timeline.DeliveryFailed, err.Error()
	}
	if uerr := l.timeline.UpdateDelivery(msg.TraceID, status, reason); uerr != nil {
		slog.Warn("Gateway: can't record delivery", "trace_id", msg.TraceID, "error", uerr)
	}
}
