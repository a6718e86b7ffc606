package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/config"
)

// SlackChannel receives messages over Socket Mode and replies in thread.
type SlackChannel struct {
	BaseChannel
	config config.SlackConfig
	api    *slack.Client
	done   chan struct{}
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return config.PlatformSlack }

func (c *SlackChannel) Start(ctx context.Context) error {
	c.api = slack.New(strings.TrimSpace(c.config.BotToken), slack.OptionAppLevelToken(strings.TrimSpace(c.config.AppToken)))
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	slog.Info("Slack: authenticated", "team", auth.Team, "user", auth.User)

	client := socketmode.New(c.api)
	c.subscribe(ctx, c.Name(), c.Send)
	c.done = make(chan struct{})
	go c.readEvents(ctx, client)
	go func() {
		defer close(c.done)
		if err := client.RunContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Slack: socket mode stopped", "error", err)
		}
	}()
	return nil
}

func (c *SlackChannel) Stop() error {
	c.wait()
	if c.done != nil {
		<-c.done
	}
	return nil
}

func (c *SlackChannel) readEvents(ctx context.Context, client *socketmode.Client) {
	for {
		var evt socketmode.Event
		select {
		case <-ctx.Done():
			return
		case evt = <-client.Events:
		}
		switch evt.Type {
		case socketmode.EventTypeConnected:
			slog.Info("Slack: socket mode connected")
		case socketmode.EventTypeEventsAPI:
			if evt.Request != nil {
				client.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || ev.Type != slackevents.CallbackEvent {
				continue
			}
			if in, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				if msg := slackInbound(in); msg != nil {
					c.publish(msg)
				}
			}
		}
	}
}

// slackInbound converts a message event, dropping edits, deletions and
// other housekeeping subtypes. Bot posts are kept and flagged.
func slackInbound(in *slackevents.MessageEvent) *bus.InboundMessage {
	if in == nil {
		return nil
	}
	isBot := in.BotID != "" || in.SubType == "bot_message"
	if in.SubType != "" && in.SubType != "bot_message" && in.SubType != "thread_broadcast" {
		return nil
	}
	sender := in.User
	if sender == "" {
		sender = in.BotID
	}
	return &bus.InboundMessage{
		Channel:     config.PlatformSlack,
		ChatID:      in.Channel,
		MessageID:   in.TimeStamp,
		SenderID:    sender,
		AuthorIsBot: isBot,
		Content:     in.Text,
	}
}

// Send posts a thread reply to msg.ReplyTo, or adds a reaction to it.
// Slack reactions are emoji names such as "zipper_mouth_face".
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.api == nil {
		return errors.New("slack: client not started")
	}
	if msg.IsReaction() {
		name := strings.Trim(msg.Reaction, ":")
		return c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(msg.ChatID, msg.ReplyTo))
	}
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	_, _, err := c.api.PostMessageContext(ctx, msg.ChatID, opts...)
	return err
}
