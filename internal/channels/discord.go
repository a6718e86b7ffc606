package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/config"
)

// DiscordIntents are the gateway events lorebot needs: message events in
// guilds and DMs, with content.
const DiscordIntents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

// DiscordChannel connects to the Discord gateway with a bot token.
type DiscordChannel struct {
	BaseChannel
	config  config.DiscordConfig
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *DiscordChannel) Name() string { return config.PlatformDiscord }

func (c *DiscordChannel) Start(ctx context.Context) error {
	s, err := discordgo.New("Bot " + c.config.Token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = DiscordIntents
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord: connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleInbound(m.Message)
	})

	c.subscribe(ctx, c.Name(), c.Send)
	if err := s.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	c.session = s
	return nil
}

func (c *DiscordChannel) Stop() error {
	c.wait()
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *DiscordChannel) handleInbound(m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	c.publish(&bus.InboundMessage{
		Channel:     c.Name(),
		ChatID:      m.ChannelID,
		MessageID:   m.ID,
		SenderID:    m.Author.ID,
		AuthorIsBot: m.Author.Bot,
		Content:     m.Content,
	})
}

// Send replies to msg.ReplyTo, or reacts to it when msg is a reaction.
func (c *DiscordChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.session == nil {
		return errors.New("discord: session not open")
	}
	if msg.IsReaction() {
		return c.session.MessageReactionAdd(msg.ChatID, msg.ReplyTo, msg.Reaction, discordgo.WithContext(ctx))
	}
	var ref *discordgo.MessageReference
	if msg.ReplyTo != "" {
		ref = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
	}
	_, err := c.session.ChannelMessageSendReply(msg.ChatID, msg.Content, ref, discordgo.WithContext(ctx))
	return err
}
