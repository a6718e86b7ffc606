package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/config"
)

// WhatsAppChannel implements a native WhatsApp client linked as a companion device.
type WhatsAppChannel struct {
	BaseChannel
	client    *whatsmeow.Client
	config    config.WhatsAppConfig
	container *sqlstore.Container
}

// NewWhatsAppChannel creates a new WhatsApp channel.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, messageBus *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *WhatsAppChannel) Name() string { return config.PlatformWhatsApp }

// dbPath returns the session store location, defaulting to ~/.lorebot/whatsapp.db.
func (c *WhatsAppChannel) dbPath() string {
	if p := strings.TrimSpace(c.config.DB); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lorebot", "whatsapp.db")
}

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	dbPath := c.dbPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("whatsapp: create store dir: %w", err)
	}

	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "WARN", true)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("whatsapp: init store: %w", err)
	}
	c.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: get device: %w", err)
	}
	c.client = whatsmeow.NewClient(deviceStore, clientLog)
	c.client.AddEventHandler(c.eventHandler)
	c.subscribe(ctx, c.Name(), c.Send)

	if c.client.Store.ID != nil {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		slog.Info("WhatsApp: connected", "jid", c.client.Store.ID.String())
		return nil
	}
	return c.pair(ctx, filepath.Join(filepath.Dir(dbPath), "whatsapp-qr.png"))
}

// pair links a new device, writing each QR code to qrPath until the phone
// scans one or pairing fails.
func (c *WhatsAppChannel) pair(ctx context.Context, qrPath string) error {
	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: qr channel: %w", err)
	}
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err != nil {
				slog.Warn("WhatsApp: can't write QR code", "path", qrPath, "error", err)
				continue
			}
			slog.Info("WhatsApp: scan the QR code to link this device", "path", qrPath)
		case "success":
			slog.Info("WhatsApp: device linked")
			return nil
		default:
			slog.Warn("WhatsApp: pairing event", "event", evt.Event)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("whatsapp: pairing ended without success")
}

func (c *WhatsAppChannel) Stop() error {
	c.wait()
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

func (c *WhatsAppChannel) eventHandler(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if msg := whatsAppInbound(v); msg != nil {
			c.publish(msg)
		}
	case *events.LoggedOut:
		slog.Error("WhatsApp: logged out, delete the session store and pair again", "reason", v.Reason)
	}
}

// whatsAppInbound converts a message event. Messages sent from the linked
// account itself are flagged as bot-authored.
func whatsAppInbound(v *events.Message) *bus.InboundMessage {
	if v == nil {
		return nil
	}
	text := messageText(v.Message)
	if text == "" {
		return nil
	}
	return &bus.InboundMessage{
		Channel:     config.PlatformWhatsApp,
		ChatID:      v.Info.Chat.String(),
		MessageID:   string(v.Info.ID),
		SenderID:    v.Info.Sender.String(),
		AuthorIsBot: v.Info.IsFromMe,
		Content:     text,
		Timestamp:   v.Info.Timestamp,
	}
}

// messageText extracts the human-written text of a message, including media captions.
func messageText(m *waE2E.Message) string {
	switch {
	case m == nil:
		return ""
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage().GetCaption() != "":
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage().GetCaption() != "":
		return m.GetVideoMessage().GetCaption()
	}
	return ""
}

// quotedReply builds a text message quoting the message it answers.
func quotedReply(msg *bus.OutboundMessage) *waE2E.Message {
	if msg.ReplyTo == "" {
		return &waE2E.Message{Conversation: proto.String(msg.Content)}
	}
	ctxInfo := &waE2E.ContextInfo{
		StanzaID:      proto.String(msg.ReplyTo),
		QuotedMessage: &waE2E.Message{Conversation: proto.String("")},
	}
	if msg.SenderID != "" {
		ctxInfo.Participant = proto.String(msg.SenderID)
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(msg.Content),
			ContextInfo: ctxInfo,
		},
	}
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.client == nil {
		return errors.New("whatsapp: client not initialized")
	}
	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid chat JID: %w", err)
	}

	waMsg := quotedReply(msg)
	if msg.IsReaction() {
		sender, err := types.ParseJID(msg.SenderID)
		if err != nil {
			return fmt.Errorf("whatsapp: invalid sender JID: %w", err)
		}
		waMsg = c.client.BuildReaction(jid, sender, types.MessageID(msg.ReplyTo), msg.Reaction)
	}
	_, err = c.client.SendMessage(ctx, jid, waMsg)
	return err
}
