package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/config"
	"github.com/KafClaw/lorebot/internal/kshark"
)

// KafkaChannel relays chat traffic through Kafka topics. Another process
// bridges the real chat platform: it produces bus.InboundMessage JSON to the
// inbound topic and consumes bus.OutboundMessage JSON from the outbound topic.
type KafkaChannel struct {
	BaseChannel
	config config.KafkaConfig
	reader *kafka.Reader
	writer *kafka.Writer
	done   chan struct{}
	once   sync.Once
}

func NewKafkaChannel(cfg config.KafkaConfig, messageBus *bus.MessageBus) *KafkaChannel {
	return &KafkaChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *KafkaChannel) Name() string { return config.PlatformKafka }

func (c *KafkaChannel) Start(ctx context.Context) error {
	rcfg, err := c.readerConfig()
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	transport, err := kshark.Transport(c.config)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	c.reader = kafka.NewReader(rcfg)
	c.writer = &kafka.Writer{
		Addr:         kafka.TCP(rcfg.Brokers...),
		Topic:        c.config.OutboundTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	c.subscribe(ctx, c.Name(), c.Send)
	c.done = make(chan struct{})
	go c.consume(ctx)
	slog.Info("Kafka: relay started", "brokers", rcfg.Brokers, "inbound", c.config.InboundTopic, "outbound", c.config.OutboundTopic)
	return nil
}

// readerConfig leaves the TLS server name empty so kafka-go verifies each
// connection against the host it actually dials.
func (c *KafkaChannel) readerConfig() (kafka.ReaderConfig, error) {
	brokers := c.config.BrokerList()
	if len(brokers) == 0 {
		return kafka.ReaderConfig{}, errors.New("no brokers configured")
	}
	dialer, err := kshark.Dialer(c.config, "")
	if err != nil {
		return kafka.ReaderConfig{}, err
	}
	return kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: c.config.GroupID,
		Topic:   c.config.InboundTopic,
		Dialer:  dialer,
	}, nil
}

func (c *KafkaChannel) consume(ctx context.Context) {
	defer close(c.done)
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			slog.Error("Kafka: read failed", "topic", c.config.InboundTopic, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		msg, err := decodeInbound(m.Value)
		if err != nil {
			slog.Warn("Kafka: dropping malformed inbound record", "topic", m.Topic, "offset", m.Offset, "error", err)
			continue
		}
		c.publish(msg)
	}
}

// decodeInbound parses a relayed message. The record's own channel field is
// overwritten so replies route back through Kafka.
func decodeInbound(value []byte) (*bus.InboundMessage, error) {
	var msg bus.InboundMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, err
	}
	if msg.ChatID == "" {
		return nil, errors.New("missing chat_id")
	}
	msg.Channel = config.PlatformKafka
	return &msg, nil
}

func (c *KafkaChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.writer == nil {
		return errors.New("kafka: writer not started")
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.ChatID), Value: value})
}

func (c *KafkaChannel) Stop() error {
	var errs []error
	c.once.Do(func() {
		if c.reader != nil {
			errs = append(errs, c.reader.Close())
		}
		if c.done != nil {
			<-c.done
		}
		c.wait()
		if c.writer != nil {
			errs = append(errs, c.writer.Close())
		}
	})
	return errors.Join(errs...)
}
