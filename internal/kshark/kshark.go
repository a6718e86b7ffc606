// Package kshark checks that the Kafka relay's brokers and topics are reachable.
package kshark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/lorebot/internal/config"
)

// Run probes every broker (DNS, TCP, Kafka handshake with the configured
// TLS and SASL) and then checks that the relay topics are visible.
func Run(ctx context.Context, cfg config.KafkaConfig) (*Report, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("kshark: no brokers configured")
	}
	if _, err := SASLMechanism(cfg); err != nil {
		return nil, fmt.Errorf("kshark: %w", err)
	}

	r := &Report{StartedAt: time.Now()}
	slog.Debug("Kshark: scan start", "brokers", brokers, "security", Describe(cfg))

	var reachable *kafka.Conn
	for _, b := range brokers {
		if ctx.Err() != nil {
			r.add(Row{"kshark", L7, FAIL, "Context done during broker checks", ""})
			break
		}
		host, _, err := net.SplitHostPort(b)
		if err != nil {
			r.add(Row{b, L3, FAIL, "Invalid host:port", "Fix KAFKA_BROKERS format (host:port)."})
			continue
		}
		if !checkDNS(ctx, r, host) || !checkTCP(ctx, r, b) {
			continue
		}
		conn := kafkaConn(ctx, r, cfg, host, b)
		if conn == nil {
			continue
		}
		if reachable == nil {
			reachable = conn
		} else {
			_ = conn.Close()
		}
	}

	if reachable == nil {
		r.add(Row{"topics", L7, SKIP, "No reachable broker; topic checks skipped", ""})
	} else {
		checkTopics(r, reachable, cfg.InboundTopic, cfg.OutboundTopic)
		_ = reachable.Close()
	}

	r.FinishedAt = time.Now()
	slog.Debug("Kshark: scan finished", "duration", r.FinishedAt.Sub(r.StartedAt), "failed", r.HasFailed)
	return r, nil
}

func checkDNS(ctx context.Context, r *Report, host string) bool {
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		r.add(Row{host, L3, FAIL, fmt.Sprintf("DNS lookup failed: %v", err),
			"Check /etc/hosts, DNS server, split-horizon/VPN search domains."})
		return false
	}
	r.add(Row{host, L3, OK, "Resolved host", ""})
	return true
}

func checkTCP(ctx context.Context, r *Report, addr string) bool {
	start := time.Now()
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		r.add(Row{addr, L4, FAIL, fmt.Sprintf("TCP connect failed: %v", err),
			"Firewall, security groups, LB listeners, or routing."})
		return false
	}
	_ = conn.Close()
	r.add(Row{addr, L4, OK, fmt.Sprintf("Connected in %s", time.Since(start).Truncate(time.Millisecond)), ""})
	return true
}

func kafkaConn(ctx context.Context, r *Report, cfg config.KafkaConfig, host, addr string) *kafka.Conn {
	dialer, err := Dialer(cfg, host)
	if err != nil {
		r.add(Row{addr, L7, FAIL, fmt.Sprintf("dialer error: %v", err), "Check KAFKA_TLS and KAFKA_SASL_* settings."})
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		r.add(Row{addr, L7, FAIL, fmt.Sprintf("broker dial failed: %v", err), "Auth/TLS mismatch or listener not exposed."})
		return nil
	}
	if _, err := conn.ApiVersions(); err != nil {
		r.add(Row{addr, L7, FAIL, fmt.Sprintf("ApiVersions failed: %v", err), "Broker incompatible or proxy interfering."})
		_ = conn.Close()
		return nil
	}
	r.add(Row{addr, L7, OK, "ApiVersions OK (" + Describe(cfg) + ")", ""})
	return conn
}

func checkTopics(r *Report, conn *kafka.Conn, topics ...string) {
	parts, err := conn.ReadPartitions()
	if err != nil {
		r.add(Row{"topics", L7, FAIL, fmt.Sprintf("ReadPartitions failed: %v", err), "Grant Describe on the relay topics."})
		return
	}
	for _, topic := range topics {
		r.add(topicRow(parts, topic))
	}
}

func topicRow(parts []kafka.Partition, topic string) Row {
	var found bool
	var leaders int
	for _, pt := range parts {
		if pt.Topic != topic {
			continue
		}
		found = true
		if pt.Leader.Host != "" {
			leaders++
		}
	}
	switch {
	case !found:
		return Row{topic, L7, FAIL, "Topic not found / not authorized", "Create the topic or grant Describe on it."}
	case leaders == 0:
		return Row{topic, L7, WARN, "Topic visible but no partition has a leader", "Check broker health."}
	default:
		return Row{topic, L7, OK, fmt.Sprintf("Topic visible; leader partitions=%d", leaders), ""}
	}
}
