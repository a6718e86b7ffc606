// Package metrics exposes lorebot's decision and delivery counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lorebot"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	DecisionsTotal  *prometheus.CounterVec
	DeliveriesTotal *prometheus.CounterVec
	DecisionSeconds prometheus.Histogram
	SuspendedUntil  prometheus.Gauge
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Engine decisions by outcome",
		}, []string{"outcome"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound delivery attempts by channel, kind and result",
		}, []string{"channel", "kind", "result"}),
		DecisionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding one inbound message",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SuspendedUntil: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suspended_until_seconds",
			Help:      "Unix time at which the current suspension ends, 0 if never suspended",
		}),
	}
	m.registry.MustRegister(
		m.DecisionsTotal,
		m.DeliveriesTotal,
		m.DecisionSeconds,
		m.SuspendedUntil,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDecision counts one decision and its latency.
func (m *Metrics) ObserveDecision(outcome string, took time.Duration) {
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
	m.DecisionSeconds.Observe(took.Seconds())
}

// ObserveSuspension records the end of the latest suspension window.
func (m *Metrics) ObserveSuspension(until int64) {
	m.SuspendedUntil.Set(float64(until))
}

// ObserveDelivery counts one delivery attempt. kind is "reply" or "reaction".
func (m *Metrics) ObserveDelivery(channel, kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.DeliveriesTotal.WithLabelValues(channel, kind, result).Inc()
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Metrics: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
