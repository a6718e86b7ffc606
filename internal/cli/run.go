package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KafClaw/lorebot/internal/bus"
	"github.com/KafClaw/lorebot/internal/channels"
	"github.com/KafClaw/lorebot/internal/config"
	"github.com/KafClaw/lorebot/internal/gateway"
	"github.com/KafClaw/lorebot/internal/metrics"
	"github.com/KafClaw/lorebot/internal/timeline"
)

var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Connect to the chat platform and start answering",
	SilenceUsage: true,
	RunE:         runBot,
}

var (
	runSignalContext = signal.NotifyContext
	newChannel       = channels.New
)

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Level())

	b, err := bootstrap(cfg)
	if err != nil {
		return err
	}

	ctx, stop := runSignalContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, b)
}

// serve connects the platform channel and runs until ctx is done.
func serve(ctx context.Context, b *bot) error {
	cfg := b.cfg

	var tl *timeline.TimelineService
	if cfg.TimelineDB != "" {
		var err error
		if tl, err = timeline.NewTimelineService(cfg.TimelineDB); err != nil {
			return &config.ConfigError{Key: "TIMELINE_DB", Err: err}
		}
		defer tl.Close()
	}
	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
	}

	msgBus := bus.NewMessageBus()
	loop := gateway.New(gateway.Options{
		Bus:      msgBus,
		Engine:   b.engine,
		Reaction: cfg.DisableReaction,
		Timeline: tl,
		Metrics:  m,
	})
	ch, err := newChannel(cfg, msgBus, loop.OnDelivery)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("start %s channel: %w", ch.Name(), err)
	}

	// The dispatcher stops only after the gateway loop has returned.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := msgBus.DispatchOutbound(dispatchCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Bus: dispatcher stopped", "error", err)
		}
	}()
	if m != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("Metrics: server stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	slog.Info("lorebot: running",
		"platform", ch.Name(),
		"lore_lines", b.corpus.Len(),
		"triggers", b.triggers.Len(),
		"disablers", b.disablers.Len(),
		"chance", cfg.Chance,
		"disable_for", cfg.DisableFor,
	)
	err = loop.Run(ctx)

	stopDispatch()
	cancel()
	wg.Wait()
	if serr := ch.Stop(); serr != nil {
		slog.Warn("lorebot: channel stop failed", "channel", ch.Name(), "error", serr)
	}
	slog.Info("lorebot: stopped")
	return err
}
