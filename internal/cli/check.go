package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/lorebot/internal/config"
	"github.com/KafClaw/lorebot/internal/kshark"
)

var (
	checkText  string
	checkProbe bool
)

var runProbe = kshark.Run

var checkCmd = &cobra.Command{
	Use:          "check",
	Short:        "Validate configuration and lore without connecting",
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkText, "text", "", "Evaluate a sample message against the trigger and disabler phrases")
	checkCmd.Flags().BoolVar(&checkProbe, "probe", false, "Probe broker reachability and relay topics (kafka platform only)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Level())
	b, err := bootstrap(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHeader(out, "🔎 lorebot Check")
	fmt.Fprintf(out, "Platform:  %s\n", cfg.Platform)
	fmt.Fprintf(out, "Lore:      %s %d lines from %s\n", okMark(true), b.corpus.Len(), cfg.LoreFile)
	fmt.Fprintf(out, "Triggers:  %s %d phrases (%d states)\n", okMark(b.triggers.Len() > 0), b.triggers.Len(), b.triggers.States())
	fmt.Fprintf(out, "Disablers: %s %d phrases (%d states)\n", okMark(b.disablers.Len() > 0), b.disablers.Len(), b.disablers.States())
	fmt.Fprintf(out, "Chance:    %g%%\n", cfg.Chance)
	fmt.Fprintf(out, "Cooldown:  %ds\n", cfg.DisableFor)
	if cfg.DisableReaction != "" {
		fmt.Fprintf(out, "Reaction:  %s\n", cfg.DisableReaction)
	}
	if cfg.TimelineDB != "" {
		fmt.Fprintf(out, "Timeline:  %s\n", cfg.TimelineDB)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(out, "Metrics:   http://%s/metrics\n", cfg.MetricsAddr)
	}

	if checkText != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, describeText(b, checkText))
	}
	if checkProbe {
		if err := probeRelay(cmd, cfg); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, color.GreenString("Configuration OK"))
	return nil
}

func probeRelay(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	if cfg.Platform != config.PlatformKafka {
		fmt.Fprintf(out, "Probe:     skipped, only the kafka platform has brokers to probe\n")
		return nil
	}
	report, err := runProbe(cmd.Context(), cfg.Kafka)
	if err != nil {
		return err
	}
	report.Print(out)
	if report.HasFailed {
		return fmt.Errorf("kafka relay probe failed: %d of %d checks", report.Count(kshark.FAIL), len(report.Rows))
	}
	return nil
}

// describeText reports what the engine would do with text, without drawing
// chance or touching the suspension clock.
func describeText(b *bot, text string) string {
	lowered := strings.ToLower(text)
	switch {
	case b.disablers.Match(lowered):
		return fmt.Sprintf("Text:      disabler matched, would suspend for %ds", b.cfg.DisableFor)
	case b.triggers.Match(lowered):
		return fmt.Sprintf("Text:      trigger matched, would reply with probability %g%%", b.cfg.Chance)
	default:
		return "Text:      no phrase matched, would stay silent"
	}
}
