package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/lorebot/internal/config"
	"github.com/KafClaw/lorebot/internal/timeline"
)

var (
	historyDB      string
	historyLimit   int
	historyOutcome string
	historyChannel string
	historyJSON    bool
	historyPrune   time.Duration
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "Show recent decisions from the timeline database",
	SilenceUsage: true,
	RunE:         runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "Timeline database (default: $TIMELINE_DB)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of decisions to show")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "Only show decisions with this outcome")
	historyCmd.Flags().StringVar(&historyChannel, "channel", "", "Only show decisions from this channel")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print decisions as JSON")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete decisions older than this before listing (e.g. 720h)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	config.LoadEnvFileCandidates()
	dbPath := strings.TrimSpace(historyDB)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("TIMELINE_DB"))
	}
	if dbPath == "" {
		return &config.ConfigError{Key: "TIMELINE_DB", Err: errors.New("no timeline database; set TIMELINE_DB or pass --db")}
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("timeline database: %w", err)
	}

	tl, err := timeline.NewTimelineService(dbPath)
	if err != nil {
		return err
	}
	defer tl.Close()

	out := cmd.OutOrStdout()
	if historyPrune > 0 {
		n, err := tl.Prune(time.Now().Add(-historyPrune))
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Fprintf(out, "Pruned %d decisions older than %s\n", n, historyPrune)
	}

	decisions, err := tl.ListDecisions(timeline.FilterArgs{
		Outcome: historyOutcome,
		Channel: historyChannel,
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(decisions)
	}

	counts, err := tl.CountByOutcome()
	if err != nil {
		return err
	}
	printHeader(out, "📜 lorebot History")
	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(out, "%-14s %d\n", o+":", counts[o])
	}
	fmt.Fprintln(out)

	if len(decisions) == 0 {
		fmt.Fprintln(out, "No decisions recorded.")
		return nil
	}
	for _, d := range decisions {
		fmt.Fprintf(out, "%s  %-8s %-20s %s %-8s %s\n",
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			d.Channel,
			truncate(d.ChatID, 20),
			outcomeColor(d.Outcome),
			d.DeliveryStatus,
			truncate(d.Reply, 60),
		)
	}
	return nil
}

func outcomeColor(outcome string) string {
	padded := fmt.Sprintf("%-13s", outcome)
	switch outcome {
	case "reply":
		return color.GreenString(padded)
	case "suspended":
		return color.YellowString(padded)
	default:
		return padded
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
