package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/lorebot/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  _                _           _\n" +
		" | | ___  _ __ ___| |__   ___ | |_\n" +
		" | |/ _ \\| '__/ _ \\ '_ \\ / _ \\| __|\n" +
		" | | (_) | | |  __/ |_) | (_) | |_\n" +
		" |_|\\___/|_|  \\___|_.__/ \\___/ \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "lorebot",
	Short: "lorebot - replies to chat messages with lore",
	Long:  color.CyanString(logo) + "\nA chat bot that answers trigger phrases with a random line of lore and goes quiet when told to.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
}
