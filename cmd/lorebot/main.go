// Package main is the entry point for the lorebot CLI.
package main

import (
	"os"

	"github.com/KafClaw/lorebot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
