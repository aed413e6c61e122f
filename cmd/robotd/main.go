// Package main is the entry point for the robotd CLI.
package main

import (
	"os"

	"github.com/KafClaw/robotd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
