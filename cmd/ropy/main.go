// Package main is the entry point for the ropy clipboard daemon and CLI.
//
// Usage:
//
//	ropy daemon          - Start the clipboard daemon
//	ropy list            - Show recent history
//	ropy search "text"   - Search text history
//	ropy copy <id>       - Put a history entry back on the clipboard
package main

import (
	"os"

	"github.com/Atharva-Kanherkar/ropy/cmd/ropy/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed directly by the printer package with color formatting
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
