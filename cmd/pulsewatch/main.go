// Package main is the entry point for the pulsewatch CLI.
//
// Pulsewatch can be embedded as a library or run as a standalone binary
// with YAML configuration. This CLI provides the standalone binary.
//
// Usage:
//
//	pulsewatch serve -c config.yaml    # Run the engine
//	pulsewatch validate -c config.yaml # Validate configuration
//	pulsewatch push --entity main ...  # Send a push to a running engine
//	pulsewatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pulsewatch",
	Short: "Game server status reconciliation and notifications",
	Long: `Pulsewatch watches game servers and tells your community when they change.

It polls each server's info and player endpoints, reads an optional
txAdmin sidecar file, accepts pushes from helpers running next to the
server, and reconciles all of it into one status per server. Transitions
are announced to a channel, crashes are escalated to on-call members, and
a status panel message is kept up to date.

Quick start:
  1. Create a config file (pulsewatch.yaml)
  2. Run: pulsewatch serve -c pulsewatch.yaml

Example config:
  port: 8080
  poll_interval: 30s
  entities:
    - id: main
      name: Main City
      poll_url_a: http://203.0.113.5:30120/dynamic.json
      poll_url_b: http://203.0.113.5:30120/players.json
      notify_channel: "100"`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pulsewatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulsewatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
