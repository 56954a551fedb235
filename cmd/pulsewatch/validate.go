package main

import (
	"fmt"

	"github.com/jpalmerr/pulsewatch/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pulsewatch configuration file without starting the engine.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsewatch validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// build the entities too, so option-level checks run
	if _, err := config.BuildEntities(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var polled, sidecars, silent int
	for _, e := range cfg.Entities {
		if e.PollURLA != "" || e.PollURLB != "" {
			polled++
		}
		if e.SidecarURL != "" {
			sidecars++
		}
		if e.NotifyChannel == "" {
			silent++
		}
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:          %d\n", cfg.Port)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Settings:      %s\n", cfg.Settings.Driver)
	fmt.Printf("  Sink:          %s\n", cfg.Sink.Type)
	fmt.Printf("  Entities:      %d (%d polled, %d with sidecar, %d without channel)\n",
		len(cfg.Entities), polled, sidecars, silent)

	return nil
}
