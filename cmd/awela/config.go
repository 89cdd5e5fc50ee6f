package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/awela-ai/awela/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long: `Display the configuration Awela resolved from defaults, the user
config file, the project config, and environment variables.

Configuration is stored at ~/.config/awela/config.yaml
Project-specific overrides can be placed in .awela/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

func displayConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("models.planner: %s\n", cfg.Models.Planner)
	fmt.Printf("models.worker: %s\n", cfg.Models.Worker)
	fmt.Printf("models.reviewer: %s\n", cfg.Models.Reviewer)
	fmt.Printf("timeouts.task: %s\n", cfg.Timeouts.Task)
	fmt.Printf("timeouts.request: %s\n", cfg.Timeouts.Request)
	fmt.Printf("timeouts.generate: %s\n", cfg.Timeouts.Generate)
	fmt.Printf("limits.retry_bound: %d\n", cfg.Limits.RetryBound)
	fmt.Printf("limits.message_length: %d\n", cfg.Limits.MessageLength)
	fmt.Printf("limits.approval_threshold_kobo: %d\n", cfg.Limits.ApprovalThresholdKobo)
	fmt.Printf("catalog.path: %s\n", cfg.Catalog.Path)
	fmt.Printf("state.path: %s\n", cfg.State.Path)
	fmt.Printf("config file: %s\n", config.GetUserConfigPath())
}
