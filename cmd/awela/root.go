package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "awela",
	Short: "Conversational commerce assistant",
	Long: `Awela answers shop customers over chat. Each message is decomposed
into tasks for specialized workers (commerce, billing, operations,
support), every answer is validated against the tool evidence that
produced it, and contradicting outputs are reconciled before replying.

With no arguments, starts an interactive chat session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
