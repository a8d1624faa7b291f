package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by every command.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "agriqa",
	Short: "Agricultural knowledge base and question answering service",
	Long: `agriqa ingests agricultural documents into a vector index and answers
questions about them over HTTP with streamed responses.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
