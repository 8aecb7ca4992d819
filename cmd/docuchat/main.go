// Package main implements the docuchat CLI: ingest documents into the
// vector index and chat with them through the configured AI providers.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	sessionPath string
	version     = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docuchat",
	Short: "Chat with your documents",
	Long: `docuchat ingests PDF and Word documents into a vector index and answers
questions about them through OpenAI-compatible chat providers
(openai, deepseek, kimi).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", "conversation.json", "path to the saved conversation session")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(probeCmd)
}
