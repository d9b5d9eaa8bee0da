// Package cli provides the ragbot command-line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/logger"
)

// version is set at build time.
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ragbot",
	Short: "Chat with your documents",
	Long: `ragbot indexes local documents into a vector database and answers
questions about them with a language model, keeping the conversation in
memory.

Run 'ragbot index' once to load the documents, then 'ragbot chat'.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ragbot/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output to stderr")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
