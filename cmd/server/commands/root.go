package commands

import (
	"github.com/spf13/cobra"
)

var (
	presetName string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Document conversion service",
	Long: `Converts uploaded PDF and image documents into a structured document tree
or markdown, over HTTP. Without a subcommand the server is started.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&presetName, "preset", "", "converter preset (overrides CONVERTER_PRESET)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
