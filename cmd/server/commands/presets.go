package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/toricodesthings/document-conversion-service/internal/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Print the available converter presets as YAML",
	Long: `Prints the built-in presets merged with CONVERTER_PRESETS_FILE, in the
format that file accepts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		presets, err := config.LoadPresets(cfg.PresetsFile)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(presets)
		if err != nil {
			return fmt.Errorf("encode presets: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
