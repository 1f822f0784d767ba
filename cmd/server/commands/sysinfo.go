package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/types"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Print the accelerator probe and selected device as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap(accel.HostProbe)
		if err != nil {
			return err
		}
		defer env.log.Sync() //nolint:errcheck

		eng, err := buildEngine(env.cfg, env.log)
		if err != nil {
			return err
		}

		probe := accel.HostProbe()
		info := types.SystemInfo{
			AcceleratorAvailable: env.device.Available(probe),
			CurrentDevice:        env.device.String(),
			EngineVersion:        eng.Name() + " " + eng.Version(cmd.Context()),
			AcceleratorBuilt:     env.device.Built(probe),
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	rootCmd.AddCommand(sysinfoCmd)
}
