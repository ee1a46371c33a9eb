package commands

import (
	"github.com/spf13/cobra"

	"companion-agent/internal/common/config"
)

var configFile string

func Execute() error {
	root := &cobra.Command{
		Use:           "agent",
		Short:         "Voice companion agent worker",
		Long:          "Noah, a voice companion for elderly users. Registers as a LiveKit agent worker and serves room jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./configs/config.yaml)")

	root.AddCommand(startCmd(), devCmd(), downloadFilesCmd())
	return root.Execute()
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromFile(configFile)
	}
	return config.Load()
}
