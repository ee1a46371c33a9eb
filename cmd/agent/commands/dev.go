package commands

import (
	"os"

	"github.com/spf13/cobra"
)

// devCmd runs the worker with console logging at debug level and the local
// LiveKit dev-server defaults, regardless of what the config file says.
// Everything else matches `start`.
func devCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Run the agent worker against a local LiveKit dev server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// livekit-server --dev ships with these credentials
			setEnvDefault("LIVEKIT_URL", "ws://localhost:7880")
			setEnvDefault("LIVEKIT_API_KEY", "devkey")
			setEnvDefault("LIVEKIT_API_SECRET", "secret")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Logging.Level = "debug"
			cfg.Logging.Format = "console"
			return runAgent(cfg)
		},
	}
}

func setEnvDefault(key, value string) {
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
