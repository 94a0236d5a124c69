package cmd

import (
	"github.com/chrisdamba/radarsim/internal/station"
	"github.com/spf13/cobra"
)

var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Runs the simulated plate camera behind an MQTT broker",
	Long: `camera answers the violation triggers a station running with --camera=mqtt
publishes on the broker, so the capture handshake crosses a real network
boundary.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return station.RunCamera(ctx, cfg, log)
	},
}

func init() {
	cameraCmd.Flags().Duration("latency", 0, "Capture latency (default from config)")
	cameraCmd.Flags().Int("failure-rate", 0, "Percentage of captures that fail with an error code")
	cameraCmd.Flags().Int("silence-rate", 0, "Percentage of triggers left unanswered")
	cameraCmd.Flags().Int("malformed-rate", 0, "Percentage of captures that produce garbage")

	bindFlags(cameraCmd.Flags(), map[string]string{
		"latency":        "camera.latency",
		"failure-rate":   "camera.failure_rate_percent",
		"silence-rate":   "camera.silence_rate_percent",
		"malformed-rate": "camera.malformed_rate_percent",
	})
}
