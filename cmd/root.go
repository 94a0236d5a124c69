package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrisdamba/radarsim/internal/logging"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/station"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "radarsim",
	Short: "Simulates a roadside speed-enforcement station",
	Long: `radarsim drives simulated vehicles across a pair of road sensors, measures
their speed, and triggers a plate-capture camera when a vehicle exceeds the
limit for its class. Results are drawn on the console and can be written to a
JSON-lines file or a Kafka topic.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		st, err := station.New(cfg, station.WithLogger(log))
		if err != nil {
			return err
		}
		return st.Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./radarsim.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("mqtt-broker", "localhost:1883", "MQTT broker address for the remote camera")
	rootCmd.PersistentFlags().Int64("seed", 42, "Random seed for generated vehicles")

	rootCmd.Flags().Int("vehicles", 4, "Number of vehicles to drive past the sensors")
	rootCmd.Flags().Bool("continuous", false, "Drive vehicles until interrupted")
	rootCmd.Flags().Bool("progress", false, "Show a progress bar for finite runs")
	rootCmd.Flags().String("camera", models.CameraModeSimulated, "Camera mode (simulated or mqtt)")
	rootCmd.Flags().Bool("console", true, "Draw display records on the console")
	rootCmd.Flags().String("output-file", "", "Append display records to this JSON-lines file")
	rootCmd.Flags().Bool("kafka-enabled", false, "Publish display records to Kafka")
	rootCmd.Flags().String("kafka-broker-list", "localhost:9092", "Kafka broker list")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":   "log_level",
		"mqtt-broker": "mqtt.broker",
		"seed":        "traffic.seed",
	})
	bindFlags(rootCmd.Flags(), map[string]string{
		"vehicles":          "traffic.vehicles",
		"continuous":        "traffic.continuous",
		"progress":          "traffic.progress",
		"camera":            "camera.mode",
		"console":           "output.console",
		"output-file":       "output.file",
		"kafka-enabled":     "kafka.enabled",
		"kafka-broker-list": "kafka.broker_list",
	})

	rootCmd.AddCommand(cameraCmd)
}

// bindFlags maps command-line flags onto configuration keys, so a flag
// given on the command line wins over the config file and environment.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

func setup() (*models.Config, *slog.Logger, error) {
	cfg, err := models.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	log := logging.New(cfg.LogLevel, os.Stderr)
	slog.SetDefault(log)
	if used := viper.ConfigFileUsed(); used != "" {
		log.Info("using config file", "path", used)
	}
	return cfg, log, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
