package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"visca-camera/internal/camera"
	"visca-camera/internal/config"
	"visca-camera/internal/metrics"
	"visca-camera/internal/ptz"
	"visca-camera/internal/transport"
)

var (
	_ ptz.Controller = (*camera.Camera)(nil)
	_ metrics.Source = (*camera.Camera)(nil)
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "visca-camera",
	Short: "Control a VISCA PTZ camera over serial, TCP or UDP",
	Long: `Drives a VISCA camera, keeps its state in sync with the device and
exposes it to websocket clients, Prometheus and an interactive console.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./visca-camera.yaml or $HOME/visca-camera.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON instead of console text")
}

func setupLogging() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if !logJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	}
	return nil
}

// loadCamera reads the configuration and builds the camera on its transport.
// A link that drops after connecting is retried every reconnectInterval.
func loadCamera() (*config.Config, *camera.Camera, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	t, err := transport.New(cfg.Control)
	if err != nil {
		return nil, nil, err
	}

	cam, err := camera.New(*cfg, t, camera.WithReconnect(reconnectInterval))
	if err != nil {
		return nil, nil, err
	}
	return cfg, cam, nil
}
