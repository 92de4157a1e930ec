package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hvostenko/yaclimate/internal/config"
)

var (
	configPath string
	verbose    bool
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "yaclimate",
	Short: "Yandex smart home climate exporter",
	Long: `yaclimate polls climate stations through the Yandex Smart Home API and
exposes their CO2, temperature, and humidity readings over Prometheus
metrics, Home Assistant MQTT discovery, InfluxDB, and a local history
database.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		setupLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
