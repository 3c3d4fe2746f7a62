package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"laundry-status-exporter/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "laundryd",
	Short: "Exports pay2wash laundry machine status",
	Long: `laundryd logs in to pay2wash, polls the machine status feed of the
account's location and exposes it as Prometheus metrics and a small JSON API.

Credentials come from the config file or PAY2WASH_EMAIL / PAY2WASH_PASSWORD.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(os.Getenv("LOG_LEVEL")))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config/config.yaml)")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.Info("configuration loaded", "path", path)
	return cfg, nil
}
