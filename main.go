package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wablast/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "wablast",
	Short: "wablast - paced WhatsApp campaign dispatcher",
	Long: `wablast sends templated WhatsApp messages to contact lists in batches,
pacing every step to look like a person at a phone. It serves a control
API and a websocket event feed for the operator UI.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wablast %s (built %s)\n", version, buildTime)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (defaults apply when empty)")
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.Listen)
	fmt.Printf("  Database: %s\n", cfg.Storage.DSN)
	fmt.Printf("  Data dir: %s\n", cfg.Paths.DataDir)
	fmt.Printf("  Batch size: %d, daily limit: %d\n", cfg.Campaign.BatchSize, cfg.Campaign.DailyLimit)
	fmt.Printf("  Delay: %s-%s, style: %s\n", cfg.Campaign.MinDelay, cfg.Campaign.MaxDelay, cfg.Campaign.SimulationStyle)
	fmt.Printf("  Metrics: %v (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Path)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
