// Pettracer-live keeps a live connection to the PetTracer portal and
// mirrors collar state locally.
//
// It subscribes to the vendor's real-time channel, keeps a snapshot per
// tracked collar, and exposes the snapshots through a small HTTP API, an
// optional MQTT sink and a terminal dashboard.
//
// Usage:
//
//	pettracer-live [command] [flags]
//
// See 'pettracer-live --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/pettracer/internal/config"
	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/urls"
	"github.com/muurk/pettracer/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

// cfg is loaded once in PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pettracer-live",
	Short: "PetTracer live channel client",
	Long: `A client for the PetTracer real-time channel.

pettracer-live connects to the vendor's WebSocket endpoint, subscribes to
updates for the configured collars and keeps the latest state of each one.
The state is served over a local HTTP API, optionally published to MQTT,
and can be watched in a terminal dashboard.

The access token is never stored. Pass it with --token, set
PETTRACER_TOKEN, or enter it when prompted. Tokens come from a portal
session (` + urls.PortalDashboard + `), issued by ` + urls.PortalAPI + `.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded

		opts := cfg.LoggingOptions()
		if logLevel != "" {
			opts.Level = logLevel
		}
		if err := logging.InitializeWithOptions(opts); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/pettracer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config and PETTRACER_LOG_LEVEL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath returns --config or the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadFile(configPath)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pettracer-live " + version.Full())
	},
}
