// Package commands implements the CLI commands for gateway management.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "devicegateway",
	Short: "TCP gateway for GT06-family GPS trackers",
	Long: `devicegateway terminates TCP connections from GT06-family GPS vehicle
trackers, decodes their binary frames, maintains device sessions across
reconnects and publishes positions, status and cell observations to a
telemetry bus. A management HTTP API exposes sessions, health and
server-to-device commands.

Use "devicegateway [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. Called by
// main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: $XDG_CONFIG_HOME/devicegateway/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
