package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/pkg/config"
	"github.com/wheelseye/devicegateway/pkg/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The process runs in the foreground until interrupted; run it under a process
supervisor in production.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/devicegateway/config.yaml.

Examples:
  # Start with the default config location
  devicegateway start

  # Start with a custom config file
  devicegateway start --config /etc/devicegateway/config.yaml

  # Start with environment variable overrides
  DEVICEGATEWAY_LOGGING_LEVEL=DEBUG devicegateway start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("configuration loaded",
		"source", configSource(GetConfigFile()),
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format)

	gateway, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() { serverDone <- gateway.Serve(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("gateway is running, press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown", "signal", sig.String())
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("gateway shutdown error", logger.Err(err))
			return err
		}
		logger.Info("gateway stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("gateway error", logger.Err(err))
			return err
		}
		logger.Info("gateway stopped")
	}

	return nil
}

// configSource returns a description of where the config was loaded from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
