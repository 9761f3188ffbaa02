package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Gateway defaults. The protocol timings match what the tracker fleet is
// provisioned for: heartbeats every few minutes, eviction after ten silent
// minutes.
const (
	DefaultListenAddress   = ":5023"
	DefaultReadBufferSize  = 4096
	DefaultIdleTimeout     = 600 * time.Second
	DefaultCleanupInterval = 60 * time.Second
	DefaultSessionTTL      = 600 * time.Second
	DefaultMaxFrameLength  = 1024
	DefaultShutdownTimeout = 30 * time.Second

	DefaultAPIListenAddress  = ":8080"
	DefaultAPIRequestTimeout = 30 * time.Second

	DefaultRedisAddr = "localhost:6379"
)

// ApplyDefaults fills unset fields with defaults. Explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyGatewayDefaults(&cfg.Gateway)
	applyStoreDefaults(&cfg.Store)
	applyAPIDefaults(&cfg.API)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxFrameLength == 0 {
		cfg.MaxFrameLength = DefaultMaxFrameLength
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger.Path == "" {
		cfg.Badger.Path = filepath.Join(getDataDir(), "sessions")
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.MaxIdle == 0 {
		cfg.Redis.MaxIdle = 8
	}
	if cfg.Redis.IdleTimeout == 0 {
		cfg.Redis.IdleTimeout = 5 * time.Minute
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultAPIListenAddress
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultAPIRequestTimeout
	}
}

// GetDefaultConfig returns the configuration used when no config file
// exists: memory store, admin API and metrics on, telemetry logged.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{Enabled: true, LogSink: true},
		Metrics:   MetricsConfig{Enabled: true},
		API:       APIConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// getConfigDir returns the directory searched for the default config file.
func getConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "devicegateway")
	}
	return "."
}

// getDataDir returns the default directory for embedded store data.
func getDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "devicegateway")
	}
	return "."
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
