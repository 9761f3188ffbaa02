// Package config loads and validates the gateway configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (DEVICEGATEWAY_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Gateway configures the device-facing TCP listener and protocol
	// policies.
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`

	// Store selects and configures the session store backend.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Telemetry configures event publishing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the admin HTTP server.
	API APIConfig `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// GatewayConfig configures the device-facing listener.
type GatewayConfig struct {
	// ListenAddress is the TCP address trackers connect to.
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`

	// MaxConnections caps concurrent device connections. Zero means
	// unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// ReadBufferSize is the per-connection read buffer in bytes.
	ReadBufferSize int `mapstructure:"read_buffer_size" validate:"gt=0" yaml:"read_buffer_size"`

	// IdleTimeout after which a silent session is evicted and its
	// connection closed.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gt=0" yaml:"idle_timeout"`

	// CleanupInterval between idle-session sweeps.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0" yaml:"cleanup_interval"`

	// SessionTTL applied to session records in the store.
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"gt=0" yaml:"session_ttl"`

	// MaxFrameLength caps the total frame size on the wire.
	MaxFrameLength int `mapstructure:"max_frame_length" validate:"gt=0,lte=65535" yaml:"max_frame_length"`

	// StrictCRC rejects frames with checksum mismatches instead of
	// flagging them. Off by default; clone firmware often ships broken
	// checksums.
	StrictCRC bool `mapstructure:"strict_crc" yaml:"strict_crc"`

	// StrictStopBits rejects frames with unknown terminators.
	StrictStopBits bool `mapstructure:"strict_stop_bits" yaml:"strict_stop_bits"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Type is "memory", "badger" or "redis".
	Type string `mapstructure:"type" validate:"required,oneof=memory badger redis" yaml:"type"`

	// Badger configures the embedded store, used when Type is "badger".
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger"`

	// Redis configures the shared store, used when Type is "redis".
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// BadgerConfig configures the embedded Badger store.
type BadgerConfig struct {
	// Path is the database directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" validate:"gte=0" yaml:"db"`

	MaxIdle      int           `mapstructure:"max_idle" validate:"gte=0" yaml:"max_idle"`
	MaxActive    int           `mapstructure:"max_active" validate:"gte=0" yaml:"max_active"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// TelemetryConfig configures event publishing.
type TelemetryConfig struct {
	// Enabled turns the event bus on. When off, decoded traffic is only
	// logged.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// LogSink attaches the built-in sink that writes every event to the
	// application log.
	LogSink bool `mapstructure:"log_sink" yaml:"log_sink"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	// Enabled initializes the registry and exposes /metrics on the admin
	// API.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the admin HTTP server.
type APIConfig struct {
	// Enabled turns the admin API on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddress is the HTTP listen address.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// RequestTimeout bounds admin request handling.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to config file (empty string uses the default
//     location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  devicegateway init\n\n"+
				"Or specify a custom config file:\n"+
				"  devicegateway <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  devicegateway init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to the given path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry the Redis password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig writes a default configuration file at the default location and
// returns its path.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a default configuration file at the given path.
// Refuses to overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}
	return SaveConfig(GetDefaultConfig(), path)
}

// setupViper configures environment variable support and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DEVICEGATEWAY_GATEWAY_LISTEN_ADDRESS=:5023
	v.SetEnvPrefix("DEVICEGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns whether
// a file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "600s" or "10m" into
// time.Duration fields. Raw integers are taken as nanoseconds, which is
// what yaml.Marshal emits for durations.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return time.ParseDuration(value)
		case int:
			return time.Duration(value), nil
		case int64:
			return time.Duration(value), nil
		case float64:
			return time.Duration(value), nil
		default:
			return data, nil
		}
	}
}
