package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		require.NoError(t, err)

		assert.Equal(t, DefaultListenAddress, cfg.Gateway.ListenAddress)
		assert.Equal(t, DefaultIdleTimeout, cfg.Gateway.IdleTimeout)
		assert.Equal(t, DefaultCleanupInterval, cfg.Gateway.CleanupInterval)
		assert.Equal(t, DefaultMaxFrameLength, cfg.Gateway.MaxFrameLength)
		assert.False(t, cfg.Gateway.StrictCRC)
		assert.False(t, cfg.Gateway.StrictStopBits)
		assert.Equal(t, "memory", cfg.Store.Type)
		assert.Equal(t, "INFO", cfg.Logging.Level)
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("ExplicitValues", func(t *testing.T) {
		path := writeConfig(t, `
logging:
  level: debug
  format: json
gateway:
  listen_address: ":6001"
  idle_timeout: 300s
  cleanup_interval: 30s
  strict_crc: true
store:
  type: redis
  redis:
    addr: "redis.internal:6379"
    db: 2
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "DEBUG", cfg.Logging.Level, "level normalized to uppercase")
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, ":6001", cfg.Gateway.ListenAddress)
		assert.Equal(t, 300*time.Second, cfg.Gateway.IdleTimeout)
		assert.Equal(t, 30*time.Second, cfg.Gateway.CleanupInterval)
		assert.True(t, cfg.Gateway.StrictCRC)
		assert.Equal(t, "redis", cfg.Store.Type)
		assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
		assert.Equal(t, 2, cfg.Store.Redis.DB)

		// Untouched sections still get defaults.
		assert.Equal(t, DefaultMaxFrameLength, cfg.Gateway.MaxFrameLength)
		assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	})

	t.Run("IntegerDurationsAreNanoseconds", func(t *testing.T) {
		path := writeConfig(t, `
gateway:
  idle_timeout: 600000000000
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 600*time.Second, cfg.Gateway.IdleTimeout)
	})

	t.Run("InvalidStoreTypeRejected", func(t *testing.T) {
		path := writeConfig(t, `
store:
  type: cassandra
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("SweepSlowerThanIdleRejected", func(t *testing.T) {
		path := writeConfig(t, `
gateway:
  idle_timeout: 60s
  cleanup_interval: 120s
`)
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateway.ListenAddress = ":7001"
	cfg.Store.Type = "badger"
	cfg.Store.Badger.Path = "/var/lib/devicegateway/sessions"

	path := filepath.Join(t.TempDir(), "saved", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7001", loaded.Gateway.ListenAddress)
	assert.Equal(t, "badger", loaded.Store.Type)
	assert.Equal(t, "/var/lib/devicegateway/sessions", loaded.Store.Badger.Path)
}

func TestMustLoad(t *testing.T) {
	t.Run("ExplicitMissingFile", func(t *testing.T) {
		_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "devicegateway init")
	})
}
