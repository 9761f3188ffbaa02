package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Store.Type == "redis" && cfg.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required when store.type is redis")
	}
	if cfg.Store.Type == "badger" && cfg.Store.Badger.Path == "" {
		return fmt.Errorf("store.badger.path is required when store.type is badger")
	}

	// The sweeper must run often enough to matter within the idle window.
	if cfg.Gateway.CleanupInterval > cfg.Gateway.IdleTimeout {
		return fmt.Errorf("gateway.cleanup_interval (%s) must not exceed gateway.idle_timeout (%s)",
			cfg.Gateway.CleanupInterval, cfg.Gateway.IdleTimeout)
	}

	return nil
}
