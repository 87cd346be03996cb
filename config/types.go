package config

import (
	"fmt"
	"time"

	"github.com/loamdb/loam/dialect"
)

// Config is the full data-access configuration: which backend to talk
// to, how to size its pool, and how migrations take the ledger lock.
type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Pool      PoolConfig      `koanf:"pool"`
	Migration MigrationConfig `koanf:"migration"`
}

// BackendConfig selects the backend and its data source.
type BackendConfig struct {
	// Dialect is one of sqlite, postgres or mysql.
	Dialect string `koanf:"dialect"`
	// DSN is the driver-specific data source name.
	DSN string `koanf:"dsn"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpen         int           `koanf:"max_open"`
	MaxIdle         int           `koanf:"max_idle"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	CheckoutTimeout time.Duration `koanf:"checkout_timeout"`
	RetryCheckout   int           `koanf:"retry_checkout"`
}

// MigrationConfig controls migration-lock behavior.
type MigrationConfig struct {
	// LockWait blocks up to this duration for the migration lock; zero
	// fails fast when another instance is migrating.
	LockWait time.Duration `koanf:"lock_wait"`
}

// Validate checks the configuration for use.
func (c *Config) Validate() error {
	if !dialect.Valid(c.Backend.Dialect) {
		return fmt.Errorf("config: unknown dialect %q", c.Backend.Dialect)
	}
	if c.Backend.DSN == "" {
		return fmt.Errorf("config: backend.dsn is required")
	}
	if c.Pool.MaxOpen < 0 || c.Pool.MaxIdle < 0 || c.Pool.RetryCheckout < 0 {
		return fmt.Errorf("config: pool sizes must be non-negative")
	}
	return nil
}
