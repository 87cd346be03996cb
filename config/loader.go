// Package config loads the data-access configuration from defaults, an
// optional loam.yaml file, and LOAM_-prefixed environment variables, in
// that order of precedence (later sources win).
package config

import (
	"fmt"
	"os"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	isql "github.com/loamdb/loam/dialect/sql"
)

// FileName is the name of the config file.
const FileName = "loam.yaml"

// FileNameAlt is the alternate name of the config file.
const FileNameAlt = "loam.yml"

// EnvPrefix prefixes environment overrides, e.g. LOAM_BACKEND_DSN.
const EnvPrefix = "LOAM_"

// Load builds the configuration. path may name a YAML file directly or a
// directory to search; an empty path searches the working directory. A
// missing file is not an error: defaults plus environment still apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if cfgPath := resolvePath(path); cfgPath != "" {
		if err := k.Load(file.Provider(cfgPath), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", cfgPath, err)
		}
	}
	// The config tree is one level deep, so only the first underscore
	// separates the section: LOAM_POOL_MAX_OPEN -> pool.max_open.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) string {
	if path == "" {
		path = "."
	}
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return path
	}
	for _, name := range []string{FileName, FileNameAlt} {
		p := path + string(os.PathSeparator) + name
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Open opens the configured backend and wraps it with a sized pool and
// an executor.
func Open(cfg *Config) (*isql.Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	drv, err := isql.Open(cfg.Backend.Dialect, cfg.Backend.DSN)
	if err != nil {
		return nil, fmt.Errorf("config: open %s backend: %w", cfg.Backend.Dialect, err)
	}
	pool := isql.NewPool(drv, isql.PoolConfig{
		MaxOpen:         cfg.Pool.MaxOpen,
		MaxIdle:         cfg.Pool.MaxIdle,
		ConnMaxLifetime: cfg.Pool.ConnMaxLifetime,
		CheckoutTimeout: cfg.Pool.CheckoutTimeout,
		RetryCheckout:   cfg.Pool.RetryCheckout,
	})
	return isql.NewExecutor(pool, nil), nil
}
