package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for nodepool.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Node is the single database node this process connects to.
	Node NodeConfig `yaml:"node"`

	// Database is the base and identity used on the node. One base per process.
	Database DatabaseConfig `yaml:"database"`
}

// NodeConfig holds the node address and pool settings.
type NodeConfig struct {
	Host string `yaml:"host" env:"PGHOST" env-default:"127.0.0.1"` // IPv4, dotted quad
	Port int    `yaml:"port" env:"PGPORT" env-default:"5432"`

	// PoolSize is both the minimum and maximum number of pooled connections.
	PoolSize int `yaml:"pool_size" env:"NODE_POOL_SIZE" env-default:"10"`
	// PoolKind selects the pool adapter: "pgxpool" or "sqldb".
	PoolKind string `yaml:"pool_kind" env:"NODE_POOL_KIND" env-default:"pgxpool"`
	// Driver is the database/sql driver name used by the "sqldb" pool kind.
	Driver  string `yaml:"driver" env:"NODE_SQL_DRIVER" env-default:"pgx"`
	SSLMode string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// LoginTimeout bounds connection establishment. Zero means unbounded.
	LoginTimeout time.Duration `yaml:"login_timeout" env:"NODE_LOGIN_TIMEOUT" env-default:"5s"`
	// StartupWait is how long the CLI waits for the node to answer at startup.
	StartupWait time.Duration `yaml:"startup_wait" env:"NODE_STARTUP_WAIT" env-default:"0s"`
}

// DatabaseConfig holds the base name and credentials.
type DatabaseConfig struct {
	BaseName string `yaml:"base_name" env:"PGDATABASE"`
	Username string `yaml:"username" env:"PGUSER"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
}

// Load reads configuration from the YAML file at path with environment variable
// overrides. An empty path, or a path that does not exist, reads the environment only.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		} else if err != nil {
			path = ""
		}
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks what can be checked without the pool layer. Target grammar and
// pool bounds are enforced when the data source is built.
func (c *Config) validate() error {
	if c.Database.BaseName == "" {
		return fmt.Errorf("database base_name (PGDATABASE) is required")
	}
	if c.Database.Username == "" {
		return fmt.Errorf("database username (PGUSER) is required")
	}
	if c.Node.LoginTimeout < 0 {
		return fmt.Errorf("node login_timeout must not be negative")
	}
	return nil
}
