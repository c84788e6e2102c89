// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreDriver selects the persistence backend.
type StoreDriver string

const (
	// DriverMemory keeps everything in process memory.
	DriverMemory StoreDriver = "memory"
	// DriverPostgres persists through the relational store.
	DriverPostgres StoreDriver = "postgres"
)

// StoreConfig configures persistence.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
	// RedisAddr, when set, moves checkpoint storage to Redis so decisions
	// recorded in another process are visible to the driver.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// ExecutorConfig configures the workflow driver.
type ExecutorConfig struct {
	Parallel      bool          `yaml:"parallel"`
	ReviewTimeout time.Duration `yaml:"review_timeout"`
}

// DelegationConfig throttles outbound agent calls.
type DelegationConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// Config is the root configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Delegation DelegationConfig `yaml:"delegation"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:        ":8420",
			MetricsPath: "/metrics",
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Executor: ExecutorConfig{
			ReviewTimeout: 2 * time.Minute,
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays CONDUCTOR_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.LogLevel, "CONDUCTOR_LOG_LEVEL")
	setString(&c.Server.Addr, "CONDUCTOR_ADDR")
	if v := os.Getenv("CONDUCTOR_STORE_DRIVER"); v != "" {
		c.Store.Driver = StoreDriver(v)
	}
	setString(&c.Store.DSN, "CONDUCTOR_STORE_DSN")
	setString(&c.Store.RedisAddr, "CONDUCTOR_REDIS_ADDR")
	setString(&c.Store.RedisPassword, "CONDUCTOR_REDIS_PASSWORD")
	if v := os.Getenv("CONDUCTOR_EXECUTOR_PARALLEL"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Executor.Parallel = parsed
		}
	}
	if v := os.Getenv("CONDUCTOR_REVIEW_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Executor.ReviewTimeout = parsed
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Store.DSN == "" {
		return fmt.Errorf("store driver postgres requires a dsn")
	}
	return nil
}
