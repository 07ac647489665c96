// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfolio/quantfolio/internal/agents"
	"github.com/quantfolio/quantfolio/internal/orchestrator"
	"github.com/quantfolio/quantfolio/internal/providers"
)

// Config is the complete application configuration.
type Config struct {
	Server       ServerConfig              `yaml:"server"`
	Postgres     PostgresConfig            `yaml:"postgres"`
	Redis        RedisConfig               `yaml:"redis"`
	Patterns     PatternsConfig            `yaml:"patterns"`
	Orchestrator orchestrator.Config       `yaml:"orchestrator"`
	Metrics      agents.MetricsConfig      `yaml:"metrics"`
	Quotes       providers.HTTPQuoteConfig `yaml:"quotes"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PostgresConfig configures the ledger and pricing-pack stores. An empty DSN
// selects the in-memory stores.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the pack read-through cache. An empty address
// selects the in-process cache.
type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// PatternsConfig locates the pattern library on disk.
type PatternsConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis:    RedisConfig{TTL: 15 * time.Minute},
		Patterns: PatternsConfig{Dir: "config/patterns"},
	}
}

// Load reads and validates a configuration file. Fields the file omits keep
// their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate ensures the configuration is consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server shutdown_timeout cannot be negative, got %s", c.Server.ShutdownTimeout)
	}
	if c.Patterns.Dir == "" {
		return fmt.Errorf("patterns dir cannot be empty")
	}
	if c.Orchestrator.MaxParallel < 0 {
		return fmt.Errorf("orchestrator max_parallel cannot be negative, got %d", c.Orchestrator.MaxParallel)
	}
	if c.Orchestrator.StepTimeout < 0 {
		return fmt.Errorf("orchestrator step_timeout cannot be negative, got %s", c.Orchestrator.StepTimeout)
	}
	if c.Metrics.PeriodsPerYear < 0 {
		return fmt.Errorf("metrics periods_per_year cannot be negative, got %d", c.Metrics.PeriodsPerYear)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis ttl cannot be negative, got %s", c.Redis.TTL)
	}
	return nil
}
