package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"scip/internal/anchor"
	"scip/internal/risk"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RecordTimeout   time.Duration `yaml:"record_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		Issuer    string        `yaml:"issuer"`
	} `yaml:"auth"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Risk    risk.Policy   `yaml:"risk"`
	Anchor  anchor.Config `yaml:"anchor"`
	Logging struct {
		Level       string `yaml:"level"`
		Environment string `yaml:"environment"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Default returns a configuration that runs a single node on SQLite with the
// local anchor backend.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.RecordTimeout = 5 * time.Second
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = "scip.db"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.Issuer = "scip"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Risk = risk.DefaultPolicy()
	cfg.Anchor = anchor.Config{
		Backend:         anchor.BackendLocal,
		Timeout:         anchor.DefaultTimeout,
		MaxRetries:      2,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
	cfg.Logging.Level = "info"
	cfg.Logging.Environment = "production"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// LoadConfig reads configuration from the specified YAML file. ${VAR}
// references are expanded from the environment before decoding, and keys
// missing from the file keep their defaults. An explicit empty
// risk.indicators list is kept as is.
func LoadConfig(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: server.port is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required when redis is enabled")
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Anchor.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
