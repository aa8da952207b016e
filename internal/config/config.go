package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the invest API.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Auth    Auth    `yaml:"auth"`
	Prices  Prices  `yaml:"prices"`
}

// Server holds network listener configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Auth holds JWT signing configuration.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Prices controls the simulated price snapshot generator.
type Prices struct {
	SnapshotInterval    time.Duration `yaml:"-"`
	SnapshotIntervalRaw string        `yaml:"snapshot_interval"`
	RetentionDays       int           `yaml:"retention_days"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server:  Server{Port: "8080"},
		Storage: Storage{SQLitePath: "invest.db"},
		Auth:    Auth{JWTSecret: "invest-secret-key"},
		Prices: Prices{
			SnapshotInterval: 24 * time.Hour,
			RetentionDays:    14,
		},
	}
}

// Load reads the configuration from the optional yaml file at path and then
// applies environment overrides (PORT, SQLITE_PATH, JWT_SECRET). An empty
// path skips the file and returns defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("SQLITE_PATH"); dbPath != "" {
		cfg.Storage.SQLitePath = dbPath
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if days := os.Getenv("PRICE_RETENTION_DAYS"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil {
			return nil, fmt.Errorf("invalid PRICE_RETENTION_DAYS: %w", err)
		}
		cfg.Prices.RetentionDays = n
	}

	if cfg.Prices.SnapshotIntervalRaw != "" {
		interval, err := time.ParseDuration(cfg.Prices.SnapshotIntervalRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot_interval: %w", err)
		}
		cfg.Prices.SnapshotInterval = interval
	}
	if cfg.Prices.SnapshotInterval <= 0 {
		cfg.Prices.SnapshotInterval = 24 * time.Hour
	}

	return cfg, nil
}
