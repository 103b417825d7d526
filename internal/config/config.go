// Package config loads the service configuration from a YAML file, an
// optional .env file and CARDLEDGER_* environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no path is given.
const DefaultConfigPath = "config.yaml"

// AppConfig holds process-level options from the command line.
type AppConfig struct {
	ConfigPath string
	EnvFile    string
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     JWTConfig      `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Expiry   ExpiryConfig   `yaml:"expiry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"CARDLEDGER_SERVER_ADDR"`
	ReadTimeout  time.Duration `yaml:"read-timeout" env:"CARDLEDGER_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write-timeout" env:"CARDLEDGER_SERVER_WRITE_TIMEOUT"`
	GinMode      string        `yaml:"gin-mode" env:"CARDLEDGER_GIN_MODE"`
}

// DatabaseConfig selects the store. A postgres:// URL or key=value DSN
// opens PostgreSQL, anything else SQLite.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"CARDLEDGER_DATABASE_DSN"`
}

// JWTConfig configures operator authentication.
type JWTConfig struct {
	Secret   string        `yaml:"jwt-secret" env:"CARDLEDGER_JWT_SECRET"`
	Expiry   time.Duration `yaml:"token-expiry" env:"CARDLEDGER_TOKEN_EXPIRY"`
	Disabled bool          `yaml:"disabled" env:"CARDLEDGER_AUTH_DISABLED"`
}

// LogConfig configures logrus and the optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level" env:"CARDLEDGER_LOG_LEVEL"`
	Format     string `yaml:"format" env:"CARDLEDGER_LOG_FORMAT"`
	File       string `yaml:"file" env:"CARDLEDGER_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max-size-mb" env:"CARDLEDGER_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max-backups" env:"CARDLEDGER_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max-age-days" env:"CARDLEDGER_LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"CARDLEDGER_LOG_COMPRESS"`
}

// RedisConfig enables cross-instance card locks when Addr is set.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"CARDLEDGER_REDIS_ADDR"`
	Password  string        `yaml:"password" env:"CARDLEDGER_REDIS_PASSWORD"`
	DB        int           `yaml:"db" env:"CARDLEDGER_REDIS_DB"`
	LockTTL   time.Duration `yaml:"lock-ttl" env:"CARDLEDGER_REDIS_LOCK_TTL"`
	KeyPrefix string        `yaml:"key-prefix" env:"CARDLEDGER_REDIS_KEY_PREFIX"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url" env:"CARDLEDGER_NATS_URL"`
	Token         string `yaml:"token" env:"CARDLEDGER_NATS_TOKEN"`
	SubjectPrefix string `yaml:"subject-prefix" env:"CARDLEDGER_NATS_SUBJECT_PREFIX"`
}

// ExpiryConfig configures the visitor expiry sweeper.
type ExpiryConfig struct {
	Interval time.Duration `yaml:"interval" env:"CARDLEDGER_EXPIRY_INTERVAL"`
	Disabled bool          `yaml:"disabled" env:"CARDLEDGER_EXPIRY_DISABLED"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8318",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			GinMode:      "release",
		},
		Database: DatabaseConfig{DSN: "file:data/cardledger.db"},
		Auth:     JWTConfig{Expiry: 12 * time.Hour},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
		Redis:  RedisConfig{LockTTL: 10 * time.Second, KeyPrefix: "cardledger:lock:"},
		NATS:   NATSConfig{SubjectPrefix: "cardledger"},
		Expiry: ExpiryConfig{Interval: 10 * time.Minute},
	}
}

// ResolveConfigPath returns path, or the default path when empty.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return DefaultConfigPath
	}
	return filepath.Clean(trimmed)
}

// Load reads the configuration. A missing YAML file or .env file is not an
// error; the defaults and environment still apply.
func Load(app AppConfig) (*Config, error) {
	cfg := Default()

	configPath := ResolveConfigPath(app.ConfigPath)
	raw, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errYAML := yaml.Unmarshal(raw, &cfg); errYAML != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configPath, errYAML)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", configPath, errRead)
	}

	envFile := strings.TrimSpace(app.EnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	if errDotenv := godotenv.Load(envFile); errDotenv != nil && !errors.Is(errDotenv, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, errDotenv)
	}

	if errEnv := env.Parse(&cfg); errEnv != nil {
		return nil, fmt.Errorf("config: environment: %w", errEnv)
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn is required")
	}
	if !c.Auth.Disabled && len(c.Auth.Secret) < 16 {
		return errors.New("config: auth jwt-secret must be at least 16 characters unless auth is disabled")
	}
	if c.Auth.Expiry <= 0 {
		return errors.New("config: auth token-expiry must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// LoadDatabaseDSN loads the configuration and returns the database DSN.
func LoadDatabaseDSN(app AppConfig) (string, error) {
	cfg, err := Load(app)
	if err != nil {
		return "", err
	}
	return cfg.Database.DSN, nil
}

// LoadJWTConfig loads the configuration and returns the auth section.
func LoadJWTConfig(app AppConfig) (JWTConfig, error) {
	cfg, err := Load(app)
	if err != nil {
		return JWTConfig{}, err
	}
	return cfg.Auth, nil
}
