// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

type Config struct {
	Env          string
	Port         string
	Storage      string
	DBDriver     string
	DatabaseURL  string
	OTLPEndpoint string
	LogLevel     string
	RateLimitRPS float64
	RateBurst    int
}

// Load reads the environment. Outside production a .env file in the working
// directory overrides the process environment when present.
func Load() (Config, error) {
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Overload()
	}

	cfg := Config{
		Env:          getenv("ENV", "development"),
		Port:         getenv("PORT", "8084"),
		Storage:      getenv("STORAGE", StoragePostgres),
		DBDriver:     getenv("DB_DRIVER", DriverPostgres),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getenv("RATE_LIMIT_RPS", "50"), 64); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateBurst, err = strconv.Atoi(getenv("RATE_LIMIT_BURST", "100")); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}

	if cfg.DatabaseURL == "" && cfg.Storage == StoragePostgres {
		cfg.DatabaseURL, err = dsnFromParts()
		if err != nil {
			return Config{}, err
		}
	}

	if len(cfg.Port) > 0 && cfg.Port[0] == ':' {
		cfg.Port = cfg.Port[1:]
	}

	return cfg, cfg.Validate()
}

// dsnFromParts builds a key/value DSN from the DB_* variables.
func dsnFromParts() (string, error) {
	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if host == "" || user == "" || name == "" {
		return "", fmt.Errorf("DATABASE_URL: not set, and DB_HOST, DB_USER, DB_NAME are incomplete")
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, getenv("DB_PORT", "5432"), user, os.Getenv("DB_PASSWORD"), name,
		getenv("DB_SSLMODE", "disable")), nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("STORAGE: unsupported value %q", c.Storage)
	}
	switch c.DBDriver {
	case DriverPostgres, DriverPGX:
	default:
		return fmt.Errorf("DB_DRIVER: unsupported value %q", c.DBDriver)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL: unsupported value %q", c.LogLevel)
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT: invalid value %q", c.Port)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS: must be positive")
	}
	if c.RateBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST: must be positive")
	}
	return nil
}

// Production reports whether the service runs with production logging.
func (c Config) Production() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
