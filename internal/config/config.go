package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Event sources the service can read from.
const (
	SourceRelays  = "relays"
	SourceArchive = "archive"
)

// Config holds all configuration for the application.
type Config struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	RedisURL           string        `env:"REDIS_URL"`
	RelayURLs          []string      `env:"RELAY_URLS" envSeparator:","`
	EventSource        string        `env:"EVENT_SOURCE" envDefault:"relays"`
	QueryTimeout       time.Duration `env:"QUERY_TIMEOUT" envDefault:"3s"`
	NumWorkers         int           `env:"NUM_WORKERS" envDefault:"8"`
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"15s"`
	RefreshInterval    time.Duration `env:"REFRESH_INTERVAL" envDefault:"30s"`
	RateLimitPerSecond int           `env:"RATE_LIMIT_PER_SECOND" envDefault:"20"`
	MigrationsDir      string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch c.EventSource {
	case SourceRelays:
		if len(c.RelayURLs) == 0 {
			return fmt.Errorf("RELAY_URLS is required when EVENT_SOURCE=%s", SourceRelays)
		}
	case SourceArchive:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when EVENT_SOURCE=%s", SourceArchive)
		}
	default:
		return fmt.Errorf("unknown EVENT_SOURCE %q", c.EventSource)
	}

	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive")
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("NUM_WORKERS must be positive")
	}
	return nil
}
