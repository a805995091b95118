// Package config loads process configuration once at startup. Components
// never read the environment themselves; the parsed value is passed to
// every constructor that needs part of it.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all deployment settings for the service.
type Config struct {
	HTTPAddr string `env:"GRC_HTTP_ADDR" envDefault:":8080"`

	// Postgres DSN. Empty means the API serves from in-memory stores,
	// which is only useful for local development and tests.
	DatabaseURL string `env:"GRC_PG_DSN"`

	TokenSecret string        `env:"GRC_TOKEN_SECRET"`
	TokenIssuer string        `env:"GRC_TOKEN_ISSUER" envDefault:"grcore"`
	TokenTTL    time.Duration `env:"GRC_TOKEN_TTL" envDefault:"60m"`

	RateBurst  int `env:"GRC_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"GRC_RATE_PER_SEC" envDefault:"10"`

	SeedFile string `env:"GRC_SEED_FILE"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TokenSecret == "" {
		return errors.New("config: GRC_TOKEN_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: GRC_TOKEN_TTL must be positive")
	}
	return nil
}
