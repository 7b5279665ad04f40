// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the auth client needs to reach the backend.
//
// APIURL is the backend base, AppID the tenant identity header, ServiceKey
// the shared secret header, SiteURL the base used by the backend to build
// redirect links in OTP and reset emails.
type Config struct {
	APIURL      string        `env:"GATEHOUSE_API_URL" envDefault:"http://localhost:8080"`
	AppID       string        `env:"GATEHOUSE_APP_ID"`
	ServiceKey  string        `env:"GATEHOUSE_SERVICE_KEY"`
	SiteURL     string        `env:"GATEHOUSE_SITE_URL" envDefault:"http://localhost:3000"`
	HTTPTimeout time.Duration `env:"GATEHOUSE_HTTP_TIMEOUT" envDefault:"15s"`

	// TokenFile is where the file-backed token store keeps credentials.
	// Empty means an in-memory store.
	TokenFile string `env:"GATEHOUSE_TOKEN_FILE"`
	// RedisURL switches the token store to the shared redis backend.
	RedisURL string `env:"GATEHOUSE_REDIS_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
