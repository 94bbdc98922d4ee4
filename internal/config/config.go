package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings read from KMPDU_* environment variables.
// Command line flags override these in cmd/kmpduvote.
type Config struct {
	Port        int    `env:"KMPDU_PORT" envDefault:"8081"`
	DBPath      string `env:"KMPDU_DB_PATH" envDefault:"kmpdu.db"`
	HistoryPath string `env:"KMPDU_HISTORY_PATH" envDefault:"history.db"`

	// APIURL is the remote KMPDU backend. Empty runs offline-only.
	APIURL      string        `env:"KMPDU_API_URL"`
	APIToken    string        `env:"KMPDU_API_TOKEN"`
	CastTimeout time.Duration `env:"KMPDU_CAST_TIMEOUT" envDefault:"5s"`

	JWTSecret string        `env:"KMPDU_JWT_SECRET"`
	TokenTTL  time.Duration `env:"KMPDU_TOKEN_TTL" envDefault:"12h"`

	// AdminPassword guards admin and superadmin logins. Empty generates one
	// on first start and keeps it in settings.
	AdminPassword string `env:"KMPDU_ADMIN_PASSWORD"`

	// BaseURL is encoded into receipt QR codes
	BaseURL string `env:"KMPDU_BASE_URL"`

	LogLevel  string `env:"KMPDU_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"KMPDU_LOG_FORMAT" envDefault:"text"`

	ReconcileInterval time.Duration `env:"KMPDU_RECONCILE_INTERVAL" envDefault:"1m"`
	CountdownInterval time.Duration `env:"KMPDU_COUNTDOWN_INTERVAL" envDefault:"1s"`
}

// Load parses the environment into a Config with defaults applied
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values the server cannot start with
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.HistoryPath == "" {
		return fmt.Errorf("history path is required")
	}
	if c.CastTimeout <= 0 {
		return fmt.Errorf("cast timeout must be positive, got %s", c.CastTimeout)
	}
	if c.ReconcileInterval < 0 || c.CountdownInterval < 0 {
		return fmt.Errorf("intervals cannot be negative")
	}
	return nil
}

// Addr returns the listen address for Port
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
