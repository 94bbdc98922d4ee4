package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if cfg.DBPath != "kmpdu.db" || cfg.HistoryPath != "history.db" {
		t.Errorf("paths = %q, %q", cfg.DBPath, cfg.HistoryPath)
	}
	if cfg.CastTimeout != 5*time.Second {
		t.Errorf("CastTimeout = %s, want 5s", cfg.CastTimeout)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %s, want 12h", cfg.TokenTTL)
	}
	if cfg.ReconcileInterval != time.Minute || cfg.CountdownInterval != time.Second {
		t.Errorf("intervals = %s, %s", cfg.ReconcileInterval, cfg.CountdownInterval)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.APIURL != "" || cfg.JWTSecret != "" || cfg.AdminPassword != "" {
		t.Error("API URL, secret and admin password should default to empty")
	}
	if cfg.Addr() != ":8081" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KMPDU_PORT", "9000")
	t.Setenv("KMPDU_API_URL", "https://api.kmpdu.example")
	t.Setenv("KMPDU_CAST_TIMEOUT", "2s")
	t.Setenv("KMPDU_RECONCILE_INTERVAL", "0")
	t.Setenv("KMPDU_LOG_FORMAT", "json")
	t.Setenv("KMPDU_ADMIN_PASSWORD", "clinic-ward-pulse-union")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.APIURL != "https://api.kmpdu.example" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.CastTimeout != 2*time.Second {
		t.Errorf("CastTimeout = %s", cfg.CastTimeout)
	}
	if cfg.AdminPassword != "clinic-ward-pulse-union" {
		t.Errorf("AdminPassword = %q", cfg.AdminPassword)
	}
	if cfg.ReconcileInterval != 0 {
		t.Errorf("ReconcileInterval = %s, want disabled", cfg.ReconcileInterval)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("KMPDU_PORT", "not-an-int")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Port: 8081, DBPath: "a.db", HistoryPath: "h.db", CastTimeout: time.Second}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"no db path", func(c *Config) { c.DBPath = "" }, true},
		{"no history path", func(c *Config) { c.HistoryPath = "" }, true},
		{"zero timeout", func(c *Config) { c.CastTimeout = 0 }, true},
		{"negative interval", func(c *Config) { c.ReconcileInterval = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
