package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_LIFETIME", "")
	t.Setenv("APP_ENV", "")

	cfg := Load()

	if cfg.Session.Lifetime != 120*time.Minute {
		t.Errorf("expected default lifetime 120m, got %v", cfg.Session.Lifetime)
	}
	if cfg.Maintenance.UnblockAfter != 20*time.Minute {
		t.Errorf("expected unblock after 20m, got %v", cfg.Maintenance.UnblockAfter)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_LIFETIME", "45")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("JANITOR_PURGE_SESSIONS", "true")

	cfg := Load()

	if cfg.Session.Lifetime != 45*time.Minute {
		t.Errorf("expected 45m, got %v", cfg.Session.Lifetime)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Maintenance.PurgeSessions {
		t.Error("expected purge sessions enabled")
	}
}

func TestValidate_Production(t *testing.T) {
	cfg := &Config{Environment: "production"}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingSessionSecret) {
		t.Fatalf("expected ErrMissingSessionSecret, got %v", err)
	}

	cfg.Session.Secret = "s3cret"
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}

	cfg.Security.APIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestDatabaseURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/n?sslmode=disable"
	if got := d.URL(); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
