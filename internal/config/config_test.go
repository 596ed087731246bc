package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/novelink")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExchangeRate != defaultExchangeRate {
		t.Fatalf("expected default exchange rate, got %d", cfg.ExchangeRate)
	}
	if cfg.ProviderTimeout != defaultProviderTimeout {
		t.Fatalf("expected default provider timeout, got %s", cfg.ProviderTimeout)
	}
}

func TestLoadProviderTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProviderTimeout != 3*time.Second {
		t.Fatalf("expected 3s provider timeout, got %s", cfg.ProviderTimeout)
	}

	t.Setenv("PROVIDER_TIMEOUT", "-1s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive provider timeout")
	}
}

func TestLoadRejectsInconsistentBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOPUP_MIN_COINS", "100")
	t.Setenv("TOPUP_MAX_COINS", "10")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for min above max")
	}
}
