package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRC_TOKEN_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.TokenTTL != 60*time.Minute {
		t.Fatalf("unexpected token ttl: %s", cfg.TokenTTL)
	}
	if cfg.TokenIssuer != "grcore" {
		t.Fatalf("unexpected issuer: %s", cfg.TokenIssuer)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("GRC_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}
