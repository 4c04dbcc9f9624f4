package config

import (
	"strings"
	"testing"
)

const testPepper = "config-test-pepper-0123456789abcdef"

func TestLoadRequiresPepper(t *testing.T) {
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "VIABOT_IDENTIFIER_PEPPER") {
		t.Fatalf("expected pepper error, got %v", err)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("VIABOT_IDENTIFIER_PEPPER", testPepper)
	t.Setenv("VIABOT_SERVER_PORT", "8080")
	t.Setenv("VIABOT_SITE_TOKENS_ENABLED", "true")
	t.Setenv("VIABOT_SITE_TOKEN_SECRET", "site-secret")
	t.Setenv("VIABOT_LIMITS_MESSAGES_PER_WINDOW", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Limits.MessagesPerWindow != 5 {
		t.Fatalf("messages per window = %d", cfg.Limits.MessagesPerWindow)
	}
	if !cfg.Site.TokensEnabled || cfg.Site.TokenSecret != "site-secret" {
		t.Fatalf("site = %+v", cfg.Site)
	}
	// untouched defaults survive
	if cfg.Limits.WindowSeconds != 60 {
		t.Fatalf("window seconds = %d", cfg.Limits.WindowSeconds)
	}
	if cfg.Bradesco.APIPrefix != "/v1/boleto" {
		t.Fatalf("bradesco prefix = %q", cfg.Bradesco.APIPrefix)
	}
}

func TestLoadRejectsTokenSecretMissing(t *testing.T) {
	t.Setenv("VIABOT_IDENTIFIER_PEPPER", testPepper)
	t.Setenv("VIABOT_SITE_TOKENS_ENABLED", "true")
	t.Setenv("VIABOT_SITE_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when tokens enabled without secret")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("VIABOT_IDENTIFIER_PEPPER", testPepper)
	t.Setenv("VIABOT_SERVER_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
