package config

import (
	"testing"
	"time"

	"github.com/NNTin/d-cogs/internal/versions"
	"github.com/spf13/viper"
)

func newConfiguredViper() *viper.Viper {
	configViper := NewViper()
	configViper.Set("discord.token", "bot-token")
	configViper.Set("auth.signing_secret", "signing-secret")
	return configViper
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(newConfiguredViper())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "dworld.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
	if cfg.APIBase != "https://discord.com/api" {
		t.Fatalf("unexpected api base: %q", cfg.APIBase)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.VersionsCatalogURL != versions.DefaultCatalogURL {
		t.Fatalf("unexpected catalog url: %q", cfg.VersionsCatalogURL)
	}
}

func TestLoadValidatesRequiredSettings(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value any
	}{
		{name: "missing bot token", key: "discord.token", value: "  "},
		{name: "missing signing secret", key: "auth.signing_secret", value: ""},
		{name: "missing database path", key: "database.path", value: ""},
		{name: "non-positive ttl", key: "auth.token_ttl_minutes", value: 0},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := newConfiguredViper()
			configViper.Set(testCase.key, testCase.value)

			if _, err := Load(configViper); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	configViper := newConfiguredViper()
	configViper.Set("http.address", "127.0.0.1:9090")
	configViper.Set("auth.token_ttl_minutes", 15)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 15*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
}
