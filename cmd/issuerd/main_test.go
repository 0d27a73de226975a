package main

import (
	"testing"

	"pam-jwt-issuer/go-backend/internal/config"
)

func TestApplyFlagsOnlyTouchesChangedValues(t *testing.T) {
	fset, v, err := parseFlags([]string{"--bind-addr", "127.0.0.1:9000", "--no-metrics"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	cfg.SSH.Signer = config.SignerNative
	applyFlags(&cfg, fset, v)
	if cfg.BindAddr != "127.0.0.1:9000" || cfg.MetricsEnabled {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.SSH.Signer != config.SignerNative || cfg.Log.Level != config.DefaultLogLevel {
		t.Fatalf("unset flags must not override config: %+v", cfg)
	}
}

func TestParseFlagsShorthandConfig(t *testing.T) {
	_, v, err := parseFlags([]string{"-c", "/etc/issuer.yaml"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.configPath != "/etc/issuer.yaml" || v.envFile != ".env" {
		t.Fatalf("unexpected flag values: %+v", v)
	}
	if _, _, err := parseFlags([]string{"--bogus"}); err == nil {
		t.Fatal("expected unknown flag error")
	}
}
