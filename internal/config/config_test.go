package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
	if len(cfg.Statuses) != 3 || cfg.Statuses[0].Key != "todo" {
		t.Fatalf("unexpected status seeds %+v", cfg.Statuses)
	}
	if !cfg.Features.KanbanEnabled || cfg.Features.JiraIntegration {
		t.Fatalf("unexpected feature defaults %+v", cfg.Features)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"short secret", "jwt_secret: trackly-development-secret", "jwt_secret: short"},
		{"missing ttl", "token_ttl: 12h", "token_ttl: 0s"},
		{"duplicate seed", "key: done", "key: TODO"},
		{"bad webhook url", "webhooks: []", "webhooks: [{url: \"not a url\"}]"},
		{"base path", "base_path: /v1", "base_path: v1"},
		{"slack without channel", "token: \"\"\n    channel", "token: xoxb-1\n    channel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yml := GenerateDefault("trackly-development-secret")
			if !strings.Contains(yml, tc.old) {
				t.Fatalf("template missing %q", tc.old)
			}
			yml = strings.Replace(yml, tc.old, tc.new, 1)
			if _, err := FromYAML([]byte(yml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Server.Addr == "" {
		t.Fatalf("expected default addr")
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	yml := strings.Replace(GenerateDefault("a-much-longer-secret-value"), "127.0.0.1:8080", "0.0.0.0:9090", 1)
	if err := os.WriteFile(Path(dir), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9090" || cfg.Auth.JWTSecret != "a-much-longer-secret-value" {
		t.Fatalf("unexpected config %+v", cfg.Server)
	}
}
