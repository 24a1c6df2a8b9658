package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	p := writeTemp(t, `
storage:
  dsn: postgres://localhost/keygate_test
jwt:
  issuer: https://auth.example.com
  secret: test-secret-test-secret-test-secret!
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", c.Server.Addr)
	}
	if got := c.AccessTTL(); got != time.Hour {
		t.Errorf("AccessTTL = %v, want 1h", got)
	}
	if got := c.RefreshTTL(); got != 720*time.Hour {
		t.Errorf("RefreshTTL = %v, want 720h", got)
	}
	if got := c.CodeTTL(); got != 10*time.Minute {
		t.Errorf("CodeTTL = %v, want 10m", got)
	}
	if got := c.WebhookTimeout(); got != 10*time.Second {
		t.Errorf("WebhookTimeout = %v, want 10s", got)
	}
	if got := c.WebhookBaseDelay(); got != time.Minute {
		t.Errorf("WebhookBaseDelay = %v, want 60s", got)
	}
	if c.Webhook.MaxAttempts != 3 {
		t.Errorf("Webhook.MaxAttempts = %d, want 3", c.Webhook.MaxAttempts)
	}
	if c.Cache.Kind != "memory" {
		t.Errorf("Cache.Kind = %q, want memory", c.Cache.Kind)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("JWT_SECRET", "env-secret-env-secret-env-secret-env")
	t.Setenv("JWT_ACCESS_TTL", "30m")

	p := writeTemp(t, `
storage:
  dsn: postgres://localhost/keygate_test
jwt:
  issuer: https://auth.example.com
  secret: yaml-secret
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want :9999", c.Server.Addr)
	}
	if c.JWT.Secret != "env-secret-env-secret-env-secret-env" {
		t.Errorf("JWT.Secret not overridden by env")
	}
	if got := c.AccessTTL(); got != 30*time.Minute {
		t.Errorf("AccessTTL = %v, want 30m", got)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	cases := map[string]string{
		"no dsn": `
jwt:
  issuer: https://auth.example.com
  secret: s3cr3t
`,
		"no issuer": `
storage:
  dsn: postgres://localhost/keygate
jwt:
  secret: s3cr3t
`,
		"redis without addr": `
storage:
  dsn: postgres://localhost/keygate
jwt:
  issuer: https://auth.example.com
  secret: s3cr3t
cache:
  kind: redis
`,
		"bad duration": `
storage:
  dsn: postgres://localhost/keygate
jwt:
  issuer: https://auth.example.com
  secret: s3cr3t
  access_ttl: soon
`,
	}
	for name, body := range cases {
		if _, err := Load(writeTemp(t, body)); err == nil {
			t.Errorf("%s: Load accepted invalid config", name)
		}
	}
}
