package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
token: abc123
gateway:
  handshake_timeout_seconds: 3
  poll_interval_millis: 25
pool:
  workers: 2
  queue_size: 8
status_api:
  enabled: true
  listen_addr: "127.0.0.1:9000"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "abc123" {
		t.Errorf("token = %q", cfg.Token)
	}
	if got := cfg.Gateway.HandshakeTimeout(); got != 3*time.Second {
		t.Errorf("handshake timeout = %v, want 3s", got)
	}
	if got := cfg.Gateway.PollInterval(); got != 25*time.Millisecond {
		t.Errorf("poll interval = %v, want 25ms", got)
	}
	if cfg.StatusAPI.Addr() != "127.0.0.1:9000" {
		t.Errorf("status addr = %q", cfg.StatusAPI.Addr())
	}
	if cfg.APIBaseURL == "" {
		t.Error("api base url default not applied")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Gateway.HandshakeTimeout(); got != 10*time.Second {
		t.Errorf("handshake timeout default = %v, want 10s", got)
	}
	if got := cfg.Gateway.PollInterval(); got != 50*time.Millisecond {
		t.Errorf("poll interval default = %v, want 50ms", got)
	}
	if got := cfg.Reconnect.Max(); got != 60*time.Second {
		t.Errorf("reconnect max default = %v, want 60s", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("token: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATWIRE_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "from-env" {
		t.Errorf("token = %q, want env override", cfg.Token)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing token", Config{}},
		{"presence without schedule", Config{Token: "t", Presence: &PresenceConfig{Statuses: []string{"x"}}}},
		{"presence without statuses", Config{Token: "t", Presence: &PresenceConfig{Schedule: "@every 1m"}}},
		{"tracing without endpoint", Config{Token: "t", Observability: &ObservabilityConfig{
			Tracing: &TracingConfig{Enabled: true},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
