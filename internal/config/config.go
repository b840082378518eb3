// Package config handles loading and validating chatwire configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for chatwire.
type Config struct {
	Token         string               `json:"token,omitempty" yaml:"token,omitempty"`                 // Bot token. Override: CHATWIRE_TOKEN env var.
	APIBaseURL    string               `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`   // REST API base. Default: https://discordapp.com/api.
	GatewayURL    string               `json:"gateway_url,omitempty" yaml:"gateway_url,omitempty"`     // Skip the bootstrap call and dial this URL directly.
	Gateway       GatewayConfig        `json:"gateway" yaml:"gateway"`
	Pool          PoolConfig           `json:"pool" yaml:"pool"`
	Presence      *PresenceConfig      `json:"presence,omitempty" yaml:"presence,omitempty"`           // nil = no presence rotation
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	StatusAPI     *StatusAPIConfig     `json:"status_api,omitempty" yaml:"status_api,omitempty"`       // nil = status API disabled
	Reconnect     *ReconnectConfig     `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`         // nil = reconnect with defaults
}

// GatewayConfig tunes the connection core. Zero values fall back to the
// defaults the loops were designed around.
type GatewayConfig struct {
	HandshakeTimeoutSeconds int `json:"handshake_timeout_seconds" yaml:"handshake_timeout_seconds"` // Per handshake step. Default: 10.
	PollIntervalMillis      int `json:"poll_interval_millis" yaml:"poll_interval_millis"`           // Consumer poll cadence. Default: 50.
}

// HandshakeTimeout returns the per-step handshake timeout.
func (g GatewayConfig) HandshakeTimeout() time.Duration {
	if g.HandshakeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.HandshakeTimeoutSeconds) * time.Second
}

// PollInterval returns the frame consumer poll cadence.
func (g GatewayConfig) PollInterval() time.Duration {
	if g.PollIntervalMillis <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(g.PollIntervalMillis) * time.Millisecond
}

// PoolConfig sizes the callback worker pool.
type PoolConfig struct {
	Workers   int `json:"workers" yaml:"workers"`       // Default: 4.
	QueueSize int `json:"queue_size" yaml:"queue_size"` // Default: 256.
}

// PresenceConfig rotates the bot's status line on a cron schedule.
type PresenceConfig struct {
	Schedule string   `json:"schedule" yaml:"schedule"` // cron spec, e.g. "@every 5m".
	Statuses []string `json:"statuses" yaml:"statuses"` // Lines cycled in order.
}

// ObservabilityConfig enables metrics and tracing.
type ObservabilityConfig struct {
	Metrics bool           `json:"metrics" yaml:"metrics"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"` // nil = tracing disabled
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "chatwire".
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP collector endpoint.
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" (default) or "http".
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"` // 0 < rate <= 1. Default: 1.0.
}

// StatusAPIConfig exposes local health, status, and metrics endpoints.
type StatusAPIConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: "127.0.0.1:8391".
}

// Addr returns the listen address, defaulting to localhost.
func (s *StatusAPIConfig) Addr() string {
	if s == nil || s.ListenAddr == "" {
		return "127.0.0.1:8391"
	}
	return s.ListenAddr
}

// ReconnectConfig shapes the supervising reconnect loop. The connection
// core itself never retries; this applies only to the runner.
type ReconnectConfig struct {
	BaseSeconds int `json:"base_seconds" yaml:"base_seconds"` // First backoff. Default: 5.
	MaxSeconds  int `json:"max_seconds" yaml:"max_seconds"`   // Backoff cap. Default: 60.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"` // 0 = retry forever.
}

// Base returns the first backoff interval.
func (r *ReconnectConfig) Base() time.Duration {
	if r == nil || r.BaseSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.BaseSeconds) * time.Second
}

// Max returns the backoff cap.
func (r *ReconnectConfig) Max() time.Duration {
	if r == nil || r.MaxSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(r.MaxSeconds) * time.Second
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chatwire.yaml"
	}
	return filepath.Join(home, ".chatwire", "config.yaml")
}

// Load reads configuration from path and applies environment overrides.
// A missing file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	var cfg Config

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	switch {
	case os.IsNotExist(err):
		// Defaults + env only.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	default:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".json":
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		}
	}

	// Environment variable overrides — env vars take precedence over config values.
	if envToken := os.Getenv("CHATWIRE_TOKEN"); envToken != "" {
		cfg.Token = envToken
	}
	if envURL := os.Getenv("CHATWIRE_GATEWAY_URL"); envURL != "" {
		cfg.GatewayURL = envURL
	}
	if envAPI := os.Getenv("CHATWIRE_API_BASE_URL"); envAPI != "" {
		cfg.APIBaseURL = envAPI
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://discordapp.com/api"
	}

	return &cfg, nil
}

// Validate checks that the configuration can actually connect.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required (config file or CHATWIRE_TOKEN)")
	}
	if c.Presence != nil {
		if c.Presence.Schedule == "" {
			return fmt.Errorf("presence.schedule is required when presence is set")
		}
		if len(c.Presence.Statuses) == 0 {
			return fmt.Errorf("presence.statuses must not be empty")
		}
	}
	if obs := c.Observability; obs != nil && obs.Tracing != nil && obs.Tracing.Enabled {
		if obs.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		if obs.Tracing.SampleRate < 0 || obs.Tracing.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be in (0, 1]")
		}
	}
	return nil
}

// resolvePath expands a leading ~ to the user's home directory.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
