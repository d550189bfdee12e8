// Package config loads and validates the oxysign configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Session  SessionConfig  `yaml:"session"`
	Callback CallbackConfig `yaml:"callback"`
	Log      LogConfig      `yaml:"log"`
}

// ServiceConfig defines the identity service endpoints and caller identity
type ServiceConfig struct {
	BaseURL     string `yaml:"base_url"`      // identity service API (e.g. "https://api.oxy.so")
	AuthBaseURL string `yaml:"auth_base_url"` // hosted authorize UI (e.g. "https://oxy.so")
	Scheme      string `yaml:"scheme"`        // deep link scheme (e.g. "oxy")
	ClientTag   string `yaml:"client_tag"`    // caller-identifying tag sent at registration
}

// SessionConfig defines handshake session behavior
type SessionConfig struct {
	TimeoutSeconds      int `yaml:"timeout_seconds"`       // handshake window in seconds
	PollIntervalSeconds int `yaml:"poll_interval_seconds"` // fallback polling cadence in seconds
}

// Timeout returns the handshake window as a duration.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// PollInterval returns the polling cadence as a duration.
func (s SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// CallbackConfig defines the redirect listener.
// An empty Listen disables the listener entirely; on platforms where inbound
// deep-linking is not the authorization path the flow runs on the socket and
// polling channels alone.
type CallbackConfig struct {
	Listen      string `yaml:"listen"`       // loopback address (e.g. "127.0.0.1:8675")
	RedirectURI string `yaml:"redirect_uri"` // explicit redirect_uri; derived from Listen when empty
}

// EffectiveRedirectURI returns the redirect_uri to attach to the authorize
// URL: the configured value, or one best-effort derived from the listen
// address, or "" when the listener is disabled.
func (c CallbackConfig) EffectiveRedirectURI() string {
	if c.RedirectURI != "" {
		return c.RedirectURI
	}
	if c.Listen == "" {
		return ""
	}
	return "http://" + c.Listen + "/callback"
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load reads and parses the configuration file. An empty path loads defaults
// plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:     "https://api.oxy.so",
			AuthBaseURL: "https://oxy.so",
			Scheme:      "oxy",
			ClientTag:   "oxysign-cli",
		},
		Session: SessionConfig{
			TimeoutSeconds:      300, // 5 minutes
			PollIntervalSeconds: 3,
		},
		Callback: CallbackConfig{
			Listen: "127.0.0.1:8675",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OXYSIGN_BASE_URL"); v != "" {
		c.Service.BaseURL = v
	}
	if v := os.Getenv("OXYSIGN_AUTH_BASE_URL"); v != "" {
		c.Service.AuthBaseURL = v
	}
	if v := os.Getenv("OXYSIGN_SCHEME"); v != "" {
		c.Service.Scheme = v
	}
	if v := os.Getenv("OXYSIGN_CLIENT_TAG"); v != "" {
		c.Service.ClientTag = v
	}

	if v := os.Getenv("OXYSIGN_CALLBACK_LISTEN"); v != "" {
		c.Callback.Listen = v
	}
	if v := os.Getenv("OXYSIGN_REDIRECT_URI"); v != "" {
		c.Callback.RedirectURI = v
	}

	if v := os.Getenv("OXYSIGN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OXYSIGN_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	if !strings.HasPrefix(c.Service.BaseURL, "http://") && !strings.HasPrefix(c.Service.BaseURL, "https://") {
		return fmt.Errorf("service.base_url must be a valid HTTP(S) URL")
	}

	if c.Service.AuthBaseURL == "" {
		return fmt.Errorf("service.auth_base_url is required")
	}
	if !strings.HasPrefix(c.Service.AuthBaseURL, "http://") && !strings.HasPrefix(c.Service.AuthBaseURL, "https://") {
		return fmt.Errorf("service.auth_base_url must be a valid HTTP(S) URL")
	}

	if c.Service.Scheme == "" {
		return fmt.Errorf("service.scheme is required")
	}
	for _, r := range c.Service.Scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '+' && r != '.' {
			return fmt.Errorf("service.scheme must be a valid URL scheme")
		}
	}

	if c.Service.ClientTag == "" {
		return fmt.Errorf("service.client_tag is required")
	}

	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session.timeout_seconds must be positive")
	}
	if c.Session.TimeoutSeconds > 3600 {
		return fmt.Errorf("session.timeout_seconds should not exceed 3600 seconds (1 hour)")
	}

	if c.Session.PollIntervalSeconds <= 0 {
		return fmt.Errorf("session.poll_interval_seconds must be positive")
	}
	if c.Session.PollIntervalSeconds > c.Session.TimeoutSeconds {
		return fmt.Errorf("session.poll_interval_seconds must not exceed the session timeout")
	}

	if c.Callback.RedirectURI != "" {
		if !strings.HasPrefix(c.Callback.RedirectURI, "http://") && !strings.HasPrefix(c.Callback.RedirectURI, "https://") {
			return fmt.Errorf("callback.redirect_uri must be a valid HTTP(S) URL")
		}
	}
	if c.Callback.RedirectURI != "" && c.Callback.Listen == "" {
		return fmt.Errorf("callback.redirect_uri requires callback.listen")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	return nil
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
