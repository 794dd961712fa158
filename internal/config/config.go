// Package config loads the codesync.json configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ConfigFileName is the default configuration file name.
const ConfigFileName = "codesync.json"

// Config is the complete codesync.json schema.
type Config struct {
	// Address is the listen address.
	Address string `json:"address,omitempty"`

	// StrictAuth controls the authentication policy. Defaults to true;
	// set to false only for local development.
	StrictAuth *bool `json:"strict_auth,omitempty"`

	// AllowedOrigins lists origins allowed on the HTTP surface.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// Auth configures the identity verifier.
	Auth AuthConfig `json:"auth,omitempty"`

	// Exec configures the code-execution proxy.
	Exec ExecConfig `json:"exec,omitempty"`

	// Relay configures per-connection behavior.
	Relay RelayConfig `json:"relay,omitempty"`
}

// AuthConfig configures the identity verifier.
type AuthConfig struct {
	// VerifyURL is the remote verification endpoint. When set, the
	// relay uses the HTTP verifier.
	VerifyURL string `json:"verify_url,omitempty"`

	// StaticToken is a single pre-shared credential, used when no
	// VerifyURL is configured.
	StaticToken string `json:"static_token,omitempty"`

	// StaticUID is the identity issued for StaticToken.
	StaticUID string `json:"static_uid,omitempty"`
}

// ExecConfig configures the code-execution proxy.
type ExecConfig struct {
	// Enabled turns the /api/execute endpoint on.
	Enabled bool `json:"enabled,omitempty"`

	// APIURL overrides the upstream execution endpoint.
	APIURL string `json:"api_url,omitempty"`

	// RequestsPerMinute limits executions per client IP.
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
}

// RelayConfig configures per-connection behavior.
type RelayConfig struct {
	// SendQueueSize is the per-connection outbound queue depth.
	SendQueueSize int `json:"send_queue_size,omitempty"`

	// MaxMessageBytes is the maximum inbound message size.
	MaxMessageBytes int64 `json:"max_message_bytes,omitempty"`

	// ReadTimeoutSeconds is the inbound read deadline.
	ReadTimeoutSeconds int `json:"read_timeout_seconds,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	strict := true
	return &Config{
		Address:    ":3001",
		StrictAuth: &strict,
	}
}

// Load reads and validates the configuration file at path. A missing
// file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Auth.VerifyURL != "" && c.Auth.StaticToken != "" {
		return fmt.Errorf("config: auth.verify_url and auth.static_token are mutually exclusive")
	}
	if c.Relay.SendQueueSize < 0 {
		return fmt.Errorf("config: relay.send_queue_size must not be negative")
	}
	if c.Exec.RequestsPerMinute < 0 {
		return fmt.Errorf("config: exec.requests_per_minute must not be negative")
	}
	return nil
}

// Strict reports the effective authentication policy.
func (c *Config) Strict() bool {
	if c.StrictAuth == nil {
		return true
	}
	return *c.StrictAuth
}

// ReadTimeout returns the effective read timeout.
func (c *Config) ReadTimeout() time.Duration {
	if c.Relay.ReadTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Relay.ReadTimeoutSeconds) * time.Second
}
