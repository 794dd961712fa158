package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != ":3001" {
		t.Errorf("Address = %q, want %q", cfg.Address, ":3001")
	}
	if !cfg.Strict() {
		t.Error("default config is not strict")
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `{
		"address": ":9000",
		"strict_auth": false,
		"allowed_origins": ["https://editor.example.com"],
		"auth": {"verify_url": "https://id.example.com/verify"},
		"exec": {"enabled": true, "requests_per_minute": 5},
		"relay": {"send_queue_size": 128, "read_timeout_seconds": 45}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != ":9000" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.Strict() {
		t.Error("Strict() = true, want false")
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Auth.VerifyURL != "https://id.example.com/verify" {
		t.Errorf("VerifyURL = %q", cfg.Auth.VerifyURL)
	}
	if !cfg.Exec.Enabled || cfg.Exec.RequestsPerMinute != 5 {
		t.Errorf("Exec = %+v", cfg.Exec)
	}
	if cfg.Relay.SendQueueSize != 128 {
		t.Errorf("SendQueueSize = %d", cfg.Relay.SendQueueSize)
	}
	if cfg.ReadTimeout() != 45*time.Second {
		t.Errorf("ReadTimeout() = %v", cfg.ReadTimeout())
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"address": ":8080"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != ":8080" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if !cfg.Strict() {
		t.Error("partial config lost the strict default")
	}
	if cfg.ReadTimeout() != 0 {
		t.Errorf("ReadTimeout() = %v, want 0 (use gateway default)", cfg.ReadTimeout())
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"address": `)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted invalid JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{
			"verify url and static token conflict",
			func(c *Config) {
				c.Auth.VerifyURL = "https://id.example.com"
				c.Auth.StaticToken = "secret"
			},
			true,
		},
		{
			"negative queue size",
			func(c *Config) { c.Relay.SendQueueSize = -1 },
			true,
		},
		{
			"negative rate limit",
			func(c *Config) { c.Exec.RequestsPerMinute = -1 },
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
