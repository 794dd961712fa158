package server

import (
	"net/http"
	"net/url"
	"time"
)

// Config holds configuration for the relay gateway.
type Config struct {
	// Address is the address to listen on (e.g. ":3001").
	// Default: ":3001".
	Address string

	// StrictAuth controls the authentication policy. When true, an
	// upgrade without a valid credential is rejected with 401 before any
	// room state is touched. When false, such upgrades proceed under the
	// fixed development identity and a warning is logged.
	// Default: true.
	StrictAuth bool

	// WebSocket buffer sizes.

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin validates the upgrade request origin.
	// Default: same-origin.
	CheckOrigin func(r *http.Request) bool

	// Timeouts.

	// ReadTimeout is the maximum time to wait for a client message.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// PingInterval is the time between WebSocket pings.
	// Default: 30 seconds.
	PingInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 15 seconds.
	ShutdownTimeout time.Duration

	// Limits.

	// MaxMessageSize is the maximum size of an inbound message.
	// Default: 1MB.
	MaxMessageSize int64

	// SendQueueSize is the per-connection outbound queue depth. A hung
	// peer fills its own queue and starts dropping; it never blocks
	// delivery to other peers.
	// Default: 64.
	SendQueueSize int

	// AllowedOrigins lists origins allowed on the HTTP surface (CORS).
	// Default: localhost on any port.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with production defaults. StrictAuth is
// on; disable it explicitly for local development.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":3001",
		StrictAuth:      true,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxMessageSize:  1 << 20,
		SendQueueSize:   64,
		AllowedOrigins:  []string{"http://localhost:*", "https://localhost:*"},
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.AllowedOrigins != nil {
		clone.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	}
	return &clone
}

// WithAddress sets the listen address and returns the config for chaining.
func (c *Config) WithAddress(addr string) *Config {
	c.Address = addr
	return c
}

// WithStrictAuth sets the authentication policy and returns the config
// for chaining.
func (c *Config) WithStrictAuth(strict bool) *Config {
	c.StrictAuth = strict
	return c
}

// WithSendQueueSize sets the outbound queue depth and returns the config
// for chaining.
func (c *Config) WithSendQueueSize(n int) *Config {
	c.SendQueueSize = n
	return c
}

// SameOriginCheck validates that the upgrade origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return originURL.Host == r.Host
}

// fill replaces zero values with defaults.
func (c *Config) fill() {
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = defaults.SendQueueSize
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = defaults.AllowedOrigins
	}
}
