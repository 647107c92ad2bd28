// Package config loads gateway client configuration from YAML files with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding file configuration.
const (
	// EnvGatewayURL overrides the gateway endpoint.
	EnvGatewayURL = "OPENCLAW_GATEWAY_URL"

	// EnvGatewayToken overrides the account bearer token.
	EnvGatewayToken = "OPENCLAW_GATEWAY_TOKEN"
)

// Defaults.
const (
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultReconnectInitial = 1 * time.Second
	DefaultReconnectMax     = 60 * time.Second
	DefaultMaxMessageSize   = 1 << 20
)

// Config is the gateway client configuration.
type Config struct {
	// Gateway endpoint, e.g. ws://127.0.0.1:8089/ws.
	GatewayURL string `yaml:"gatewayUrl"`

	// Token is the account bearer token used before the device is paired.
	Token string `yaml:"token"`

	// ClientID identifies this client to the gateway.
	ClientID string `yaml:"clientId"`

	// ClientMode distinguishes client flavors sharing an id.
	ClientMode string `yaml:"clientMode"`

	// Role requested for this connection.
	Role string `yaml:"role"`

	// Scopes requested for this connection.
	Scopes []string `yaml:"scopes"`

	// IdentityPath is the device identity file location.
	IdentityPath string `yaml:"identityPath"`

	// ProtocolLogPath enables binary protocol capture when set.
	ProtocolLogPath string `yaml:"protocolLogPath"`

	// HandshakeTimeout bounds the connect handshake.
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`

	// RequestTimeout is the default per-request deadline.
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// ReconnectInitial is the first reconnect delay.
	ReconnectInitial time.Duration `yaml:"reconnectInitial"`

	// ReconnectMax caps the reconnect delay.
	ReconnectMax time.Duration `yaml:"reconnectMax"`

	// MaxMessageSize is the inbound frame size ceiling in bytes.
	MaxMessageSize int64 `yaml:"maxMessageSize"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	return Config{
		ClientMode:       "node",
		Role:             "operator",
		HandshakeTimeout: DefaultHandshakeTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		ReconnectInitial: DefaultReconnectInitial,
		ReconnectMax:     DefaultReconnectMax,
		MaxMessageSize:   DefaultMaxMessageSize,
	}
}

// Load reads configuration from path, fills defaults, and applies
// environment overrides. A missing file is not an error; defaults plus
// environment are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv returns defaults plus environment overrides, no file involved.
func FromEnv() Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.ClientMode == "" {
		c.ClientMode = d.ClientMode
	}
	if c.Role == "" {
		c.Role = d.Role
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = d.ReconnectInitial
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = d.ReconnectMax
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGatewayURL); v != "" {
		c.GatewayURL = v
	}
	if v := os.Getenv(EnvGatewayToken); v != "" {
		c.Token = v
	}
}

// Validate checks the configuration for use by the gateway client.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gatewayUrl is required (or set %s)", EnvGatewayURL)
	}
	if !strings.HasPrefix(c.GatewayURL, "ws://") && !strings.HasPrefix(c.GatewayURL, "wss://") {
		return fmt.Errorf("gatewayUrl must use ws:// or wss://, got %q", c.GatewayURL)
	}
	if c.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if c.ReconnectInitial > c.ReconnectMax {
		return fmt.Errorf("reconnectInitial (%v) exceeds reconnectMax (%v)",
			c.ReconnectInitial, c.ReconnectMax)
	}
	return nil
}
