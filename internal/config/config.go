package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/parambridge/internal/consts"
)

// Config represents the bridge daemon configuration
type Config struct {
	// ClientEndpoint is the endpoint the client message channel binds to,
	// e.g. "tcp://127.0.0.1:5000" or "unix:///tmp/parambridge.sock"
	ClientEndpoint string `json:"client_endpoint"`

	// PublishEndpoint is the endpoint the publish channel binds to
	PublishEndpoint string `json:"publish_endpoint"`

	// HTTPAddr is the listen address for the HTTP parameter interface
	HTTPAddr string `json:"http_addr"`

	// MaxConnections limits concurrent connections per channel
	MaxConnections int `json:"max_connections"`

	// LogLevel is one of debug, info, warn, error, none
	LogLevel string `json:"log_level"`

	// LogPath is the log file location; empty logs to stderr
	LogPath string `json:"log_path,omitempty"`

	// Owners maps owner names to JSON seed files holding their initial
	// parameter trees
	Owners map[string]string `json:"owners,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ClientEndpoint:  "tcp://127.0.0.1:5000",
		PublishEndpoint: "tcp://127.0.0.1:6000",
		HTTPAddr:        "127.0.0.1:8888",
		MaxConnections:  consts.DefaultMaxConnections,
		LogLevel:        "info",
	}
}

// GetConfigPath returns the config file location, honoring the
// PARAMBRIDGE_CONFIG environment variable
func GetConfigPath() string {
	if path := strings.TrimSpace(os.Getenv("PARAMBRIDGE_CONFIG")); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "parambridge.json"
	}
	return filepath.Join(homeDir, ".config", "parambridge", "config.json")
}

// Load reads the configuration file at path, merging it over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Save writes the configuration to path, creating parent directories
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	for _, endpoint := range []string{c.ClientEndpoint, c.PublishEndpoint} {
		if endpoint == "" {
			continue
		}
		if !strings.Contains(endpoint, "://") {
			return fmt.Errorf("endpoint %q must include a scheme (tcp:// or unix://)", endpoint)
		}
	}
	return nil
}

// applyEnvOverrides lets the environment override selected settings
func (c *Config) applyEnvOverrides() {
	if level := strings.TrimSpace(os.Getenv("PARAMBRIDGE_LOG_LEVEL")); level != "" {
		c.LogLevel = level
	}
	if path := strings.TrimSpace(os.Getenv("PARAMBRIDGE_LOG_PATH")); path != "" {
		c.LogPath = path
	}
	if addr := strings.TrimSpace(os.Getenv("PARAMBRIDGE_HTTP_ADDR")); addr != "" {
		c.HTTPAddr = addr
	}
}
