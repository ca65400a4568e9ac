// Package config loads the application configuration from a JSON file and
// applies defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/netsharklabs/netshark-go/internal/logger"
)

// Config represents the application configuration.
type Config struct {
	// Appliance is the NetShark endpoint to talk to.
	Appliance struct {
		// Host is the appliance hostname or URL.
		Host string `json:"host"`
		// Token is a bearer token; takes precedence over Username/Password.
		Token    string `json:"token"`
		Username string `json:"username"`
		Password string `json:"password"`
		// InsecureTLS skips certificate verification.
		InsecureTLS bool `json:"insecure_tls"`
		// TimeoutSeconds bounds each HTTP request.
		TimeoutSeconds int `json:"timeout_seconds"`
	} `json:"appliance"`

	// Cache configures the persistent-view cache.
	Cache struct {
		// Path is the sqlite database file. Empty disables the cache.
		Path string `json:"path"`
	} `json:"cache"`

	// Logging configuration.
	Logging struct {
		// Level is the minimum log level to output (debug, info, warn, error).
		Level string `json:"level"`
		// File is the path to the log file. If empty, logs to stderr only.
		File string `json:"file"`
		// MaxSizeMB is the maximum size of the log file before rotation.
		MaxSizeMB int `json:"max_size_mb"`
	} `json:"logging"`
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ValidateAndSetDefaults()
	return &config, nil
}

// ValidateAndSetDefaults fills in defaults for unset fields.
func (c *Config) ValidateAndSetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Appliance.TimeoutSeconds == 0 {
		c.Appliance.TimeoutSeconds = 60
	}
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Appliance.TimeoutSeconds) * time.Second
}

// InitializeLogging sets up logging based on config.
func (c *Config) InitializeLogging() error {
	return logger.Init(logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		MaxSizeMB: c.Logging.MaxSizeMB,
	})
}
