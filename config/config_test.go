package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{
		"appliance": {
			"host": "shark.example.com",
			"token": "abc123",
			"insecure_tls": true
		},
		"cache": {"path": "/var/lib/netshark/views.db"},
		"logging": {"level": "debug"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "shark.example.com", cfg.Appliance.Host)
	assert.Equal(t, "abc123", cfg.Appliance.Token)
	assert.True(t, cfg.Appliance.InsecureTLS)
	assert.Equal(t, "/var/lib/netshark/views.db", cfg.Cache.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ValidateAndSetDefaults()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Logging.MaxSizeMB)
	assert.Equal(t, 60, cfg.Appliance.TimeoutSeconds)
}
