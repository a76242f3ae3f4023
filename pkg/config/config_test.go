package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.PongTimeout = cfg.Relay.PingInterval / 2
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Session.CompletionFallback = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 8*time.Second, cfg.Session.CompletionFallback)
}

func TestLoadAppliesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  address: ":9999"
relay:
  send_buffer: 128
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 128, cfg.Relay.SendBuffer)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8081", cfg.Relay.Address)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("LIVESESSION_SERVER_ADDRESS", ":7777")
	t.Setenv("LIVESESSION_JWT_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}
