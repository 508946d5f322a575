package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.MQDriver)
	assert.Equal(t, 72*time.Hour, cfg.VoteDuration)
	assert.Equal(t, uint32(500000), cfg.Token.ReserveRatio)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VOTE_DURATION=90s\nMQ_DRIVER=redis\nENABLE_RATE_LIMIT=true\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("VOTE_DURATION")
		os.Unsetenv("MQ_DRIVER")
		os.Unsetenv("ENABLE_RATE_LIMIT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.VoteDuration)
	assert.Equal(t, "redis", cfg.MQDriver)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
