package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DefaultBodySizeLimit, cfg.Server.BodySizeLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "data/phivault.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.Storage.OpTimeout)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "local", cfg.Cache.Type)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PHIVAULT_PORT", "9090")
	t.Setenv("PHIVAULT_STORAGE_TYPE", "memory")
	t.Setenv("PHIVAULT_MASTER_KEY", "secret")
	t.Setenv("PHIVAULT_AUDIT_ENABLED", "false")
	t.Setenv("PHIVAULT_CACHE_TYPE", "none")
	t.Setenv("PHIVAULT_STORE_TIMEOUT", "250ms")
	t.Setenv("PHIVAULT_METRICS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "secret", cfg.Server.MasterKey)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "none", cfg.Cache.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.Storage.OpTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsInvalidStorageType(t *testing.T) {
	t.Setenv("PHIVAULT_STORAGE_TYPE", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresPostgresURL(t *testing.T) {
	t.Setenv("PHIVAULT_STORAGE_TYPE", "postgresql")
	t.Setenv("PHIVAULT_POSTGRES_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresRedisURL(t *testing.T) {
	t.Setenv("PHIVAULT_CACHE_TYPE", "redis")
	t.Setenv("PHIVAULT_REDIS_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PHIVAULT_AUDIT_BUFFER_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Audit.BufferSize)
}
