package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Executor.ReviewTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  driver: postgres
  dsn: postgres://localhost/conductor
executor:
  parallel: true
  review_timeout: 30s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.True(t, cfg.Executor.Parallel)
	assert.Equal(t, 30*time.Second, cfg.Executor.ReviewTimeout)
	// Unset file fields keep their defaults.
	assert.Equal(t, ":8420", cfg.Server.Addr)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))
	t.Setenv("CONDUCTOR_LOG_LEVEL", "warn")
	t.Setenv("CONDUCTOR_REVIEW_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Executor.ReviewTimeout)
}

func TestLoad_RejectsBadDriver(t *testing.T) {
	t.Setenv("CONDUCTOR_STORE_DRIVER", "cassandra")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("CONDUCTOR_STORE_DRIVER", "postgres")
	_, err := Load("")
	assert.Error(t, err)
}
