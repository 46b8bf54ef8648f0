package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps a stray ./configs/studio.yaml from leaking into a test.
func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadServerDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, time.Second, cfg.BuildStepInterval)
	assert.Equal(t, 60*time.Second, cfg.AITimeout)
	assert.Equal(t, "builds", cfg.SFTPDir)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadServerFromEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("STUDIO_LISTEN_ADDR", ":9090")
	t.Setenv("STUDIO_STORE_BACKEND", "Redis")
	t.Setenv("STUDIO_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("STUDIO_BUILD_STEP_INTERVAL", "250ms")
	t.Setenv("STUDIO_TRACING_ENABLED", "true")

	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, 250*time.Millisecond, cfg.BuildStepInterval)
	assert.True(t, cfg.TracingEnabled)
}

func TestLoadServerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_backend: postgres\ndatabase_url: postgres://db/studio\naccess_key: secret\n"), 0o600))

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "postgres://db/studio", cfg.DatabaseURL)
	assert.Equal(t, "secret", cfg.AccessKey)
}

func TestLoadServerExplicitFileMustExist(t *testing.T) {
	_, err := LoadServer(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadServerValidation(t *testing.T) {
	inTempDir(t)

	t.Setenv("STUDIO_STORE_BACKEND", "sqlite")
	_, err := LoadServer("")
	assert.ErrorContains(t, err, "unknown store_backend")

	t.Setenv("STUDIO_STORE_BACKEND", "postgres")
	_, err = LoadServer("")
	assert.ErrorContains(t, err, "database_url required")

	t.Setenv("STUDIO_STORE_BACKEND", "memory")
	t.Setenv("STUDIO_SFTP_ADDR", "artifacts:22")
	_, err = LoadServer("")
	assert.ErrorContains(t, err, "sftp_user required")
}

func TestLoadClient(t *testing.T) {
	inTempDir(t)
	t.Setenv("STUDIOCTL_SERVER_URL", "http://studio:3000")
	t.Setenv("STUDIOCTL_POLL_INTERVAL", "2s")

	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, "http://studio:3000", cfg.ServerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
}
