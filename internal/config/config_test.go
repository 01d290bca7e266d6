package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadResolvesRelativeSQLitePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"server_address": ":9000", "database_type": "sqlite3"},
		"databases": {"sqlite3": {"dsn": "exto.db"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	require.Equal(t, filepath.Join(dir, "exto.db"), cfg.Databases["sqlite3"].DSN)
	require.Equal(t, "local", cfg.Storage.Type)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestRedisEnabledFromEnvironment(t *testing.T) {
	unsetEnv(t, "REDIS_HOST", "REDIS_URL", "REDIS_PORT")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"databases": {"sqlite3": {"dsn": ":memory:"}}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Redis.Enabled())

	t.Setenv("REDIS_PORT", "6380")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Redis.Enabled())
	require.Equal(t, 6380, cfg.Redis.Port)
}

func TestUnknownDatabaseType(t *testing.T) {
	t.Setenv("EXTO_DB", "postgres")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		// Setenv registers the restore, the value itself is removed right after.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestEnvOverridesStorageAndLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"basic_config": {"allow_origins": ["https://exto.example"]}}`), 0o644))
	t.Setenv("EXTO_STORAGE", "s3")
	t.Setenv("EXTO_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "s3", cfg.Storage.Type)
	require.Equal(t, "debug", cfg.BasicConfig.LogLevel)
	require.Equal(t, []string{"https://exto.example"}, cfg.BasicConfig.AllowOrigins)
	require.Equal(t, 24*60, cfg.BasicConfig.TokenTTL)
}
