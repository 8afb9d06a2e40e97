package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvAPIURL, EnvTimeout, EnvDBPath, EnvTokenKey, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, filepath.Join(dir, AppName, DBFileName), cfg.DBPath)
	assert.Empty(t, cfg.TokenKey)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIURL, "https://kanda.example.com/api")
	t.Setenv(EnvTimeout, "3s")
	t.Setenv(EnvDBPath, "/tmp/kanda.db")
	t.Setenv(EnvTokenKey, "passphrase")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Config{
		APIURL:   "https://kanda.example.com/api",
		Timeout:  3 * time.Second,
		DBPath:   "/tmp/kanda.db",
		TokenKey: "passphrase",
		LogLevel: "debug",
	}, cfg)
}

func TestLoad_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	for _, v := range []string{"soon", "-1s", "0s"} {
		t.Setenv(EnvTimeout, v)
		_, err := Load()
		assert.Error(t, err, v)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, EnsureConfigDir())

	content := "KANDA_API_URL=http://from-file:9000\nKANDA_LOG_LEVEL=info\n"
	require.NoError(t, os.WriteFile(ConfigPath(EnvFileName), []byte(content), 0600))

	// godotenv does not override variables that are already set, even to ""
	os.Unsetenv(EnvAPIURL)
	os.Unsetenv(EnvLogLevel)
	t.Cleanup(func() {
		os.Unsetenv(EnvAPIURL)
		os.Unsetenv(EnvLogLevel)
	})

	LoadEnvFile()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-file:9000", cfg.APIURL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.NotPanics(t, LoadEnvFile)
}
