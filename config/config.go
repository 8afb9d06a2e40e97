package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "kanda-client"
	EnvFileName = "config.env"
	DBFileName  = "session.db"
)

// Environment variables read by Load.
const (
	EnvAPIURL   = "KANDA_API_URL"
	EnvTimeout  = "KANDA_TIMEOUT"
	EnvDBPath   = "KANDA_DB_PATH"
	EnvTokenKey = "KANDA_TOKEN_KEY"
	EnvLogLevel = "KANDA_LOG_LEVEL"
)

const (
	DefaultAPIURL   = "http://localhost:8000"
	DefaultTimeout  = 10 * time.Second
	DefaultLogLevel = "warn"
)

// Config is the resolved client configuration.
type Config struct {
	APIURL  string
	Timeout time.Duration
	// DBPath is the SQLite file holding the session.
	DBPath string
	// TokenKey is the passphrase for encrypting stored values. Empty means
	// values are stored in plaintext.
	TokenKey string
	LogLevel string
}

// ConfigDir returns the config directory for the app.
// Uses $XDG_CONFIG_HOME/kanda-client or the OS user config dir.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", AppName)
	}
	return filepath.Join(base, AppName)
}

// ConfigPath returns the full path to a file in the config directory.
func ConfigPath(filename string) string {
	return filepath.Join(ConfigDir(), filename)
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0700)
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// Variables already set in the environment take precedence.
func LoadEnvFile() {
	_ = godotenv.Load(ConfigPath(EnvFileName))
}

// Load reads the configuration from the environment, falling back to
// defaults.
func Load() (Config, error) {
	cfg := Config{
		APIURL:   DefaultAPIURL,
		Timeout:  DefaultTimeout,
		DBPath:   ConfigPath(DBFileName),
		TokenKey: os.Getenv(EnvTokenKey),
		LogLevel: DefaultLogLevel,
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("invalid %s %q: must be positive", EnvTimeout, v)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}
