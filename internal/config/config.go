// Package config provides client configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL         = "http://127.0.0.1:8000"
	DefaultSessionID      = "default-session-1"
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// Config holds all client configuration.
type Config struct {
	APIURL           string
	DefaultSessionID string
	PollInterval     time.Duration
	RequestTimeout   time.Duration
	LogFile          string
	LedgerPath       string
	Debug            bool
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:           getEnv("NG12_API_URL", getEnv("NEXT_PUBLIC_API_URL", DefaultAPIURL)),
		DefaultSessionID: getEnv("NG12_DEFAULT_SESSION", DefaultSessionID),
		LogFile:          getEnv("NG12_LOG_FILE", filepath.Join(os.TempDir(), "ng12-assist.log")),
		LedgerPath:       getEnv("NG12_LEDGER_PATH", defaultLedgerPath()),
		Debug:            getEnvBool("NG12_DEBUG", false),
	}

	var err error
	if cfg.PollInterval, err = getEnvDuration("NG12_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("NG12_REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("NG12_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if c.DefaultSessionID == "" {
		return fmt.Errorf("NG12_DEFAULT_SESSION cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("NG12_POLL_INTERVAL must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("NG12_REQUEST_TIMEOUT must be > 0")
	}
	return nil
}

func defaultLedgerPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ng12-assist", "assessments.duckdb")
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
