package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultTrialDuration  = 3 * 24 * time.Hour
	DefaultCacheTTL       = 60 * time.Second
	DefaultSyncInterval   = 5 * time.Minute
	DefaultBackendTimeout = 10 * time.Second
)

// Config holds runtime configuration for the entitlement engine.
type Config struct {
	DataDir        string
	ListenAddr     string
	BackendURL     string
	BackendToken   string
	TrialDuration  time.Duration
	CacheTTL       time.Duration
	SyncInterval   time.Duration
	BackendTimeout time.Duration
	LogLevel       string
	LogFormat      string
	MockStore      bool
}

// Load builds a Config from the environment. A .env file in the data
// directory (or the working directory) is loaded first when present.
func Load() (*Config, error) {
	dataDir := strings.TrimSpace(os.Getenv("GOFIT_DATA_DIR"))
	if dataDir == "" {
		dataDir = "/var/lib/gofit"
	}

	// Load .env from the data dir first, then fall back to the working dir.
	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		DataDir:        dataDir,
		ListenAddr:     getEnv("GOFIT_LISTEN_ADDR", "127.0.0.1:7655"),
		BackendURL:     getEnv("GOFIT_BACKEND_URL", "https://api.gofit.ai"),
		BackendToken:   strings.TrimSpace(os.Getenv("GOFIT_BACKEND_TOKEN")),
		TrialDuration:  getDuration("GOFIT_TRIAL_DURATION", DefaultTrialDuration),
		CacheTTL:       getDuration("GOFIT_CACHE_TTL", DefaultCacheTTL),
		SyncInterval:   getDuration("GOFIT_SYNC_INTERVAL", DefaultSyncInterval),
		BackendTimeout: getDuration("GOFIT_BACKEND_TIMEOUT", DefaultBackendTimeout),
		LogLevel:       getEnv("GOFIT_LOG_LEVEL", "info"),
		LogFormat:      getEnv("GOFIT_LOG_FORMAT", "auto"),
		MockStore:      getBool("GOFIT_MOCK_STORE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values that would break the engine at runtime.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("invalid backend URL %q", c.BackendURL)
	}
	if c.TrialDuration <= 0 {
		return fmt.Errorf("trial duration must be positive, got %s", c.TrialDuration)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.CacheTTL)
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("sync interval too small: %s", c.SyncInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
