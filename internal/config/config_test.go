package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOFIT_LISTEN_ADDR", "GOFIT_BACKEND_URL", "GOFIT_BACKEND_TOKEN",
		"GOFIT_TRIAL_DURATION", "GOFIT_CACHE_TTL", "GOFIT_SYNC_INTERVAL",
		"GOFIT_BACKEND_TIMEOUT", "GOFIT_LOG_LEVEL", "GOFIT_LOG_FORMAT",
		"GOFIT_MOCK_STORE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("GOFIT_DATA_DIR", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7655", cfg.ListenAddr)
	assert.Equal(t, "https://api.gofit.ai", cfg.BackendURL)
	assert.Equal(t, DefaultTrialDuration, cfg.TrialDuration)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
	assert.Equal(t, DefaultBackendTimeout, cfg.BackendTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.MockStore)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOFIT_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("GOFIT_BACKEND_URL", "http://localhost:4000")
	t.Setenv("GOFIT_BACKEND_TOKEN", "secret")
	t.Setenv("GOFIT_TRIAL_DURATION", "24h")
	t.Setenv("GOFIT_CACHE_TTL", "30s")
	t.Setenv("GOFIT_MOCK_STORE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:4000", cfg.BackendURL)
	assert.Equal(t, "secret", cfg.BackendToken)
	assert.Equal(t, 24*time.Hour, cfg.TrialDuration)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.MockStore)
}

func TestLoadIgnoresInvalidDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOFIT_CACHE_TTL", "not-a-duration")
	t.Setenv("GOFIT_SYNC_INTERVAL", "-5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		BackendURL:    "https://api.gofit.ai",
		TrialDuration: DefaultTrialDuration,
		CacheTTL:      DefaultCacheTTL,
		SyncInterval:  DefaultSyncInterval,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad URL scheme", func(c *Config) { c.BackendURL = "ftp://api.gofit.ai" }},
		{"zero trial duration", func(c *Config) { c.TrialDuration = 0 }},
		{"zero cache TTL", func(c *Config) { c.CacheTTL = 0 }},
		{"sub-second sync interval", func(c *Config) { c.SyncInterval = 100 * time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
