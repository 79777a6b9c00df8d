package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MAX_EXPORT_SIZE", "")
	t.Setenv("PULL_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 30*time.Minute, cfg.PullTimeout)
	assert.Equal(t, "index.docker.io", cfg.RegistryHost)
	require.NoError(t, cfg.Validate())

	size, err := cfg.MaxExportSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024*1024), size)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_EXPORT_SIZE", "512MB")
	t.Setenv("PULL_TIMEOUT", "5m")
	t.Setenv("MAX_CONCURRENT_PULLS", "4")
	t.Setenv("REGISTRY_INSECURE", "true")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.PullTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrentPulls)
	assert.True(t, cfg.RegistryInsecure)

	size, err := cfg.MaxExportSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), size)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:               "3000",
			APIPrefix:          "/api",
			MaxExportSize:      "1GB",
			PullTimeout:        time.Minute,
			RegistryTimeout:    time.Second,
			MaxConcurrentPulls: 1,
		}
	}
	require.NoError(t, base().Validate())

	tests := map[string]func(*Config){
		"port":        func(c *Config) { c.Port = "http" },
		"prefix":      func(c *Config) { c.APIPrefix = "api" },
		"size":        func(c *Config) { c.MaxExportSize = "lots" },
		"zero size":   func(c *Config) { c.MaxExportSize = "0" },
		"timeout":     func(c *Config) { c.PullTimeout = 0 },
		"concurrency": func(c *Config) { c.MaxConcurrentPulls = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
