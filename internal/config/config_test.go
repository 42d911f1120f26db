package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

func setProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SV_API_KEY", "key")
	t.Setenv("SV_URL", "api.example.com")
	t.Setenv("SV_API_VERSION", "v1")
}

func TestLoadDefaults(t *testing.T) {
	setProviderEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Provider.BaseURL())
	assert.Equal(t, 15*time.Second, cfg.Provider.HTTPTimeout)
	assert.Equal(t, 0, cfg.Provider.MaxRetries)
	assert.Equal(t, 5.0, cfg.Provider.RateLimit)
	assert.Equal(t, teleconnection.DefaultConcurrency, cfg.FetchConcurrency)
	assert.False(t, cfg.CacheEnabled())
	assert.Empty(t, cfg.WarmModels)
	assert.Equal(t, []teleconnection.Index{teleconnection.IndexPNA, teleconnection.IndexNAO, teleconnection.IndexAO}, cfg.WarmIndices)
	assert.Equal(t, 1200, cfg.ChartWidth)
	assert.Equal(t, 800, cfg.ChartHeight)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadOverrides(t *testing.T) {
	setProviderEnv(t)
	t.Setenv("SV_URL", "http://localhost:9000/")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("PROVIDER_MAX_RETRIES", "2")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("WARM_MODELS", "gfs, gefs,gfs")
	t.Setenv("WARM_INDICES", "EPO")
	t.Setenv("FETCH_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Provider.BaseURL())
	assert.Equal(t, 3*time.Second, cfg.Provider.HTTPTimeout)
	assert.Equal(t, 2, cfg.Provider.MaxRetries)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, []string{"gfs", "gefs"}, cfg.WarmModels)
	assert.Equal(t, []teleconnection.Index{teleconnection.IndexEPO}, cfg.WarmIndices)
	assert.Equal(t, 8, cfg.FetchConcurrency)
}

func TestLoadRequiresProviderSettings(t *testing.T) {
	setProviderEnv(t)
	t.Setenv("SV_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}

func TestLoadRejectsBadValues(t *testing.T) {
	for key, value := range map[string]string{
		"HTTP_TIMEOUT":        "soon",
		"PROVIDER_RATE_LIMIT": "fast",
		"WARM_INDICES":        "enso",
		"CACHE_TTL":           "-1m",
		"FETCH_CONCURRENCY":   "0",
	} {
		t.Run(key, func(t *testing.T) {
			setProviderEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
