package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LPS_PORT", "LOG_LEVEL", "LOG_PRETTY", "DEV_MODE", "LPS_TUNING_FILE", "LPS_CORS_ORIGINS",
		"LPS_MARKET_DATA", "LPS_RISK_FREE_RATE", "LPS_MONITOR_INTERVAL_MINUTES", "LPS_MONITOR_OWNER",
		"LPS_MONITOR_CONFIGS", "LPS_PRICE_RETENTION_DAYS", "LPS_CACHE_CORRELATION_TTL",
		"LPS_CACHE_OPTIMIZATION_TTL", "LPS_CACHE_ANALYSIS_TTL", "LPS_CACHE_CLEANUP_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LPS_DATA_DIR", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, MarketDataStatic, cfg.MarketData)
	assert.Equal(t, 5, cfg.Monitor.IntervalMinutes)
	assert.Equal(t, []string{"default"}, cfg.Monitor.ConfigIDs)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, cache.TTLOptimization, cfg.Cache.OptimizationTTL)
	assert.Equal(t, DefaultTuning(), cfg.Tuning)
	assert.Equal(t, filepath.Join(cfg.DataDir, "positions.db"), cfg.DatabasePath("positions"))
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LPS_PORT", "9090")
	t.Setenv("LPS_MARKET_DATA", "History")
	t.Setenv("LPS_MONITOR_OWNER", "owner-1")
	t.Setenv("LPS_MONITOR_CONFIGS", "default, aggressive,,")
	t.Setenv("LPS_MONITOR_INTERVAL_MINUTES", "15")
	t.Setenv("LPS_CACHE_ANALYSIS_TTL", "1m")
	t.Setenv("LPS_CACHE_CORRELATION_TTL", "not-a-duration")
	t.Setenv("LPS_RISK_FREE_RATE", "0.05")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, MarketDataHistory, cfg.MarketData)
	assert.Equal(t, "owner-1", cfg.Monitor.OwnerKey)
	assert.Equal(t, []string{"default", "aggressive"}, cfg.Monitor.ConfigIDs)
	assert.Equal(t, 15, cfg.Monitor.IntervalMinutes)
	assert.Equal(t, time.Minute, cfg.Cache.AnalysisTTL)
	assert.Equal(t, cache.TTLCorrelation, cfg.Cache.CorrelationTTL)
	assert.Equal(t, 0.05, cfg.RiskFree)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"market data", "LPS_MARKET_DATA", "oracle"},
		{"port", "LPS_PORT", "70000"},
		{"interval", "LPS_MONITOR_INTERVAL_MINUTES", "-1"},
		{"ttl", "LPS_CACHE_ANALYSIS_TTL", "-5m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_TuningFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitoring:\n  concurrency: 2\n"), 0644))
	t.Setenv("LPS_TUNING_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Tuning.Monitoring.Concurrency)

	require.NoError(t, os.WriteFile(path, []byte("monitoring:\n  concurrency: 0\n"), 0644))
	_, err = Load()
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
