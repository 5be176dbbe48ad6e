package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tuningYAML = `
correlation:
  cluster_threshold: 0.7
optimization:
  gradient_steps: 20
monitoring:
  concurrency: 4
  breaker_timeout: 30s
history:
  lookback_days: 60
rebalancing_configs:
  - id: aggressive
    min_efficiency_gain: 2
    auto_execute: true
    constraints:
      min_time_between: 1h
`

func TestParseTuning_OverlaysDefaults(t *testing.T) {
	tuning, err := ParseTuning([]byte(tuningYAML))
	require.NoError(t, err)

	defaults := DefaultTuning()
	assert.Equal(t, 0.7, tuning.Correlation.ClusterThreshold)
	assert.Equal(t, defaults.Correlation.Weights, tuning.Correlation.Weights)
	assert.Equal(t, 20, tuning.Optimization.GradientSteps)
	assert.Equal(t, defaults.Optimization.DefaultVolatility, tuning.Optimization.DefaultVolatility)
	assert.Equal(t, 4, tuning.Monitoring.Concurrency)
	assert.Equal(t, 30*time.Second, tuning.Monitoring.BreakerTimeout)
	assert.Equal(t, 60, tuning.History.LookbackDays)
	assert.Equal(t, 14, tuning.History.RecentDays)

	require.Len(t, tuning.Rebalancing, 1)
	aggressive := tuning.Rebalancing[0]
	base := rebalancing.DefaultConfig()
	assert.Equal(t, "aggressive", aggressive.ID)
	assert.Equal(t, 2.0, aggressive.MinEfficiencyGain)
	assert.True(t, aggressive.AutoExecute)
	assert.Equal(t, time.Hour, aggressive.Constraints.MinTimeBetween)
	assert.Equal(t, base.Constraints.MaxRebalancesPerDay, aggressive.Constraints.MaxRebalancesPerDay)
	assert.Equal(t, base.HorizonDays, aggressive.HorizonDays)
	assert.Len(t, aggressive.Triggers, len(base.Triggers))
}

func TestParseTuning_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"weights", "correlation:\n  weights:\n    price: 0.9\n"},
		{"bands", "monitoring:\n  health_bands:\n    critical: 80\n"},
		{"history", "history:\n  lookback_days: 10\n"},
		{"missing id", "rebalancing_configs:\n  - min_efficiency_gain: 1\n"},
		{"duplicate id", "rebalancing_configs:\n  - id: default\n"},
		{"probabilities", "optimization:\n  bull_probability: 0.8\n  bear_probability: 0.8\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTuning([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), err.Error())
		})
	}

	_, err := ParseTuning([]byte("correlation: [unclosed"))
	assert.Error(t, err)
}

func TestLoadTuning_MissingFile(t *testing.T) {
	tuning, err := LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), tuning)

	tuning, err = LoadTuning("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), tuning)
}
