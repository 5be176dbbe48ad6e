package di

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/config"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tuning := config.DefaultTuning()
	aggressive := rebalancing.DefaultConfig()
	aggressive.ID = "aggressive"
	aggressive.AutoExecute = true
	tuning.Rebalancing = []rebalancing.Config{aggressive}

	return &config.Config{
		DataDir:    t.TempDir(),
		Port:       8080,
		MarketData: config.MarketDataHistory,
		RiskFree:   0.04,
		Tuning:     tuning,
		Monitor: config.MonitorConfig{
			IntervalMinutes: 5,
			ConfigIDs:       []string{"default"},
			PriceRetention:  365,
		},
		Cache: config.CacheConfig{
			CorrelationTTL:  time.Minute,
			OptimizationTTL: time.Minute,
			AnalysisTTL:     time.Minute,
			CleanupSchedule: "@every 1m",
		},
	}
}

func wire(t *testing.T, cfg *config.Config) (*Container, *JobInstances) {
	t.Helper()
	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Monitor.StopMonitoring()
		container.Scheduler.Stop()
		container.Close()
	})
	return container, jobs
}

func TestWire(t *testing.T) {
	container, jobs := wire(t, testConfig(t))

	assert.NotNil(t, container.PositionsDB)
	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.CorrelationEngine)
	assert.NotNil(t, container.OptimizationService)
	assert.NotNil(t, container.RebalancingService)
	assert.NotNil(t, container.Monitor)
	assert.NotSame(t, container.StaticMarketData, container.MarketData)

	assert.NotNil(t, jobs.CacheCleanup)
	assert.NotNil(t, jobs.CheckDatabases)
	assert.NotNil(t, jobs.PrunePrices)
	assert.NotNil(t, jobs.Vacuum)
	assert.Equal(t, 4, container.Scheduler.Entries())

	assert.Equal(t, []string{"aggressive", "default"}, container.RebalancingService.Registry().IDs())
	assert.Len(t, container.Caches.Stats(), 3)
	assert.False(t, container.Monitor.Status().Running)
}

func TestWire_StaticMarketData(t *testing.T) {
	cfg := testConfig(t)
	cfg.MarketData = config.MarketDataStatic
	container, _ := wire(t, cfg)

	assert.Same(t, container.StaticMarketData, container.MarketData)
}

func TestWire_StartsMonitoringConfiguredOwner(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.OwnerKey = "owner-1"
	cfg.Monitor.ConfigIDs = []string{"default", "aggressive"}
	container, _ := wire(t, cfg)

	status := container.Monitor.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "owner-1", status.OwnerKey)
	assert.Equal(t, []string{"default", "aggressive"}, status.ConfigIDs)
	assert.Equal(t, 5, container.Scheduler.Entries())
}

func TestWire_UnknownMonitorConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.OwnerKey = "owner-1"
	cfg.Monitor.ConfigIDs = []string{"missing"}

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, container)
	assert.Nil(t, jobs)
}

func TestWire_EndToEnd(t *testing.T) {
	container, jobs := wire(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, container.PortfolioService.SaveSnapshot(ctx, "owner-1", testutil.NewSnapshotFixture()))
	require.NoError(t, container.StaticMarketData.Load(testutil.NewMarketDataFixture()))

	snap, err := container.PortfolioService.Snapshot(ctx, "owner-1")
	require.NoError(t, err)
	market, err := container.MarketData.MarketData(ctx, snap)
	require.NoError(t, err)
	assert.Len(t, market.Positions, 3)

	analytics, err := container.CorrelationEngine.AnalyzeMultiplePositions(ctx, snap, market, "owner-1", false)
	require.NoError(t, err)
	assert.NotNil(t, analytics)

	analysis, err := container.RebalancingService.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.Equal(t, "sol-usdc", analysis.PositionID)

	assert.NoError(t, jobs.CheckDatabases.Run())
	assert.NoError(t, jobs.CacheCleanup.Run())
	assert.NoError(t, jobs.PrunePrices.Run())
	assert.NoError(t, jobs.Vacuum.Run())
}
