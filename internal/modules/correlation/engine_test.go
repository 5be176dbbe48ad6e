package correlation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/domain"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	c := cache.New[*Analytics]("correlation", cache.TTLCorrelation, nil, zerolog.Nop())
	return NewEngine(DefaultConfig(), c, nil, zerolog.Nop())
}

func TestAnalyze_PairCorrelations(t *testing.T) {
	engine := newTestEngine()
	snap := testutil.NewSnapshotFixture()
	market := testutil.NewMarketDataFixture()

	result, err := engine.AnalyzeMultiplePositions(context.Background(), snap, market, "owner-1", false)
	require.NoError(t, err)
	require.Len(t, result.Pairs, 3)

	sol, ok := result.Pair("sol-usdc", "sol-usdt")
	require.True(t, ok)
	assert.True(t, sol.MarketSupplied)
	assert.InDelta(t, 0.9, sol.PriceCorrelation, 1e-9)
	assert.InDelta(t, 0.95, sol.ReturnCorrelation, 1e-9)
	assert.InDelta(t, 0.6, sol.VolumeCorrelation, 1e-9)
	assert.InDelta(t, 0.75, sol.LiquidityCorrelation, 1e-9)
	assert.InDelta(t, 0.84, sol.OverallCorrelation, 1e-9)
	assert.InDelta(t, 2*0.5*0.3*0.6*0.55*0.84, sol.RiskContribution, 1e-9)
	assert.InDelta(t, 0.16, sol.DiversificationBenefit, 1e-9)
	assert.Equal(t, []string{"SOL"}, sol.SharedTokens)

	cross, ok := result.Pair("eth-wbtc", "sol-usdc")
	require.True(t, ok)
	assert.InDelta(t, 0.533, cross.OverallCorrelation, 1e-9)
	assert.InDelta(t, 0.2, cross.VolumeCorrelation, 1e-9)

	for _, p := range result.Pairs {
		assert.GreaterOrEqual(t, p.OverallCorrelation, -1.0)
		assert.LessOrEqual(t, p.OverallCorrelation, 1.0)
		assert.NotEqual(t, p.PositionA, p.PositionB)
	}
}

func TestAnalyze_BaselinesWithoutMarketData(t *testing.T) {
	engine := newTestEngine()
	snap := testutil.NewSnapshotFixture()

	result := engine.Analyze(snap, nil, "owner-1")

	sol, _ := result.Pair("sol-usdc", "sol-usdt")
	assert.False(t, sol.MarketSupplied)
	assert.InDelta(t, 0.75, sol.PriceCorrelation, 1e-9)

	cross, _ := result.Pair("sol-usdc", "eth-wbtc")
	assert.InDelta(t, 0.25, cross.PriceCorrelation, 1e-9)

	// Missing volatility falls back to the configured default
	for _, c := range result.Risk.Contributions {
		assert.Equal(t, DefaultConfig().DefaultVolatility, c.Volatility)
	}
}

func TestAnalyze_Clusters(t *testing.T) {
	engine := newTestEngine()
	result := engine.Analyze(testutil.NewSnapshotFixture(), testutil.NewMarketDataFixture(), "owner-1")

	require.Len(t, result.Clusters, 2)
	assert.Equal(t, []string{"sol-usdc", "sol-usdt"}, result.Clusters[0].PositionIDs)
	assert.Equal(t, []string{"SOL"}, result.Clusters[0].SharedTokens)
	assert.InDelta(t, 0.8, result.Clusters[0].Weight, 1e-9)
	assert.InDelta(t, 0.84, result.Clusters[0].AverageCorrelation, 1e-9)
	assert.Equal(t, "high", result.Clusters[0].RiskLevel)

	assert.Equal(t, []string{"eth-wbtc"}, result.Clusters[1].PositionIDs)
	assert.Equal(t, "low", result.Clusters[1].RiskLevel)
}

func TestAnalyze_RiskDecomposition(t *testing.T) {
	engine := newTestEngine()
	result := engine.Analyze(testutil.NewSnapshotFixture(), testutil.NewMarketDataFixture(), "owner-1")
	risk := result.Risk

	expectedTotal := math.Sqrt(0.3*0.3 + 0.165*0.165 + 0.07*0.07)
	assert.InDelta(t, expectedTotal, risk.TotalRisk, 1e-9)

	sum := 0.0
	pct := 0.0
	for _, c := range risk.Contributions {
		sum += c.ComponentRisk
		pct += c.PercentOfRisk
	}
	assert.InDelta(t, risk.TotalRisk, sum, 1e-9)
	assert.InDelta(t, 100, pct, 1e-6)

	assert.InDelta(t, 0.7*expectedTotal, risk.SystematicRisk, 1e-9)
	assert.InDelta(t, 0.3*expectedTotal, risk.IdiosyncraticRisk, 1e-9)
	assert.InDelta(t, 0.2*expectedTotal, risk.CorrelationRisk, 1e-9)
	assert.InDelta(t, 0.1*expectedTotal, risk.LiquidityRisk, 1e-9)
	assert.InDelta(t, 0.38, risk.ConcentrationRisk, 1e-9)
	assert.Greater(t, risk.PortfolioVolatility, 0.0)
}

func TestAnalyze_DiversificationAndRecommendations(t *testing.T) {
	engine := newTestEngine()
	result := engine.Analyze(testutil.NewSnapshotFixture(), testutil.NewMarketDataFixture(), "owner-1")
	div := result.Diversification

	assert.InDelta(t, 1/0.38, div.EffectivePositions, 1e-9)
	assert.InDelta(t, 0.4, div.TokenExposure["SOL"], 1e-9)
	assert.InDelta(t, 0.2, div.PoolExposure["pool-eth-wbtc"], 1e-9)
	assert.InDelta(t, (0.84+0.533+0.528)/3, div.AverageCorrelation, 1e-9)
	assert.Greater(t, div.DiversificationRatio, 1.0)

	types := make(map[RecommendationType]bool)
	for _, r := range result.Recommendations {
		types[r.Type] = true
	}
	assert.True(t, types[RecommendReduceConcentration])
	assert.True(t, types[RecommendDiversifyCluster])
	assert.False(t, types[RecommendReduceTokenExposure])
	assert.False(t, types[RecommendAddUncorrelated])

	assert.Equal(t, 3, result.Summary.PositionCount)
	assert.InDelta(t, 10000, result.Summary.TotalValue, 1e-9)
	assert.InDelta(t, 0.5*40+0.3*25+0.2*15, result.Summary.WeightedAPR, 1e-9)
}

func TestAnalyze_DegenerateInputs(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()

	t.Run("no positions", func(t *testing.T) {
		result, err := engine.AnalyzeMultiplePositions(ctx, &domain.Snapshot{}, nil, "empty", false)
		require.NoError(t, err)
		assert.Empty(t, result.Pairs)
		assert.Empty(t, result.Clusters)
		assert.Empty(t, result.Risk.Contributions)
		assert.Zero(t, result.Risk.TotalRisk)
		assert.Empty(t, result.Recommendations)
	})

	t.Run("single position", func(t *testing.T) {
		snap := testutil.NewSnapshotFixture().Subset([]string{"eth-wbtc"})
		result, err := engine.AnalyzeMultiplePositions(ctx, snap, testutil.NewMarketDataFixture(), "single", false)
		require.NoError(t, err)
		assert.Empty(t, result.Pairs)
		require.Len(t, result.Clusters, 1)
		assert.Equal(t, []string{"eth-wbtc"}, result.Clusters[0].PositionIDs)
		assert.InDelta(t, 0.35, result.Risk.TotalRisk, 1e-9)
		assert.InDelta(t, 1, result.Diversification.EffectivePositions, 1e-9)
	})

	t.Run("malformed snapshot", func(t *testing.T) {
		snap := testutil.NewSnapshotFixture()
		snap.Analytics = snap.Analytics[:2]
		_, err := engine.AnalyzeMultiplePositions(ctx, snap, nil, "bad", false)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestAnalyzeMultiplePositions_Caching(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	snap := testutil.NewSnapshotFixture()
	market := testutil.NewMarketDataFixture()

	first, err := engine.AnalyzeMultiplePositions(ctx, snap, market, "owner-1", false)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// Callers own the returned value, including on a miss
	generated := first.GeneratedAt
	first.GeneratedAt = time.Time{}
	first.OwnerKey = "someone-else"

	second, err := engine.AnalyzeMultiplePositions(ctx, snap, market, "owner-1", false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, generated, second.GeneratedAt)
	assert.Equal(t, "owner-1", second.OwnerKey)

	engine.now = func() time.Time { return time.Unix(0, 0).Add(time.Hour) }
	forced, err := engine.AnalyzeMultiplePositions(ctx, snap, market, "owner-1", true)
	require.NoError(t, err)
	assert.False(t, forced.Cached)
	assert.NotEqual(t, first.GeneratedAt, forced.GeneratedAt)

	// Different owner is a different cache entry
	other, err := engine.AnalyzeMultiplePositions(ctx, snap, market, "owner-2", false)
	require.NoError(t, err)
	assert.False(t, other.Cached)
}

func TestMatrix(t *testing.T) {
	engine := newTestEngine()
	m := engine.CorrelationMatrix(testutil.NewSnapshotFixture(), testutil.NewMarketDataFixture())
	require.NotNil(t, m)

	assert.Equal(t, 3, m.SymmetricDim())
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.InDelta(t, 0.84, m.At(0, 1), 1e-9)
	assert.Equal(t, m.At(0, 2), m.At(2, 0))

	assert.Nil(t, Matrix(&Analytics{}))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Weights.Price = 0.9
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultVolatility = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SystematicShare = 1.5
	assert.Error(t, cfg.Validate())
}
