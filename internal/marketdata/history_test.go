package marketdata

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyDays = 40

// seedPrices writes 40 daily closes ending at FixtureTime.
// SOL and ETH move in opposite directions, calm for 20 days then wild. WBTC is flat.
func seedPrices(t *testing.T, repo *PriceRepository) {
	t.Helper()
	sol, eth := 100.0, 2000.0
	var points []PricePoint
	for i := 0; i < historyDays; i++ {
		if i > 0 {
			step := 0.01
			if i >= 20 {
				step = 0.08
			}
			if i%2 == 1 {
				sol *= 1 + step
				eth *= 1 - step
			} else {
				sol *= 1 - step
				eth *= 1 + step
			}
		}
		at := testutil.FixtureTime.AddDate(0, 0, i-(historyDays-1))
		points = append(points,
			PricePoint{Time: at, Symbol: "SOL", Price: sol},
			PricePoint{Time: at, Symbol: "eth", Price: eth},
			PricePoint{Time: at, Symbol: "WBTC", Price: 60000},
		)
	}
	require.NoError(t, repo.Record(context.Background(), points...))
}

func newHistoryProvider(t *testing.T, base domain.MarketDataProvider) *HistoryProvider {
	t.Helper()
	db := testutil.NewTestDB(t, "history")
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())
	seedPrices(t, repo)

	h := NewHistoryProvider(repo, base, DefaultHistoryConfig(), zerolog.Nop())
	h.SetClock(func() time.Time { return testutil.FixtureTime })
	return h
}

func TestHistoryProvider_DerivesStatistics(t *testing.T) {
	base := NewStaticProvider(0.04)
	require.NoError(t, base.SetPosition("sol-usdc", domain.PositionMarketData{CurrentEfficiency: 70, PoolFeeAPR: 45}))
	h := newHistoryProvider(t, base)

	md, err := h.MarketData(context.Background(), testutil.NewSnapshotFixture())
	require.NoError(t, err)
	require.NoError(t, md.Validate())
	assert.Equal(t, 0.04, md.RiskFreeRate)
	assert.Equal(t, testutil.FixtureTime, md.AsOf)

	sol := md.Positions["sol-usdc"]
	// Pool figures survive from the base provider
	assert.Equal(t, 70.0, sol.CurrentEfficiency)
	assert.Equal(t, 45.0, sol.PoolFeeAPR)
	// Wild recent window against a partly calm previous one
	assert.Greater(t, sol.Volatility, 0.0)
	assert.Greater(t, sol.PreviousVolatility, 0.0)
	assert.Greater(t, sol.Volatility, sol.PreviousVolatility)

	// Both SOL pools are driven by the same price series
	c, ok := md.Correlation("sol-usdc", "sol-usdt")
	require.True(t, ok)
	assert.InDelta(t, 1, c, 1e-6)

	// ETH moves against SOL
	c, ok = md.Correlation("sol-usdc", "eth-wbtc")
	require.True(t, ok)
	assert.Less(t, c, -0.5)
}

func TestHistoryProvider_PriceChangeOverRecentWindow(t *testing.T) {
	h := newHistoryProvider(t, nil)

	md, err := h.MarketData(context.Background(), testutil.NewSnapshotFixture())
	require.NoError(t, err)

	// Over the last 14 days SOL alternates +8%/-8% seven times each
	want := (math.Pow(1.08, 7)*math.Pow(0.92, 7) - 1) * 100
	assert.InDelta(t, want, md.Positions["sol-usdc"].PriceChangePct, 1e-6)
}

func TestHistoryProvider_SkipsPositionsWithoutHistory(t *testing.T) {
	h := newHistoryProvider(t, nil)

	snap := &domain.Snapshot{
		OwnerKey:  "owner-2",
		Positions: []domain.Position{testutil.NewPosition("foo-bar", "pool-foo-bar", "FOO", "BAR")},
		Analytics: []domain.PositionAnalytics{testutil.NewAnalytics(1000, 0, 10)},
	}
	md, err := h.MarketData(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, md.Positions)
	assert.Empty(t, md.Correlations)
}

func TestHistoryProvider_BaseError(t *testing.T) {
	base := testutil.NewMockMarketDataProvider(nil)
	base.SetError(errors.New("upstream down"))
	h := newHistoryProvider(t, base)

	_, err := h.MarketData(context.Background(), testutil.NewSnapshotFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestHistoryConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultHistoryConfig().Validate())
	assert.True(t, domain.IsValidation(HistoryConfig{LookbackDays: 20, RecentDays: 14}.Validate()))
	assert.True(t, domain.IsValidation(HistoryConfig{LookbackDays: 3, RecentDays: 2}.Validate()))
}
