package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position(id, pool, x, y string) Position {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Position{
		ID:              id,
		PoolID:          pool,
		TokenX:          Token{Symbol: x, Decimals: 9, PriceUSD: 100},
		TokenY:          Token{Symbol: y, Decimals: 6, PriceUSD: 1},
		FeesEarned:      TokenAmounts{X: 0.5, Y: 10},
		LiquidityAmount: 1000,
		CreatedAt:       now,
		LastUpdated:     now,
		IsActive:        true,
	}
}

func validSnapshot() *Snapshot {
	return &Snapshot{
		OwnerKey: "owner",
		Positions: []Position{
			position("p1", "pool-a", "SOL", "USDC"),
			position("p2", "pool-b", "ETH", "USDT"),
		},
		Analytics: []PositionAnalytics{
			{TotalValue: 3000, APR: 20},
			{TotalValue: 1000, APR: 10},
		},
	}
}

func TestSnapshot_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validSnapshot().Validate())
	})

	t.Run("empty snapshot is valid", func(t *testing.T) {
		assert.NoError(t, (&Snapshot{}).Validate())
	})

	t.Run("nil snapshot", func(t *testing.T) {
		var s *Snapshot
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		s := validSnapshot()
		s.Analytics = s.Analytics[:1]
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Contains(t, err.Error(), "analytics")
	})

	t.Run("duplicate ids", func(t *testing.T) {
		s := validSnapshot()
		s.Positions[1].ID = "p1"
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("empty id", func(t *testing.T) {
		s := validSnapshot()
		s.Positions[0].ID = ""
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("negative value", func(t *testing.T) {
		s := validSnapshot()
		s.Analytics[0].TotalValue = -1
		assert.True(t, IsValidation(s.Validate()))
	})
}

func TestSnapshot_Weights(t *testing.T) {
	s := validSnapshot()
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, s.Weights(), 1e-12)
	assert.Equal(t, 4000.0, s.TotalValue())

	s.Analytics[0].TotalValue = 0
	s.Analytics[1].TotalValue = 0
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, s.Weights(), 1e-12)

	assert.Empty(t, (&Snapshot{}).Weights())
}

func TestSnapshot_FindAndSubset(t *testing.T) {
	s := validSnapshot()

	p, a, err := s.Find("p2")
	require.NoError(t, err)
	assert.Equal(t, "pool-b", p.PoolID)
	assert.Equal(t, 1000.0, a.TotalValue)

	_, _, err = s.Find("missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	sub := s.Subset([]string{"p2"})
	require.Equal(t, 1, sub.Len())
	assert.Equal(t, "p2", sub.Positions[0].ID)
	assert.Equal(t, []string{"p1", "p2"}, s.PositionIDs())
}

func TestPosition_Helpers(t *testing.T) {
	a := position("a", "pool", "SOL", "USDC")
	b := position("b", "pool", "usdc", "BONK")
	c := position("c", "pool", "ETH", "WBTC")

	assert.True(t, a.SharesTokenWith(b))
	assert.False(t, a.SharesTokenWith(c))
	assert.InDelta(t, 0.5*100+10*1, a.FeesUSD(), 1e-9)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, NewPairKey("a", "b"), NewPairKey("b", "a"))
	x, y := NewPairKey("z", "m").IDs()
	assert.Equal(t, "m", x)
	assert.Equal(t, "z", y)
}

func TestMarketData_Validate(t *testing.T) {
	md := NewMarketData()
	md.Positions["p1"] = PositionMarketData{Volatility: 0.4, CurrentEfficiency: 80, PotentialEfficiency: 95}
	md.SetCorrelation("p2", "p1", 0.3)
	require.NoError(t, md.Validate())

	corr, ok := md.Correlation("p1", "p2")
	assert.True(t, ok)
	assert.Equal(t, 0.3, corr)

	self, ok := md.Correlation("p1", "p1")
	assert.True(t, ok)
	assert.Equal(t, 1.0, self)

	t.Run("correlation out of range", func(t *testing.T) {
		bad := NewMarketData()
		bad.Correlations[NewPairKey("a", "b")] = 1.5
		assert.True(t, IsValidation(bad.Validate()))
	})

	t.Run("non canonical key", func(t *testing.T) {
		bad := NewMarketData()
		bad.Correlations[PairKey("b|a")] = 0.1
		assert.True(t, IsValidation(bad.Validate()))
	})

	t.Run("efficiency above 100", func(t *testing.T) {
		bad := NewMarketData()
		bad.Positions["p"] = PositionMarketData{CurrentEfficiency: 120}
		assert.True(t, IsValidation(bad.Validate()))
	})

	t.Run("nil market data is valid", func(t *testing.T) {
		var m *MarketData
		assert.NoError(t, m.Validate())
		assert.Equal(t, 0.25, m.VolatilityOr("x", 0.25))
		assert.Equal(t, 0.04, m.RiskFree(0.04))
	})
}

func TestMarketData_Fallbacks(t *testing.T) {
	md := NewMarketData()
	md.Positions["p1"] = PositionMarketData{ExpectedReturn: 0.12}

	ret, ok := md.ExpectedReturn("p1")
	assert.True(t, ok)
	assert.Equal(t, 0.12, ret)

	_, ok = md.ExpectedReturn("p2")
	assert.False(t, ok)

	// zero volatility falls back
	assert.Equal(t, 0.3, md.VolatilityOr("p1", 0.3))
}
