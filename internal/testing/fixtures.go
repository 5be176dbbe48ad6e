package testing

import (
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
)

// FixtureTime is the reference clock used by fixtures
var FixtureTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewPosition builds an active position for the given pair
func NewPosition(id, pool, x, y string) domain.Position {
	return domain.Position{
		ID:              id,
		PoolID:          pool,
		TokenX:          domain.Token{Symbol: x, Decimals: 9, PriceUSD: 150},
		TokenY:          domain.Token{Symbol: y, Decimals: 6, PriceUSD: 1},
		FeesEarned:      domain.TokenAmounts{X: 0.2, Y: 25},
		LiquidityAmount: 10000,
		CreatedAt:       FixtureTime.Add(-30 * 24 * time.Hour),
		LastUpdated:     FixtureTime,
		IsActive:        true,
	}
}

// NewAnalytics builds analytics with the given value, pnl percent and APR
func NewAnalytics(value, pnlPct, apr float64) domain.PositionAnalytics {
	return domain.PositionAnalytics{
		TotalValue:      value,
		PnL:             domain.Amount{Amount: value * pnlPct / 100, Percent: pnlPct},
		FeesEarnedUSD:   value * 0.01,
		ImpermanentLoss: domain.Amount{Amount: -value * 0.02, Percent: -2},
		APR:             apr,
		Duration:        30 * 24 * time.Hour,
	}
}

// NewSnapshotFixture returns a three position portfolio:
// two SOL pools that share a token and one unrelated ETH/WBTC pool.
func NewSnapshotFixture() *domain.Snapshot {
	return &domain.Snapshot{
		OwnerKey: "owner-1",
		AsOf:     FixtureTime,
		Positions: []domain.Position{
			NewPosition("sol-usdc", "pool-sol-usdc", "SOL", "USDC"),
			NewPosition("sol-usdt", "pool-sol-usdt", "SOL", "USDT"),
			NewPosition("eth-wbtc", "pool-eth-wbtc", "ETH", "WBTC"),
		},
		Analytics: []domain.PositionAnalytics{
			NewAnalytics(5000, 10, 40),
			NewAnalytics(3000, 5, 25),
			NewAnalytics(2000, -4, 15),
		},
	}
}

// NewMarketDataFixture returns market data matching NewSnapshotFixture
func NewMarketDataFixture() *domain.MarketData {
	md := domain.NewMarketData()
	md.AsOf = FixtureTime
	md.RiskFreeRate = 0.04
	md.Positions["sol-usdc"] = domain.PositionMarketData{
		ExpectedReturn:       0.30,
		Volatility:           0.60,
		PreviousVolatility:   0.50,
		PriceChangePct:       6,
		CurrentEfficiency:    70,
		PotentialEfficiency:  90,
		LiquidityUtilization: 65,
		PoolFeeAPR:           45,
		PoolLiquidityUSD:     2_000_000,
		Volume24hUSD:         5_000_000,
		GasCostUSD:           2,
	}
	md.Positions["sol-usdt"] = domain.PositionMarketData{
		ExpectedReturn:       0.18,
		Volatility:           0.55,
		PreviousVolatility:   0.55,
		PriceChangePct:       2,
		CurrentEfficiency:    85,
		PotentialEfficiency:  88,
		LiquidityUtilization: 80,
		PoolFeeAPR:           30,
		PoolLiquidityUSD:     1_000_000,
		Volume24hUSD:         1_500_000,
		GasCostUSD:           2,
	}
	md.Positions["eth-wbtc"] = domain.PositionMarketData{
		ExpectedReturn:       0.10,
		Volatility:           0.35,
		PreviousVolatility:   0.30,
		PriceChangePct:       -1,
		CurrentEfficiency:    60,
		PotentialEfficiency:  62,
		LiquidityUtilization: 40,
		PoolFeeAPR:           12,
		PoolLiquidityUSD:     10_000_000,
		Volume24hUSD:         20_000_000,
		GasCostUSD:           8,
	}
	md.SetCorrelation("sol-usdc", "sol-usdt", 0.9)
	md.SetCorrelation("sol-usdc", "eth-wbtc", 0.4)
	md.SetCorrelation("sol-usdt", "eth-wbtc", 0.35)
	return md
}
