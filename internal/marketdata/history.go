package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// PriceHistory is the read side of PriceRepository
type PriceHistory interface {
	Series(ctx context.Context, symbol string, since time.Time) ([]PricePoint, error)
}

// HistoryConfig controls the lookback windows of HistoryProvider
type HistoryConfig struct {
	LookbackDays int `yaml:"lookback_days" json:"lookback_days" validate:"gte=7,lte=730"`
	RecentDays   int `yaml:"recent_days" json:"recent_days" validate:"gte=2"`
}

// DefaultHistoryConfig returns a 90 day lookback with a 14 day recent window
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{LookbackDays: 90, RecentDays: 14}
}

// Validate checks the window sizes
func (c HistoryConfig) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return err
	}
	if c.RecentDays*2 > c.LookbackDays {
		return domain.NewValidationError("recent_days", "two recent windows (%d days) must fit the lookback (%d days)", c.RecentDays*2, c.LookbackDays)
	}
	return nil
}

// HistoryProvider derives return, volatility and correlation estimates from token price history.
// Pool level figures (efficiency, utilization, fee APR, gas) come from the optional base provider.
type HistoryProvider struct {
	prices PriceHistory
	base   domain.MarketDataProvider
	cfg    HistoryConfig
	now    func() time.Time
	log    zerolog.Logger
}

// NewHistoryProvider creates a provider over prices. base may be nil.
func NewHistoryProvider(prices PriceHistory, base domain.MarketDataProvider, cfg HistoryConfig, log zerolog.Logger) *HistoryProvider {
	return &HistoryProvider{
		prices: prices,
		base:   base,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("component", "history_provider").Logger(),
	}
}

// SetClock overrides the time source (tests)
func (h *HistoryProvider) SetClock(now func() time.Time) {
	h.now = now
}

// MarketData implements domain.MarketDataProvider
func (h *HistoryProvider) MarketData(ctx context.Context, snap *domain.Snapshot) (*domain.MarketData, error) {
	// 1. Start from the base provider's figures
	md := domain.NewMarketData()
	if h.base != nil {
		baseData, err := h.base.MarketData(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("failed to load base market data: %w", err)
		}
		if baseData != nil {
			md.RiskFreeRate = baseData.RiskFreeRate
			for id, d := range baseData.Positions {
				md.Positions[id] = d
			}
			for k, c := range baseData.Correlations {
				md.Correlations[k] = c
			}
		}
	}
	md.AsOf = h.now()
	if snap == nil {
		return md, nil
	}

	// 2. Load daily closes per token symbol
	since := md.AsOf.AddDate(0, 0, -h.cfg.LookbackDays)
	closes := make(map[string]map[int64]float64)
	for _, p := range snap.Positions {
		for _, sym := range p.Symbols() {
			key := strings.ToUpper(sym)
			if _, done := closes[key]; done {
				continue
			}
			series, err := h.prices.Series(ctx, key, since)
			if err != nil {
				return nil, fmt.Errorf("failed to load prices for %s: %w", key, err)
			}
			closes[key] = dailyCloses(series)
		}
	}

	// 3. Per position statistics from the pair value series
	returns := make(map[string][]float64, snap.Len())
	for _, p := range snap.Positions {
		ratio, value := pairSeries(p, closes)
		r := LogReturns(value)
		if len(r) < 2 {
			h.log.Debug().Str("position", p.ID).Msg("Not enough price history")
			continue
		}
		returns[p.ID] = r

		d := md.Positions[p.ID]
		d.ExpectedReturn = AnnualizedReturn(r)
		d.Volatility, d.PreviousVolatility = h.windowVolatility(r)
		d.PriceChangePct = h.recentChangePct(ratio)
		md.Positions[p.ID] = d
	}

	// 4. Pairwise correlations of the return series
	for i := 0; i < snap.Len(); i++ {
		for j := i + 1; j < snap.Len(); j++ {
			a, b := snap.Positions[i].ID, snap.Positions[j].ID
			if c, ok := Correlation(returns[a], returns[b]); ok {
				md.SetCorrelation(a, b, c)
			}
		}
	}

	h.log.Debug().
		Int("positions", snap.Len()).
		Int("with_history", len(returns)).
		Int("correlations", len(md.Correlations)).
		Msg("Derived market data from price history")
	return md, nil
}

// windowVolatility returns the annualised volatility of the recent window and of the one before it.
// With too little data for two windows both values cover the whole series.
func (h *HistoryProvider) windowVolatility(returns []float64) (float64, float64) {
	n := h.cfg.RecentDays
	if len(returns) < 2*n {
		v := AnnualizedVolatility(returns)
		return v, v
	}
	recent := returns[len(returns)-n:]
	previous := returns[len(returns)-2*n : len(returns)-n]
	return AnnualizedVolatility(recent), AnnualizedVolatility(previous)
}

// recentChangePct is the percent move of the X/Y price ratio over the recent window
func (h *HistoryProvider) recentChangePct(ratio []float64) float64 {
	if len(ratio) < 2 {
		return 0
	}
	start := len(ratio) - 1 - h.cfg.RecentDays
	if start < 0 {
		start = 0
	}
	if ratio[start] <= 0 {
		return 0
	}
	return (ratio[len(ratio)-1]/ratio[start] - 1) * 100
}

// dailyCloses keeps the last price of each UTC day
func dailyCloses(points []PricePoint) map[int64]float64 {
	out := make(map[int64]float64, len(points))
	for _, p := range points {
		out[dayOf(p.Time)] = p.Price
	}
	return out
}

func dayOf(t time.Time) int64 {
	return t.Unix() / 86400
}

// pairSeries aligns the two token closes of a position by day and returns the X/Y price ratio
// and the value of a 50/50 holding normalised to 1 on the first day.
// A token without history is held flat at its current price.
func pairSeries(p domain.Position, closes map[string]map[int64]float64) ([]float64, []float64) {
	xs := closes[strings.ToUpper(p.TokenX.Symbol)]
	ys := closes[strings.ToUpper(p.TokenY.Symbol)]
	if len(xs) == 0 && len(ys) == 0 {
		return nil, nil
	}

	days := make(map[int64]struct{})
	for d := range xs {
		days[d] = struct{}{}
	}
	for d := range ys {
		days[d] = struct{}{}
	}
	ordered := sortedDays(days)

	var ratio, value []float64
	var x0, y0 float64
	for _, d := range ordered {
		x, okX := priceOn(xs, d, p.TokenX.PriceUSD)
		y, okY := priceOn(ys, d, p.TokenY.PriceUSD)
		if !okX || !okY || x <= 0 || y <= 0 {
			continue
		}
		if x0 == 0 {
			x0, y0 = x, y
		}
		ratio = append(ratio, x/y)
		value = append(value, 0.5*x/x0+0.5*y/y0)
	}
	return ratio, value
}

// priceOn returns the close for day d. Missing series fall back to the flat price.
// A series with a gap on d reports no price.
func priceOn(series map[int64]float64, d int64, flat float64) (float64, bool) {
	if len(series) == 0 {
		return flat, flat > 0 && !math.IsNaN(flat)
	}
	v, ok := series[d]
	return v, ok
}

func sortedDays(days map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(days))
	for d := range days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
