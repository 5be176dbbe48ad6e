package domain

import (
	"fmt"
	"strings"
	"time"
)

// PairKey identifies an unordered pair of positions. Always built via NewPairKey.
type PairKey string

const pairSeparator = "|"

// NewPairKey builds the canonical key for two position ids
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey(a + pairSeparator + b)
}

// IDs splits the key back into its two position ids
func (k PairKey) IDs() (string, string) {
	parts := strings.SplitN(string(k), pairSeparator, 2)
	if len(parts) != 2 {
		return string(k), ""
	}
	return parts[0], parts[1]
}

// PositionMarketData carries the per-position statistics supplied by the market data adapter
type PositionMarketData struct {
	Custom               map[string]float64 `json:"custom,omitempty" msgpack:"custom"`
	ExpectedReturn       float64            `json:"expected_return" msgpack:"expected_return"`             // annualised fraction
	Volatility           float64            `json:"volatility" msgpack:"volatility" validate:"gte=0"`      // annualised fraction
	PreviousVolatility   float64            `json:"previous_volatility" msgpack:"previous_volatility" validate:"gte=0"`
	PriceChangePct       float64            `json:"price_change_pct" msgpack:"price_change_pct"`
	CurrentEfficiency    float64            `json:"current_efficiency" msgpack:"current_efficiency" validate:"gte=0,lte=100"`
	PotentialEfficiency  float64            `json:"potential_efficiency" msgpack:"potential_efficiency" validate:"gte=0,lte=100"`
	LiquidityUtilization float64            `json:"liquidity_utilization" msgpack:"liquidity_utilization" validate:"gte=0,lte=100"`
	PoolFeeAPR           float64            `json:"pool_fee_apr" msgpack:"pool_fee_apr" validate:"gte=0"` // percent
	PoolLiquidityUSD     float64            `json:"pool_liquidity_usd" msgpack:"pool_liquidity_usd" validate:"gte=0"`
	Volume24hUSD         float64            `json:"volume_24h_usd" msgpack:"volume_24h_usd" validate:"gte=0"`
	GasCostUSD           float64            `json:"gas_cost_usd" msgpack:"gas_cost_usd" validate:"gte=0"`
}

// MarketData is the explicit market input for one snapshot
type MarketData struct {
	AsOf         time.Time                     `json:"as_of" msgpack:"as_of"`
	Positions    map[string]PositionMarketData `json:"positions" msgpack:"positions" validate:"dive"`
	Correlations map[PairKey]float64           `json:"correlations" msgpack:"correlations" validate:"dive,gte=-1,lte=1"`
	RiskFreeRate float64                       `json:"risk_free_rate" msgpack:"risk_free_rate"`
}

// NewMarketData returns an empty, ready to fill MarketData
func NewMarketData() *MarketData {
	return &MarketData{
		Positions:    make(map[string]PositionMarketData),
		Correlations: make(map[PairKey]float64),
	}
}

// Validate checks ranges and pair key canonical form
func (m *MarketData) Validate() error {
	if m == nil {
		return nil
	}
	if err := ValidateStruct(m); err != nil {
		return err
	}
	for key := range m.Correlations {
		a, b := key.IDs()
		if a == "" || b == "" || a == b || NewPairKey(a, b) != key {
			return NewValidationError("correlations", "invalid pair key %q", string(key))
		}
	}
	return nil
}

// Position returns market data for a position id
func (m *MarketData) Position(id string) (PositionMarketData, bool) {
	if m == nil || m.Positions == nil {
		return PositionMarketData{}, false
	}
	d, ok := m.Positions[id]
	return d, ok
}

// Correlation returns the supplied correlation for a pair
func (m *MarketData) Correlation(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	if m == nil || m.Correlations == nil {
		return 0, false
	}
	c, ok := m.Correlations[NewPairKey(a, b)]
	return c, ok
}

// SetCorrelation stores a pair correlation under its canonical key
func (m *MarketData) SetCorrelation(a, b string, corr float64) {
	if m.Correlations == nil {
		m.Correlations = make(map[PairKey]float64)
	}
	m.Correlations[NewPairKey(a, b)] = corr
}

// ExpectedReturn returns the supplied expected return for a position
func (m *MarketData) ExpectedReturn(id string) (float64, bool) {
	d, ok := m.Position(id)
	return d.ExpectedReturn, ok
}

// VolatilityOr returns the supplied volatility, or fallback when absent or non-positive
func (m *MarketData) VolatilityOr(id string, fallback float64) float64 {
	if d, ok := m.Position(id); ok && d.Volatility > 0 {
		return d.Volatility
	}
	return fallback
}

// RiskFree returns the risk-free rate or the fallback when unset
func (m *MarketData) RiskFree(fallback float64) float64 {
	if m == nil || m.RiskFreeRate == 0 {
		return fallback
	}
	return m.RiskFreeRate
}

func (m *MarketData) String() string {
	if m == nil {
		return "MarketData<nil>"
	}
	return fmt.Sprintf("MarketData{positions=%d, correlations=%d}", len(m.Positions), len(m.Correlations))
}
