package correlation

import "time"

// Pair is the correlation record for one unordered position pair (A before B in slot order)
type Pair struct {
	PositionA              string   `json:"position_a"`
	PositionB              string   `json:"position_b"`
	SharedTokens           []string `json:"shared_tokens,omitempty"`
	PriceCorrelation       float64  `json:"price_correlation"`
	ReturnCorrelation      float64  `json:"return_correlation"`
	VolumeCorrelation      float64  `json:"volume_correlation"`
	LiquidityCorrelation   float64  `json:"liquidity_correlation"`
	OverallCorrelation     float64  `json:"overall_correlation"`
	RiskContribution       float64  `json:"risk_contribution"`
	DiversificationBenefit float64  `json:"diversification_benefit"`
	MarketSupplied         bool     `json:"market_supplied"`
}

// Cluster groups positions whose correlation exceeds the cluster threshold
type Cluster struct {
	ID                 string   `json:"id"`
	PositionIDs        []string `json:"position_ids"`
	SharedTokens       []string `json:"shared_tokens,omitempty"`
	RiskLevel          string   `json:"risk_level"`
	AverageCorrelation float64  `json:"average_correlation"`
	TotalValue         float64  `json:"total_value"`
	Weight             float64  `json:"weight"`
}

// RiskContribution is one position's share of total portfolio risk
type RiskContribution struct {
	PositionID    string  `json:"position_id"`
	Weight        float64 `json:"weight"`
	Volatility    float64 `json:"volatility"`
	MarginalRisk  float64 `json:"marginal_risk"`
	ComponentRisk float64 `json:"component_risk"`
	PercentOfRisk float64 `json:"percent_of_risk"`
}

// RiskDecomposition splits portfolio risk into its components.
// Systematic, idiosyncratic, correlation and liquidity risk are configured shares of TotalRisk.
// ConcentrationRisk (Herfindahl) and PortfolioVolatility are measured.
type RiskDecomposition struct {
	Contributions       []RiskContribution `json:"contributions"`
	TotalRisk           float64            `json:"total_risk"`
	SystematicRisk      float64            `json:"systematic_risk"`
	IdiosyncraticRisk   float64            `json:"idiosyncratic_risk"`
	ConcentrationRisk   float64            `json:"concentration_risk"`
	CorrelationRisk     float64            `json:"correlation_risk"`
	LiquidityRisk       float64            `json:"liquidity_risk"`
	PortfolioVolatility float64            `json:"portfolio_volatility"`
}

// DiversificationMetrics summarises how spread the portfolio is
type DiversificationMetrics struct {
	TokenExposure        map[string]float64 `json:"token_exposure"`
	PoolExposure         map[string]float64 `json:"pool_exposure"`
	EffectivePositions   float64            `json:"effective_positions"`
	AverageCorrelation   float64            `json:"average_correlation"`
	DiversificationRatio float64            `json:"diversification_ratio"`
	HerfindahlIndex      float64            `json:"herfindahl_index"`
}

// RecommendationType classifies a portfolio recommendation
type RecommendationType string

const (
	RecommendReduceConcentration RecommendationType = "reduce_concentration"
	RecommendDiversifyCluster    RecommendationType = "diversify_cluster"
	RecommendReduceTokenExposure RecommendationType = "reduce_token_exposure"
	RecommendAddUncorrelated     RecommendationType = "add_uncorrelated"
)

// Recommendation is an actionable observation about the portfolio structure
type Recommendation struct {
	Type        RecommendationType `json:"type"`
	Severity    string             `json:"severity"`
	Message     string             `json:"message"`
	PositionIDs []string           `json:"position_ids,omitempty"`
	Value       float64            `json:"value"`
}

// Summary aggregates the snapshot's analytics
type Summary struct {
	PositionCount   int     `json:"position_count"`
	ActiveCount     int     `json:"active_count"`
	TotalValue      float64 `json:"total_value"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	TotalFees       float64 `json:"total_fees"`
	WeightedAPR     float64 `json:"weighted_apr"`
}

// Analytics is the cross-position analysis of a snapshot
type Analytics struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	OwnerKey        string                 `json:"owner_key"`
	PositionIDs     []string               `json:"position_ids"`
	Pairs           []Pair                 `json:"pairs"`
	Clusters        []Cluster              `json:"clusters"`
	Recommendations []Recommendation       `json:"recommendations"`
	Risk            RiskDecomposition      `json:"risk"`
	Diversification DiversificationMetrics `json:"diversification"`
	Summary         Summary                `json:"summary"`
	Cached          bool                   `json:"cached"`
}

// Pair returns the record for two ids in either order
func (a *Analytics) Pair(x, y string) (Pair, bool) {
	for _, p := range a.Pairs {
		if (p.PositionA == x && p.PositionB == y) || (p.PositionA == y && p.PositionB == x) {
			return p, true
		}
	}
	return Pair{}, false
}
