package optimization

import "time"

// Status summarises the outcome of an optimization
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial" // solved, but some constraints could not be met
)

// Warning is a typed, non-fatal optimization finding
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes
const (
	WarnTokenExposure = "token_exposure_unmet"
	WarnPoolExposure  = "pool_exposure_unmet"
	WarnMinPositions  = "min_positions_unmet"
	WarnMaxPositions  = "max_positions_unmet"
	WarnNoPositiveSet = "no_positive_scores"
	WarnNoPositions   = "no_positions"
)

// PortfolioWeight is the current and target allocation for one position
type PortfolioWeight struct {
	PositionID     string  `json:"position_id"`
	Rationale      string  `json:"rationale"`
	CurrentWeight  float64 `json:"current_weight"`
	TargetWeight   float64 `json:"target_weight"`
	WeightChange   float64 `json:"weight_change"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
}

// ActionType is the direction of a rebalancing action
type ActionType string

const (
	ActionIncrease ActionType = "increase"
	ActionDecrease ActionType = "decrease"
)

// Priority ranks rebalancing actions
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Timing is when an action should be carried out
type Timing string

const (
	TimingImmediate     Timing = "immediate"
	TimingNextCycle     Timing = "next_cycle"
	TimingOpportunistic Timing = "opportunistic"
)

// Action is a proposed allocation change for one position
type Action struct {
	PositionID       string     `json:"position_id"`
	Type             ActionType `json:"type"`
	Priority         Priority   `json:"priority"`
	Timing           Timing     `json:"timing"`
	WeightChange     float64    `json:"weight_change"`
	AmountUSD        float64    `json:"amount_usd"`
	EstimatedCost    float64    `json:"estimated_cost"`
	EstimatedBenefit float64    `json:"estimated_benefit"`
}

// Metrics compares the current and optimized allocations
type Metrics struct {
	CurrentReturn              float64 `json:"current_return"`
	OptimizedReturn            float64 `json:"optimized_return"`
	CurrentRisk                float64 `json:"current_risk"`
	OptimizedRisk              float64 `json:"optimized_risk"`
	CurrentSharpe              float64 `json:"current_sharpe"`
	OptimizedSharpe            float64 `json:"optimized_sharpe"`
	RiskReduction              float64 `json:"risk_reduction"`        // percent
	ReturnEnhancement          float64 `json:"return_enhancement"`    // percent
	DiversificationImprovement float64 `json:"diversification_improvement"`
	EffectivePositions         float64 `json:"effective_positions"`
	TotalTransactionCost       float64 `json:"total_transaction_cost"`
}

// Elasticity is the relative response of the optimized portfolio to a parameter bump
type Elasticity struct {
	Parameter        string  `json:"parameter"`
	ReturnElasticity float64 `json:"return_elasticity"`
	RiskElasticity   float64 `json:"risk_elasticity"`
}

// StressResult is the optimized portfolio evaluated under a stress scenario
type StressResult struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ExpectedReturn float64 `json:"expected_return"`
	Risk           float64 `json:"risk"`
	ValueAtRisk95  float64 `json:"value_at_risk_95"` // USD
	CostMultiplier float64 `json:"cost_multiplier"`
}

// Sensitivity holds parameter elasticities and stress tests
type Sensitivity struct {
	Elasticities []Elasticity   `json:"elasticities"`
	StressTests  []StressResult `json:"stress_tests"`
}

// Scenario is a what-if projection of the optimized portfolio
type Scenario struct {
	Name           string  `json:"name"`
	ExpectedReturn float64 `json:"expected_return"`
	Risk           float64 `json:"risk"`
	ProjectedValue float64 `json:"projected_value"`
	Probability    float64 `json:"probability"`
}

// ScenarioAnalysis holds the scenarios and their probability weighted value
type ScenarioAnalysis struct {
	Scenarios     []Scenario `json:"scenarios"`
	ExpectedValue float64    `json:"expected_value"`
}

// Phase groups actions of one priority
type Phase struct {
	Name        string   `json:"name"`
	Priority    Priority `json:"priority"`
	Timing      Timing   `json:"timing"`
	Actions     []Action `json:"actions"`
	Checkpoints []string `json:"checkpoints"`
	Cost        float64  `json:"cost"`
	Duration    string   `json:"duration"`
}

// ImplementationPlan orders the actions into phases
type ImplementationPlan struct {
	Phases    []Phase `json:"phases"`
	TotalCost float64 `json:"total_cost"`
	Timeline  string  `json:"timeline"`
}

// Result is the full optimization output
type Result struct {
	GeneratedAt time.Time          `json:"generated_at"`
	OwnerKey    string             `json:"owner_key"`
	Objective   Objective          `json:"objective"`
	Status      Status             `json:"status"`
	Weights     []PortfolioWeight  `json:"weights"`
	Actions     []Action           `json:"actions"`
	Warnings    []Warning          `json:"warnings"`
	Metrics     Metrics            `json:"metrics"`
	Sensitivity Sensitivity        `json:"sensitivity"`
	Scenarios   ScenarioAnalysis   `json:"scenarios"`
	Plan        ImplementationPlan `json:"plan"`
	Cached      bool               `json:"cached"`
}

// TargetWeights returns the target allocation keyed by position id
func (r *Result) TargetWeights() map[string]float64 {
	out := make(map[string]float64, len(r.Weights))
	for _, w := range r.Weights {
		out[w.PositionID] = w.TargetWeight
	}
	return out
}
