package rebalancing

import "time"

// TriggerType classifies a rebalancing trigger
type TriggerType string

const (
	TriggerPriceMovement    TriggerType = "price_movement"
	TriggerTimeBased        TriggerType = "time_based"
	TriggerEfficiencyDrop   TriggerType = "efficiency_drop"
	TriggerVolatilityChange TriggerType = "volatility_change"
	TriggerCustom           TriggerType = "custom"
)

// Operator compares a metric against a threshold
type Operator string

const (
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpEqual        Operator = "eq"
	OpAbsGreater   Operator = "abs_gt"
)

// Priority ranks triggers
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Condition is the rule a trigger watches. The condition must hold for
// ConfirmationPeriod before the trigger fires; TimeWindow is the minimum spacing
// between two fires.
type Condition struct {
	Metric             string        `yaml:"metric" json:"metric" msgpack:"metric" validate:"required"`
	Operator           Operator      `yaml:"operator" json:"operator" msgpack:"operator" validate:"oneof=gt gte lt lte eq abs_gt"`
	Threshold          float64       `yaml:"threshold" json:"threshold" msgpack:"threshold"`
	TimeWindow         time.Duration `yaml:"time_window" json:"time_window" msgpack:"time_window" validate:"gte=0"`
	ConfirmationPeriod time.Duration `yaml:"confirmation_period" json:"confirmation_period" msgpack:"confirmation_period" validate:"gte=0"`
}

// Trigger is a named condition with a priority
type Trigger struct {
	ID        string      `yaml:"id" json:"id" msgpack:"id" validate:"required"`
	Type      TriggerType `yaml:"type" json:"type" msgpack:"type" validate:"oneof=price_movement time_based efficiency_drop volatility_change custom"`
	Condition Condition   `yaml:"condition" json:"condition" msgpack:"condition"`
	Priority  Priority    `yaml:"priority" json:"priority" msgpack:"priority" validate:"oneof=low medium high critical"`
	Enabled   bool        `yaml:"enabled" json:"enabled" msgpack:"enabled"`
}

// TriggerStatus is the runtime state of one trigger for one position
type TriggerStatus struct {
	LastFired      time.Time `json:"last_fired,omitempty"`
	ConditionSince time.Time `json:"condition_since,omitempty"`
	TriggerID      string    `json:"trigger_id"`
	FireCount      int       `json:"fire_count"`
	Holding        bool      `json:"holding"`
	Latched        bool      `json:"latched"`
}

// TriggerFire records a trigger firing for a position
type TriggerFire struct {
	FiredAt    time.Time   `json:"fired_at"`
	OwnerKey   string      `json:"owner_key"`
	PositionID string      `json:"position_id"`
	TriggerID  string      `json:"trigger_id"`
	Type       TriggerType `json:"type"`
	Priority   Priority    `json:"priority"`
	Metric     string      `json:"metric"`
	Value      float64     `json:"value"`
	Threshold  float64     `json:"threshold"`
	FireCount  int         `json:"fire_count"`
}

// EfficiencyAnalysis measures how far a position is from its potential efficiency
type EfficiencyAnalysis struct {
	Current         float64 `json:"current"`          // percent
	Potential       float64 `json:"potential"`        // percent
	Gap             float64 `json:"gap"`              // percentage points
	DegradationRate float64 `json:"degradation_rate"` // percentage points per day
	MissedFeesUSD   float64 `json:"missed_fees_usd"`
	HorizonDays     int     `json:"horizon_days"`
}

// CostBenefitAnalysis weighs the cost of a rebalance against its expected benefit
type CostBenefitAnalysis struct {
	GasCost           float64 `json:"gas_cost"`
	SlippageCost      float64 `json:"slippage_cost"`
	OpportunityCost   float64 `json:"opportunity_cost"`
	TotalCost         float64 `json:"total_cost"`
	IncreasedFees     float64 `json:"increased_fees"`
	EfficiencyGain    float64 `json:"efficiency_gain"`
	RiskReduction     float64 `json:"risk_reduction"`
	TotalBenefit      float64 `json:"total_benefit"`
	NetBenefit        float64 `json:"net_benefit"`
	ROI               float64 `json:"roi"`
	PaybackDays       float64 `json:"payback_days"` // -1 when the cost is never recovered
	ProfitProbability float64 `json:"profit_probability"`
}

// RiskLevel buckets a risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment scores the risk of rebalancing now
type RiskAssessment struct {
	Level          RiskLevel `json:"level"`
	Factors        []string  `json:"factors"`
	LiquidityRisk  float64   `json:"liquidity_risk"`
	VolatilityRisk float64   `json:"volatility_risk"`
	ExecutionRisk  float64   `json:"execution_risk"`
	Score          float64   `json:"score"`
}

// Action is the recommendation for a position
type Action string

const (
	ActionRebalance    Action = "rebalance"
	ActionConservative Action = "conservative"
	ActionNoAction     Action = "no_action"
)

// Decision is the outcome of the decision rule
type Decision struct {
	Action  Action   `json:"action"`
	Reasons []string `json:"reasons"`
}

// Actionable reports whether the decision calls for an execution
func (d Decision) Actionable() bool {
	return d.Action == ActionRebalance || d.Action == ActionConservative
}

// PositionMetrics are the values triggers are evaluated against
type PositionMetrics struct {
	Custom              map[string]float64 `json:"custom,omitempty" msgpack:"custom"`
	Value               float64            `json:"value" msgpack:"value"`
	PriceChangePct      float64            `json:"price_change_pct" msgpack:"price_change_pct"`
	Volatility          float64            `json:"volatility" msgpack:"volatility"`
	VolatilityChangePct float64            `json:"volatility_change_pct" msgpack:"volatility_change_pct"`
	Efficiency          float64            `json:"efficiency" msgpack:"efficiency"`
	PotentialEfficiency float64            `json:"potential_efficiency" msgpack:"potential_efficiency"`
	EfficiencyDrop      float64            `json:"efficiency_drop" msgpack:"efficiency_drop"`
	HoursSinceRebalance float64            `json:"hours_since_rebalance" msgpack:"hours_since_rebalance"`
	ILPct               float64            `json:"il_pct" msgpack:"il_pct"`
	PnLPct              float64            `json:"pnl_pct" msgpack:"pnl_pct"`
	APR                 float64            `json:"apr" msgpack:"apr"`
	FeeAPR              float64            `json:"fee_apr" msgpack:"fee_apr"`
	Utilization         float64            `json:"utilization" msgpack:"utilization"`
	PoolLiquidityUSD    float64            `json:"pool_liquidity_usd" msgpack:"pool_liquidity_usd"`
	GasCostUSD          float64            `json:"gas_cost_usd" msgpack:"gas_cost_usd"`
}

// Analysis is the full rebalancing analysis of one position
type Analysis struct {
	GeneratedAt time.Time           `json:"generated_at"`
	OwnerKey    string              `json:"owner_key"`
	PositionID  string              `json:"position_id"`
	ConfigID    string              `json:"config_id"`
	Metrics     PositionMetrics     `json:"metrics"`
	Efficiency  EfficiencyAnalysis  `json:"efficiency"`
	CostBenefit CostBenefitAnalysis `json:"cost_benefit"`
	Risk        RiskAssessment      `json:"risk"`
	Decision    Decision            `json:"decision"`
	Cached      bool                `json:"cached"`
}

// ExecutionState is a state of the execution state machine
type ExecutionState string

const (
	StatePending   ExecutionState = "pending"
	StateExecuting ExecutionState = "executing"
	StateCompleted ExecutionState = "completed"
	StateFailed    ExecutionState = "failed"
	StateCancelled ExecutionState = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s ExecutionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// LogEntry is one line of an execution's transaction log
type LogEntry struct {
	Time    time.Time      `json:"time"`
	State   ExecutionState `json:"state"`
	Message string         `json:"message"`
	TxID    string         `json:"tx_id,omitempty"`
}

// Execution is one run of the execution state machine
type Execution struct {
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at,omitempty"`
	ID              string         `json:"id"`
	OwnerKey        string         `json:"owner_key"`
	PositionID      string         `json:"position_id"`
	Mode            Action         `json:"mode"`
	State           ExecutionState `json:"state"`
	Error           string         `json:"error,omitempty"`
	Analysis        *Analysis      `json:"analysis"`
	Log             []LogEntry     `json:"log"`
	Lessons         []string       `json:"lessons,omitempty"`
	EstimatedCost   float64        `json:"estimated_cost"`
	ActualCost      float64        `json:"actual_cost"`
	CostVariance    float64        `json:"cost_variance"`
	CostVariancePct float64        `json:"cost_variance_pct"`
}

func (e *Execution) transition(state ExecutionState, at time.Time, message string) {
	e.State = state
	e.Log = append(e.Log, LogEntry{Time: at, State: state, Message: message})
	if state.Terminal() {
		e.FinishedAt = at
	}
}
