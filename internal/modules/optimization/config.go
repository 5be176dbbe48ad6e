package optimization

import (
	"fmt"

	"github.com/aristath/lpsentinel/internal/domain"
)

// Objective selects the weight-solving strategy
type Objective string

const (
	ObjectiveMaximizeReturn Objective = "maximize_return"
	ObjectiveMinimizeRisk   Objective = "minimize_risk"
	ObjectiveMaximizeSharpe Objective = "maximize_sharpe"
	ObjectiveMaximizeYield  Objective = "maximize_yield"
	ObjectiveMeanVariance   Objective = "mean_variance"
)

// Bounds is an inclusive weight interval
type Bounds struct {
	Min float64 `json:"min" msgpack:"min" validate:"gte=0,lte=1"`
	Max float64 `json:"max" msgpack:"max" validate:"gte=0,lte=1"`
}

// Constraints restrict the target allocation
type Constraints struct {
	PositionBounds   map[string]Bounds  `json:"position_bounds,omitempty" msgpack:"position_bounds" validate:"dive"`
	MaxTokenExposure map[string]float64 `json:"max_token_exposure,omitempty" msgpack:"max_token_exposure" validate:"dive,gt=0,lte=1"`
	MaxPoolExposure  map[string]float64 `json:"max_pool_exposure,omitempty" msgpack:"max_pool_exposure" validate:"dive,gt=0,lte=1"`
	MinAllocation    float64            `json:"min_allocation" msgpack:"min_allocation" validate:"gte=0,lte=1"`
	MaxAllocation    float64            `json:"max_allocation" msgpack:"max_allocation" validate:"gte=0,lte=1"`
	MinPositions     int                `json:"min_positions" msgpack:"min_positions" validate:"gte=0"`
	MaxPositions     int                `json:"max_positions" msgpack:"max_positions" validate:"gte=0"`
}

// ScenarioSpec describes a custom what-if scenario
type ScenarioSpec struct {
	Name             string  `json:"name" msgpack:"name" validate:"required"`
	ReturnMultiplier float64 `json:"return_multiplier" msgpack:"return_multiplier"`
	ReturnShift      float64 `json:"return_shift" msgpack:"return_shift"`
	VolMultiplier    float64 `json:"vol_multiplier" msgpack:"vol_multiplier" validate:"gte=0"`
	Probability      float64 `json:"probability" msgpack:"probability" validate:"gte=0,lte=1"`
}

// Config is the per-request optimization configuration
type Config struct {
	CustomScenario      *ScenarioSpec `json:"custom_scenario,omitempty" msgpack:"custom_scenario"`
	Objective           Objective     `json:"objective" msgpack:"objective" validate:"omitempty,oneof=maximize_return minimize_risk maximize_sharpe maximize_yield mean_variance"`
	Constraints         Constraints   `json:"constraints" msgpack:"constraints"`
	RiskAversion        float64       `json:"risk_aversion" msgpack:"risk_aversion" validate:"gte=0"`
	RiskFreeRate        float64       `json:"risk_free_rate" msgpack:"risk_free_rate"` // 0 uses the market data rate
	RebalanceThreshold  float64       `json:"rebalance_threshold" msgpack:"rebalance_threshold" validate:"gte=0,lte=1"`
	TransactionCostRate float64       `json:"transaction_cost_rate" msgpack:"transaction_cost_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the default request configuration
func DefaultConfig() Config {
	return Config{
		Objective: ObjectiveMeanVariance,
		Constraints: Constraints{
			MinAllocation: 0,
			MaxAllocation: 1,
		},
		RiskAversion:        2.0,
		RebalanceThreshold:  0.02,
		TransactionCostRate: 0.003,
	}
}

// Normalized fills unset fields that have no meaningful zero value
func (c Config) Normalized() Config {
	if c.Objective == "" {
		c.Objective = ObjectiveMeanVariance
	}
	if c.Constraints.MaxAllocation == 0 {
		c.Constraints.MaxAllocation = 1
	}
	return c
}

// Validate checks ranges and internal consistency
func (c Config) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return err
	}
	if c.Constraints.MinAllocation > c.Constraints.MaxAllocation {
		return domain.NewValidationError("constraints",
			"min_allocation %.4f exceeds max_allocation %.4f", c.Constraints.MinAllocation, c.Constraints.MaxAllocation)
	}
	for id, b := range c.Constraints.PositionBounds {
		if b.Min > b.Max {
			return domain.NewValidationError(fmt.Sprintf("constraints.position_bounds[%s]", id),
				"min %.4f exceeds max %.4f", b.Min, b.Max)
		}
	}
	if c.Constraints.MaxPositions > 0 && c.Constraints.MinPositions > c.Constraints.MaxPositions {
		return domain.NewValidationError("constraints",
			"min_positions %d exceeds max_positions %d", c.Constraints.MinPositions, c.Constraints.MaxPositions)
	}
	return nil
}

// Settings tunes the optimizer engine itself (not per request)
type Settings struct {
	DefaultVolatility   float64 `yaml:"default_volatility" json:"default_volatility" validate:"gt=0"`
	GradientSteps       int     `yaml:"gradient_steps" json:"gradient_steps" validate:"gt=0"`
	GradientStepSize    float64 `yaml:"gradient_step_size" json:"gradient_step_size" validate:"gt=0"`
	MinRiskIterations   int     `yaml:"min_risk_iterations" json:"min_risk_iterations" validate:"gt=0"`
	SensitivityBump     float64 `yaml:"sensitivity_bump" json:"sensitivity_bump" validate:"gt=0,lt=1"`
	BullProbability     float64 `yaml:"bull_probability" json:"bull_probability" validate:"gte=0,lte=1"`
	BearProbability     float64 `yaml:"bear_probability" json:"bear_probability" validate:"gte=0,lte=1"`
	ProjectionHorizonYr float64 `yaml:"projection_horizon_years" json:"projection_horizon_years" validate:"gt=0"`
}

// DefaultSettings returns the standard optimizer tuning
func DefaultSettings() Settings {
	return Settings{
		DefaultVolatility:   0.2,
		GradientSteps:       10,
		GradientStepSize:    0.1,
		MinRiskIterations:   500,
		SensitivityBump:     0.1,
		BullProbability:     0.25,
		BearProbability:     0.25,
		ProjectionHorizonYr: 1,
	}
}

// Validate checks the settings
func (s Settings) Validate() error {
	if err := domain.ValidateStruct(s); err != nil {
		return err
	}
	if s.BullProbability+s.BearProbability > 1 {
		return fmt.Errorf("bull and bear probabilities exceed 1: %.2f", s.BullProbability+s.BearProbability)
	}
	return nil
}
