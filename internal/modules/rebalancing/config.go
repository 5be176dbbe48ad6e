package rebalancing

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
)

// DefaultConfigID names the configuration registered at startup
const DefaultConfigID = "default"

// TimeWindow is an allowed UTC hour range [StartHour, EndHour). It wraps past
// midnight when StartHour > EndHour.
type TimeWindow struct {
	StartHour int `yaml:"start_hour" json:"start_hour" msgpack:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int `yaml:"end_hour" json:"end_hour" msgpack:"end_hour" validate:"gte=0,lte=24"`
}

// Contains reports whether t falls inside the window
func (w TimeWindow) Contains(t time.Time) bool {
	h := t.UTC().Hour()
	if w.StartHour == w.EndHour {
		return true
	}
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// EmergencyStops are thresholds beyond which automatic execution is not trusted.
// Zero disables a stop.
type EmergencyStops struct {
	MinPnLPct     float64 `yaml:"min_pnl_pct" json:"min_pnl_pct" msgpack:"min_pnl_pct" validate:"lte=0"`
	MaxILPct      float64 `yaml:"max_il_pct" json:"max_il_pct" msgpack:"max_il_pct" validate:"gte=0"`
	MaxVolatility float64 `yaml:"max_volatility" json:"max_volatility" msgpack:"max_volatility" validate:"gte=0"`
}

// Constraints gate automatic execution
type Constraints struct {
	AllowedWindows       []TimeWindow   `yaml:"allowed_windows" json:"allowed_windows" msgpack:"allowed_windows" validate:"dive"`
	EmergencyStops       EmergencyStops `yaml:"emergency_stops" json:"emergency_stops" msgpack:"emergency_stops"`
	MaxRebalancesPerDay  int            `yaml:"max_rebalances_per_day" json:"max_rebalances_per_day" msgpack:"max_rebalances_per_day" validate:"gte=0"`
	MinTimeBetween       time.Duration  `yaml:"min_time_between" json:"min_time_between" msgpack:"min_time_between" validate:"gte=0"`
	ConservativeFallback bool           `yaml:"conservative_fallback" json:"conservative_fallback" msgpack:"conservative_fallback"`
}

// Config is a named rebalancing configuration. MinEfficiencyGain is in percentage
// points and BreakEvenThreshold is the minimum ROI a rebalance must clear.
type Config struct {
	ID                     string      `yaml:"id" json:"id" msgpack:"id" validate:"required"`
	Triggers               []Trigger   `yaml:"triggers" json:"triggers" msgpack:"triggers" validate:"dive"`
	Constraints            Constraints `yaml:"constraints" json:"constraints" msgpack:"constraints"`
	MinEfficiencyGain      float64     `yaml:"min_efficiency_gain" json:"min_efficiency_gain" msgpack:"min_efficiency_gain" validate:"gte=0,lte=100"`
	BreakEvenThreshold     float64     `yaml:"break_even_threshold" json:"break_even_threshold" msgpack:"break_even_threshold"`
	HorizonDays            int         `yaml:"horizon_days" json:"horizon_days" msgpack:"horizon_days" validate:"gt=0"`
	DefaultGasCostUSD      float64     `yaml:"default_gas_cost_usd" json:"default_gas_cost_usd" msgpack:"default_gas_cost_usd" validate:"gte=0"`
	SlippageBps            float64     `yaml:"slippage_bps" json:"slippage_bps" msgpack:"slippage_bps" validate:"gte=0"`
	DowntimeHours          float64     `yaml:"downtime_hours" json:"downtime_hours" msgpack:"downtime_hours" validate:"gte=0"`
	CapitalEfficiencyYield float64     `yaml:"capital_efficiency_yield" json:"capital_efficiency_yield" msgpack:"capital_efficiency_yield" validate:"gte=0"`
	RiskReductionFactor    float64     `yaml:"risk_reduction_factor" json:"risk_reduction_factor" msgpack:"risk_reduction_factor" validate:"gte=0"`
	AutoExecute            bool        `yaml:"auto_execute" json:"auto_execute" msgpack:"auto_execute"`
}

// DefaultTriggers returns one trigger per built-in trigger type
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			ID:       "price-movement",
			Type:     TriggerPriceMovement,
			Priority: PriorityHigh,
			Enabled:  true,
			Condition: Condition{
				Metric:    MetricPriceChangePct,
				Operator:  OpAbsGreater,
				Threshold: 5,
			},
		},
		{
			ID:       "weekly",
			Type:     TriggerTimeBased,
			Priority: PriorityLow,
			Enabled:  true,
			Condition: Condition{
				Metric:    MetricHoursSinceRebalance,
				Operator:  OpGreaterEqual,
				Threshold: 168,
			},
		},
		{
			ID:       "efficiency-drop",
			Type:     TriggerEfficiencyDrop,
			Priority: PriorityMedium,
			Enabled:  true,
			Condition: Condition{
				Metric:             MetricEfficiencyDrop,
				Operator:           OpGreater,
				Threshold:          15,
				ConfirmationPeriod: 30 * time.Minute,
			},
		},
		{
			ID:       "volatility-change",
			Type:     TriggerVolatilityChange,
			Priority: PriorityMedium,
			Enabled:  true,
			Condition: Condition{
				Metric:             MetricVolatilityChangePct,
				Operator:           OpAbsGreater,
				Threshold:          25,
				ConfirmationPeriod: 15 * time.Minute,
				TimeWindow:         6 * time.Hour,
			},
		},
	}
}

// DefaultConfig returns the configuration registered as DefaultConfigID
func DefaultConfig() Config {
	return Config{
		ID:       DefaultConfigID,
		Triggers: DefaultTriggers(),
		Constraints: Constraints{
			MaxRebalancesPerDay: 3,
			MinTimeBetween:      4 * time.Hour,
			EmergencyStops: EmergencyStops{
				MinPnLPct:     -25,
				MaxILPct:      15,
				MaxVolatility: 2,
			},
			ConservativeFallback: true,
		},
		MinEfficiencyGain:      5,
		BreakEvenThreshold:     0.2,
		HorizonDays:            30,
		DefaultGasCostUSD:      5,
		SlippageBps:            10,
		DowntimeHours:          1,
		CapitalEfficiencyYield: 0.05,
		RiskReductionFactor:    0.01,
	}
}

// Validate checks field ranges and trigger id uniqueness
func (c Config) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Triggers))
	for _, t := range c.Triggers {
		if _, dup := seen[t.ID]; dup {
			return domain.NewValidationError("triggers", "duplicate trigger id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if !knownMetric(t.Condition.Metric) {
			return domain.NewValidationError(fmt.Sprintf("triggers[%s].condition.metric", t.ID), "unknown metric %q", t.Condition.Metric)
		}
	}
	return nil
}

// Registry holds the named configurations
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewRegistry creates a registry seeded with DefaultConfig
func NewRegistry() *Registry {
	r := &Registry{configs: make(map[string]Config)}
	r.configs[DefaultConfigID] = DefaultConfig()
	return r
}

// RegisterConfig validates and stores cfg, replacing any config with the same id
func (r *Registry) RegisterConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid rebalancing config %q: %w", cfg.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.ID] = cfg
	return nil
}

// Config returns the config with the given id. An empty id selects DefaultConfigID.
func (r *Registry) Config(id string) (Config, error) {
	if id == "" {
		id = DefaultConfigID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return Config{}, &domain.NotFoundError{Kind: "rebalancing config", ID: id}
	}
	return cfg, nil
}

// IDs returns the registered config ids in order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
