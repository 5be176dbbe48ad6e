package rebalancing

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
)

// Metric names triggers can watch. Custom metrics are addressed as "custom.<name>".
const (
	MetricPriceChangePct      = "price_change_pct"
	MetricVolatility          = "volatility"
	MetricVolatilityChangePct = "volatility_change_pct"
	MetricEfficiency          = "efficiency"
	MetricEfficiencyDrop      = "efficiency_drop"
	MetricHoursSinceRebalance = "hours_since_rebalance"
	MetricILPct               = "il_pct"
	MetricPnLPct              = "pnl_pct"
	MetricAPR                 = "apr"
	MetricFeeAPR              = "fee_apr"
	MetricUtilization         = "utilization"

	customMetricPrefix = "custom."
)

func knownMetric(name string) bool {
	switch name {
	case MetricPriceChangePct, MetricVolatility, MetricVolatilityChangePct, MetricEfficiency,
		MetricEfficiencyDrop, MetricHoursSinceRebalance, MetricILPct, MetricPnLPct,
		MetricAPR, MetricFeeAPR, MetricUtilization:
		return true
	}
	return strings.HasPrefix(name, customMetricPrefix) && len(name) > len(customMetricPrefix)
}

// Metric returns the named metric. Unknown custom metrics report false.
func (m PositionMetrics) Metric(name string) (float64, bool) {
	switch name {
	case MetricPriceChangePct:
		return m.PriceChangePct, true
	case MetricVolatility:
		return m.Volatility, true
	case MetricVolatilityChangePct:
		return m.VolatilityChangePct, true
	case MetricEfficiency:
		return m.Efficiency, true
	case MetricEfficiencyDrop:
		return m.EfficiencyDrop, true
	case MetricHoursSinceRebalance:
		return m.HoursSinceRebalance, true
	case MetricILPct:
		return m.ILPct, true
	case MetricPnLPct:
		return m.PnLPct, true
	case MetricAPR:
		return m.APR, true
	case MetricFeeAPR:
		return m.FeeAPR, true
	case MetricUtilization:
		return m.Utilization, true
	}
	if strings.HasPrefix(name, customMetricPrefix) {
		v, ok := m.Custom[strings.TrimPrefix(name, customMetricPrefix)]
		return v, ok
	}
	return 0, false
}

// BuildMetrics derives trigger metrics for one position. lastRebalance is the time
// of the last completed rebalance, zero when there was none.
func BuildMetrics(pos domain.Position, a domain.PositionAnalytics, market *domain.MarketData, lastRebalance, now time.Time) PositionMetrics {
	md, _ := market.Position(pos.ID)

	m := PositionMetrics{
		Custom:              md.Custom,
		Value:               a.TotalValue,
		PriceChangePct:      md.PriceChangePct,
		Volatility:          md.Volatility,
		Efficiency:          md.CurrentEfficiency,
		PotentialEfficiency: md.PotentialEfficiency,
		EfficiencyDrop:      math.Max(0, md.PotentialEfficiency-md.CurrentEfficiency),
		ILPct:               math.Abs(a.ImpermanentLoss.Percent),
		PnLPct:              a.PnL.Percent,
		APR:                 a.APR,
		FeeAPR:              md.PoolFeeAPR,
		Utilization:         md.LiquidityUtilization,
		PoolLiquidityUSD:    md.PoolLiquidityUSD,
		GasCostUSD:          md.GasCostUSD,
	}
	if m.FeeAPR == 0 {
		m.FeeAPR = a.APR
	}
	if md.PreviousVolatility > 0 {
		m.VolatilityChangePct = (md.Volatility - md.PreviousVolatility) / md.PreviousVolatility * 100
	}

	since := lastRebalance
	if since.IsZero() {
		since = pos.CreatedAt
	}
	if !since.IsZero() && now.After(since) {
		m.HoursSinceRebalance = now.Sub(since).Hours()
	}
	return m
}

// Holds evaluates the condition operator against a value
func (c Condition) Holds(value float64) bool {
	switch c.Operator {
	case OpGreater:
		return value > c.Threshold
	case OpGreaterEqual:
		return value >= c.Threshold
	case OpLess:
		return value < c.Threshold
	case OpLessEqual:
		return value <= c.Threshold
	case OpEqual:
		return math.Abs(value-c.Threshold) < 1e-9
	case OpAbsGreater:
		return math.Abs(value) > c.Threshold
	}
	return false
}

// TriggerBook keeps runtime trigger state per (owner, config, position, trigger)
type TriggerBook struct {
	mu     sync.Mutex
	states map[triggerKey]*TriggerStatus
}

type triggerKey struct {
	owner, config, position, trigger string
}

// NewTriggerBook creates an empty trigger book
func NewTriggerBook() *TriggerBook {
	return &TriggerBook{states: make(map[triggerKey]*TriggerStatus)}
}

// Evaluate checks every enabled trigger against the metrics at now and returns the
// triggers that fired. A trigger fires once its condition has held continuously for
// the confirmation period, then stays latched until the condition stops holding.
func (b *TriggerBook) Evaluate(ownerKey, configID, positionID string, triggers []Trigger, m PositionMetrics, now time.Time) []TriggerFire {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fires []TriggerFire
	for _, t := range triggers {
		if !t.Enabled {
			continue
		}
		key := triggerKey{ownerKey, configID, positionID, t.ID}
		st, ok := b.states[key]
		if !ok {
			st = &TriggerStatus{TriggerID: t.ID}
			b.states[key] = st
		}

		value, ok := m.Metric(t.Condition.Metric)
		if !ok || !t.Condition.Holds(value) {
			// Condition cleared: re-arm
			st.Holding = false
			st.Latched = false
			st.ConditionSince = time.Time{}
			continue
		}

		if !st.Holding {
			st.Holding = true
			st.ConditionSince = now
		}
		if st.Latched || now.Sub(st.ConditionSince) < t.Condition.ConfirmationPeriod {
			continue
		}
		if w := t.Condition.TimeWindow; w > 0 && !st.LastFired.IsZero() && now.Sub(st.LastFired) < w {
			continue
		}

		st.FireCount++
		st.LastFired = now
		st.Latched = true
		fires = append(fires, TriggerFire{
			FiredAt:    now,
			OwnerKey:   ownerKey,
			PositionID: positionID,
			TriggerID:  t.ID,
			Type:       t.Type,
			Priority:   t.Priority,
			Metric:     t.Condition.Metric,
			Value:      value,
			Threshold:  t.Condition.Threshold,
			FireCount:  st.FireCount,
		})
	}
	return fires
}

// Status returns a copy of the trigger states for a position
func (b *TriggerBook) Status(ownerKey, configID, positionID string, triggers []Trigger) []TriggerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]TriggerStatus, 0, len(triggers))
	for _, t := range triggers {
		if st, ok := b.states[triggerKey{ownerKey, configID, positionID, t.ID}]; ok {
			out = append(out, *st)
		} else {
			out = append(out, TriggerStatus{TriggerID: t.ID})
		}
	}
	return out
}

// Reset clears the condition tracking of every trigger of a position after a
// rebalance. Fire counters are kept.
func (b *TriggerBook) Reset(ownerKey, positionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, st := range b.states {
		if key.owner == ownerKey && key.position == positionID {
			st.Holding = false
			st.Latched = false
			st.ConditionSince = time.Time{}
		}
	}
}
