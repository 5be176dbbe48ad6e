package optimization

import (
	"fmt"
	"math"
	"sort"
)

// buildWeights pairs current and target weights with a rationale per position
func buildWeights(p *problem, target []float64, objective Objective) []PortfolioWeight {
	out := make([]PortfolioWeight, len(p.ids))
	for i, id := range p.ids {
		out[i] = PortfolioWeight{
			PositionID:     id,
			CurrentWeight:  p.current[i],
			TargetWeight:   target[i],
			WeightChange:   target[i] - p.current[i],
			ExpectedReturn: p.mu[i],
			Volatility:     p.vols[i],
			Rationale:      rationale(p, i, target[i], objective),
		}
	}
	return out
}

func rationale(p *problem, i int, target float64, objective Objective) string {
	delta := target - p.current[i]
	switch {
	case target <= 1e-6 && p.current[i] > 1e-6:
		return fmt.Sprintf("Exit: %s does not earn a place under %s (return %.1f%%, volatility %.1f%%)",
			p.ids[i], objective, p.mu[i]*100, p.vols[i]*100)
	case target <= 1e-6:
		return fmt.Sprintf("Not allocated under %s", objective)
	case math.Abs(delta) <= 1e-6:
		return fmt.Sprintf("Hold at %.1f%%", target*100)
	}

	verb := "Increase"
	if delta < 0 {
		verb = "Reduce"
	}
	var reason string
	switch objective {
	case ObjectiveMaximizeReturn:
		reason = fmt.Sprintf("expected return %.1f%%", p.mu[i]*100)
	case ObjectiveMinimizeRisk:
		reason = fmt.Sprintf("volatility %.1f%% and its correlations", p.vols[i]*100)
	case ObjectiveMaximizeSharpe:
		reason = fmt.Sprintf("excess return %.1f%% over risk-free", (p.mu[i]-p.riskFree)*100)
	case ObjectiveMaximizeYield:
		reason = fmt.Sprintf("fee yield %.1f%%", p.feeYield[i]*100)
	default:
		reason = fmt.Sprintf("return %.1f%% against volatility %.1f%% at risk aversion %.1f",
			p.mu[i]*100, p.vols[i]*100, p.lambda)
	}
	return fmt.Sprintf("%s to %.1f%% (%+.1f pp): %s", verb, target*100, delta*100, reason)
}

// buildActions emits an action for each position whose weight moves by more than the
// rebalance threshold. Benefit is the moved amount times the return spread against the
// current portfolio return.
func buildActions(p *problem, target []float64, cfg Config) []Action {
	currentReturn := p.expectedReturn(p.current)
	actions := make([]Action, 0)
	for i, id := range p.ids {
		delta := target[i] - p.current[i]
		if math.Abs(delta) <= cfg.RebalanceThreshold {
			continue
		}
		amount := math.Abs(delta) * p.totalValue
		a := Action{
			PositionID:       id,
			Type:             ActionIncrease,
			WeightChange:     delta,
			AmountUSD:        amount,
			EstimatedCost:    amount * cfg.TransactionCostRate,
			EstimatedBenefit: amount * math.Abs(p.mu[i]-currentReturn),
		}
		if delta < 0 {
			a.Type = ActionDecrease
		}
		a.Priority, a.Timing = actionPriority(math.Abs(delta))
		actions = append(actions, a)
	}

	sort.SliceStable(actions, func(x, y int) bool {
		return math.Abs(actions[x].WeightChange) > math.Abs(actions[y].WeightChange)
	})
	return actions
}

func actionPriority(change float64) (Priority, Timing) {
	switch {
	case change > 0.10:
		return PriorityHigh, TimingImmediate
	case change > 0.05:
		return PriorityMedium, TimingNextCycle
	default:
		return PriorityLow, TimingOpportunistic
	}
}

// buildMetrics compares the current and target allocations
func buildMetrics(p *problem, target []float64, actions []Action) Metrics {
	m := Metrics{
		CurrentReturn:   p.expectedReturn(p.current),
		OptimizedReturn: p.expectedReturn(target),
		CurrentRisk:     p.risk(p.current),
		OptimizedRisk:   p.risk(target),
		CurrentSharpe:   p.sharpe(p.current),
		OptimizedSharpe: p.sharpe(target),
	}
	if m.CurrentRisk > 0 {
		m.RiskReduction = (m.CurrentRisk - m.OptimizedRisk) / m.CurrentRisk * 100
	}
	if m.CurrentReturn != 0 {
		m.ReturnEnhancement = (m.OptimizedReturn - m.CurrentReturn) / math.Abs(m.CurrentReturn) * 100
	}

	maxWeight, hhi := 0.0, 0.0
	for _, w := range target {
		maxWeight = math.Max(maxWeight, w)
		hhi += w * w
	}
	m.DiversificationImprovement = 1 - maxWeight
	if hhi > 0 {
		m.EffectivePositions = 1 / hhi
	}
	for _, a := range actions {
		m.TotalTransactionCost += a.EstimatedCost
	}
	return m
}
