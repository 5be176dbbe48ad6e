package optimization

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// z95 is the one-sided 95% standard normal quantile
var z95 = distuv.UnitNormal.Quantile(0.95)

// sensitivity re-solves the problem with each parameter bumped and stresses the
// optimized weights under fixed shock scenarios
func (s *Service) sensitivity(p *problem, cfg Config, target []float64, m Metrics) Sensitivity {
	bump := s.settings.SensitivityBump
	baseReturn, baseRisk := m.OptimizedReturn, m.OptimizedRisk

	elasticity := func(name string, q *problem) Elasticity {
		w, _ := s.allocate(q, cfg)
		e := Elasticity{Parameter: name}
		if baseReturn != 0 {
			e.ReturnElasticity = (q.expectedReturn(w) - baseReturn) / math.Abs(baseReturn) / bump
		}
		if baseRisk != 0 {
			e.RiskElasticity = (q.risk(w) - baseRisk) / baseRisk / bump
		}
		return e
	}

	aversion := *p
	aversion.lambda = p.lambda * (1 + bump)

	out := Sensitivity{
		Elasticities: []Elasticity{
			elasticity("risk_aversion", &aversion),
			elasticity("expected_returns", p.withReturns(func(r float64) float64 { return r * (1 + bump) })),
			elasticity("volatilities", p.withVolatilityScale(1+bump)),
		},
	}

	stress := func(name, description string, q *problem, costMultiplier float64) StressResult {
		r := q.expectedReturn(target)
		if costMultiplier > 1 && p.totalValue > 0 {
			r -= (costMultiplier - 1) * m.TotalTransactionCost / p.totalValue
		}
		risk := q.risk(target)
		return StressResult{
			Name:           name,
			Description:    description,
			ExpectedReturn: r,
			Risk:           risk,
			ValueAtRisk95:  valueAtRisk(r, risk, p.totalValue),
			CostMultiplier: costMultiplier,
		}
	}

	out.StressTests = []StressResult{
		stress("volatility_spike", "All volatilities rise by 50%", p.withVolatilityScale(1.5), 1),
		stress("correlation_breakdown", "All pairwise correlations converge to 0.9", p.withCorrelation(0.9), 1),
		stress("return_shock", "Expected returns fall by 20 percentage points",
			p.withReturns(func(r float64) float64 { return r - 0.2 }), 1),
		stress("liquidity_crunch", "Transaction costs triple while rebalancing", p, 3),
	}
	return out
}

// valueAtRisk is the one-period 95% parametric VaR in USD, floored at zero
func valueAtRisk(expectedReturn, risk, value float64) float64 {
	return math.Max(0, z95*risk-expectedReturn) * value
}

// scenarios projects the optimized portfolio under base, bull, bear and an optional
// custom scenario. A custom scenario takes its probability from the others pro rata.
func (s *Service) scenarios(p *problem, cfg Config, target []float64) ScenarioAnalysis {
	bull, bear := s.settings.BullProbability, s.settings.BearProbability
	specs := []ScenarioSpec{
		{Name: "base", ReturnMultiplier: 1, VolMultiplier: 1, Probability: 1 - bull - bear},
		{Name: "bull", ReturnMultiplier: 1.5, ReturnShift: 0.05, VolMultiplier: 1, Probability: bull},
		{Name: "bear", ReturnMultiplier: 0.5, ReturnShift: -0.1, VolMultiplier: 1.3, Probability: bear},
	}
	if c := cfg.CustomScenario; c != nil {
		for i := range specs {
			specs[i].Probability *= 1 - c.Probability
		}
		specs = append(specs, *c)
	}

	out := ScenarioAnalysis{Scenarios: make([]Scenario, 0, len(specs))}
	for _, spec := range specs {
		q := p.withReturns(func(r float64) float64 { return r*spec.ReturnMultiplier + spec.ReturnShift })
		if spec.VolMultiplier > 0 && spec.VolMultiplier != 1 {
			q = q.withVolatilityScale(spec.VolMultiplier)
		}
		r := q.expectedReturn(target)
		sc := Scenario{
			Name:           spec.Name,
			ExpectedReturn: r,
			Risk:           q.risk(target),
			ProjectedValue: p.totalValue * (1 + r*s.settings.ProjectionHorizonYr),
			Probability:    spec.Probability,
		}
		out.ExpectedValue += sc.Probability * sc.ProjectedValue
		out.Scenarios = append(out.Scenarios, sc)
	}
	return out
}

var phaseTemplates = []struct {
	priority    Priority
	timing      Timing
	name        string
	duration    string
	checkpoints []string
}{
	{PriorityHigh, TimingImmediate, "Immediate adjustments", "0-24 hours", []string{
		"Confirm executions settled at expected prices",
		"Re-check concentration and token exposure",
	}},
	{PriorityMedium, TimingNextCycle, "Next cycle adjustments", "1-3 days", []string{
		"Review position health after the first phase",
		"Verify realised slippage against estimates",
	}},
	{PriorityLow, TimingOpportunistic, "Opportunistic adjustments", "1-2 weeks", []string{
		"Execute when gas costs are low",
		"Skip if the weight drift has closed on its own",
	}},
}

// plan groups actions into phases by priority
func plan(actions []Action) ImplementationPlan {
	out := ImplementationPlan{Phases: make([]Phase, 0, len(phaseTemplates)), Timeline: "No changes required"}
	for _, tpl := range phaseTemplates {
		phase := Phase{
			Name:        tpl.name,
			Priority:    tpl.priority,
			Timing:      tpl.timing,
			Duration:    tpl.duration,
			Checkpoints: tpl.checkpoints,
		}
		for _, a := range actions {
			if a.Priority == tpl.priority {
				phase.Actions = append(phase.Actions, a)
				phase.Cost += a.EstimatedCost
			}
		}
		if len(phase.Actions) == 0 {
			continue
		}
		out.TotalCost += phase.Cost
		out.Timeline = tpl.duration
		out.Phases = append(out.Phases, phase)
	}
	return out
}
