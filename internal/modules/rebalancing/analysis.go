package rebalancing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// previousEfficiency is the efficiency observed by an earlier analysis
type previousEfficiency struct {
	value float64
	days  float64 // elapsed days since it was observed
}

func analyzeEfficiency(m PositionMetrics, prev *previousEfficiency, cfg Config) EfficiencyAnalysis {
	e := EfficiencyAnalysis{
		Current:     m.Efficiency,
		Potential:   m.PotentialEfficiency,
		Gap:         m.EfficiencyDrop,
		HorizonDays: cfg.HorizonDays,
	}
	if prev != nil && prev.days > 0 {
		e.DegradationRate = (prev.value - m.Efficiency) / prev.days
	}
	e.MissedFeesUSD = m.Value * m.FeeAPR / 100 * e.Gap / 100 * float64(cfg.HorizonDays) / 365
	return e
}

func analyzeCostBenefit(m PositionMetrics, eff EfficiencyAnalysis, cfg Config) CostBenefitAnalysis {
	horizon := float64(cfg.HorizonDays) / 365
	cb := CostBenefitAnalysis{GasCost: m.GasCostUSD}
	if cb.GasCost == 0 {
		cb.GasCost = cfg.DefaultGasCostUSD
	}

	// 1. Costs
	impact := 1.0
	if m.PoolLiquidityUSD > 0 {
		impact += 100 * m.Value / m.PoolLiquidityUSD
	}
	cb.SlippageCost = m.Value * cfg.SlippageBps / 10000 * impact
	cb.OpportunityCost = m.Value * m.FeeAPR / 100 * cfg.DowntimeHours / 8760
	cb.TotalCost = cb.GasCost + cb.SlippageCost + cb.OpportunityCost

	// 2. Benefits
	cb.IncreasedFees = eff.MissedFeesUSD
	cb.EfficiencyGain = m.Value * eff.Gap / 100 * cfg.CapitalEfficiencyYield * horizon
	cb.RiskReduction = m.Value * m.Volatility * cfg.RiskReductionFactor * eff.Gap / 100
	cb.TotalBenefit = cb.IncreasedFees + cb.EfficiencyGain + cb.RiskReduction

	// 3. Returns
	cb.NetBenefit = cb.TotalBenefit - cb.TotalCost
	if cb.TotalCost > 0 {
		cb.ROI = cb.NetBenefit / cb.TotalCost
	}
	cb.PaybackDays = -1
	if daily := cb.TotalBenefit / float64(cfg.HorizonDays); daily > 0 {
		cb.PaybackDays = cb.TotalCost / daily
	}

	spread := m.Value * m.Volatility * math.Sqrt(horizon)
	switch {
	case spread > 0:
		cb.ProfitProbability = distuv.UnitNormal.CDF(cb.NetBenefit / spread)
	case cb.NetBenefit > 0:
		cb.ProfitProbability = 1
	}
	return cb
}

// Risk level thresholds on the 0-100 score
const (
	riskMediumAt   = 25
	riskHighAt     = 50
	riskCriticalAt = 75
)

func assessRisk(m PositionMetrics, cb CostBenefitAnalysis) RiskAssessment {
	r := RiskAssessment{Factors: make([]string, 0)}

	// Liquidity: idle share of the position plus its footprint in the pool
	r.LiquidityRisk = 50
	if m.PoolLiquidityUSD > 0 {
		r.LiquidityRisk = clamp(0.5*(100-m.Utilization)+math.Min(50, 1e4*m.Value/m.PoolLiquidityUSD), 0, 100)
	}
	r.VolatilityRisk = clamp(m.Volatility*100, 0, 100)
	costRatio := 0.0
	if m.Value > 0 {
		costRatio = cb.TotalCost / m.Value
	}
	r.ExecutionRisk = clamp(5*math.Abs(m.PriceChangePct)+1000*costRatio, 0, 100)

	r.Score = 0.4*r.LiquidityRisk + 0.4*r.VolatilityRisk + 0.2*r.ExecutionRisk
	switch {
	case r.Score >= riskCriticalAt:
		r.Level = RiskCritical
	case r.Score >= riskHighAt:
		r.Level = RiskHigh
	case r.Score >= riskMediumAt:
		r.Level = RiskMedium
	default:
		r.Level = RiskLow
	}

	if r.LiquidityRisk >= riskHighAt {
		r.Factors = append(r.Factors, fmt.Sprintf("liquidity risk %.0f", r.LiquidityRisk))
	}
	if r.VolatilityRisk >= riskHighAt {
		r.Factors = append(r.Factors, fmt.Sprintf("volatility %.0f%%", m.Volatility*100))
	}
	if r.ExecutionRisk >= riskHighAt {
		r.Factors = append(r.Factors, fmt.Sprintf("execution risk %.0f", r.ExecutionRisk))
	}
	return r
}

// decide applies the rebalance rule: efficiency gain, ROI and risk must all pass
func decide(eff EfficiencyAnalysis, cb CostBenefitAnalysis, risk RiskAssessment, cfg Config) Decision {
	var reasons []string
	gainOK := eff.Gap > cfg.MinEfficiencyGain
	roiOK := cb.ROI > cfg.BreakEvenThreshold
	riskOK := risk.Level != RiskCritical

	if !gainOK {
		reasons = append(reasons, fmt.Sprintf("efficiency gain %.1fpp does not exceed %.1fpp", eff.Gap, cfg.MinEfficiencyGain))
	}
	if !roiOK {
		reasons = append(reasons, fmt.Sprintf("ROI %.2f does not exceed break-even threshold %.2f", cb.ROI, cfg.BreakEvenThreshold))
	}
	if !riskOK {
		reasons = append(reasons, fmt.Sprintf("risk is critical (score %.0f)", risk.Score))
	}

	if gainOK && roiOK && riskOK {
		return Decision{
			Action: ActionRebalance,
			Reasons: []string{fmt.Sprintf("efficiency gain %.1fpp, ROI %.2f, net benefit $%.2f, %s risk",
				eff.Gap, cb.ROI, cb.NetBenefit, risk.Level)},
		}
	}
	return Decision{Action: ActionNoAction, Reasons: reasons}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
