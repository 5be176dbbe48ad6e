package monitoring

import (
	"math"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
)

// InputsFromAnalysis collects the health inputs for a position from its rebalancing
// analysis and the pool's market data
func InputsFromAnalysis(a *rebalancing.Analysis, md domain.PositionMarketData) HealthInputs {
	return HealthInputs{
		Efficiency:  a.Metrics.Efficiency,
		PositionAPR: a.Metrics.APR,
		PoolFeeAPR:  md.PoolFeeAPR,
		Utilization: a.Metrics.Utilization,
		RiskScore:   a.Risk.Score,
		ReturnPct:   a.Metrics.PnLPct,
	}
}

// Score computes the health score and severities for one position
func Score(positionID string, in HealthInputs, s Settings, at time.Time) HealthScore {
	// Fee capture relative to what the pool pays
	feeOpt := 50.0
	if in.PoolFeeAPR > 0 {
		feeOpt = clamp(in.PositionAPR/in.PoolFeeAPR*100, 0, 100)
	}
	performance := clamp(50+in.ReturnPct, 0, 100)

	w := s.Weights
	health := w.Efficiency*clamp(in.Efficiency, 0, 100) +
		w.FeeOptimization*feeOpt +
		w.Utilization*clamp(in.Utilization, 0, 100) +
		w.InverseRisk*(100-clamp(in.RiskScore, 0, 100)) +
		w.Performance*performance
	health = clamp(health, 0, 100)

	hs := HealthScore{
		At:              at,
		PositionID:      positionID,
		Inputs:          in,
		FeeOptimization: feeOpt,
		Performance:     performance,
		Health:          health,
		Risk:            in.RiskScore,
	}
	hs.HealthSeverity, _ = s.Health.Severity(health)
	hs.RiskSeverity, _ = s.Risk.Severity(in.RiskScore)
	return hs
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
