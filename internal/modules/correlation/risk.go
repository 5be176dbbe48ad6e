package correlation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// decomposeRisk attributes portfolio risk to positions.
// marginal_i = vol_i * w_i, total = sqrt(sum marginal^2), component_i = marginal_i^2 / total,
// so components sum to total.
func (e *Engine) decomposeRisk(ids []string, weights, vols []float64, corr [][]float64) RiskDecomposition {
	n := len(ids)
	rd := RiskDecomposition{Contributions: make([]RiskContribution, 0, n)}
	if n == 0 {
		return rd
	}

	marginal := make([]float64, n)
	sumSq := 0.0
	for i := range ids {
		marginal[i] = vols[i] * weights[i]
		sumSq += marginal[i] * marginal[i]
	}
	rd.TotalRisk = math.Sqrt(sumSq)

	for i, id := range ids {
		c := RiskContribution{
			PositionID:   id,
			Weight:       weights[i],
			Volatility:   vols[i],
			MarginalRisk: marginal[i],
		}
		if rd.TotalRisk > 0 {
			c.ComponentRisk = marginal[i] * marginal[i] / rd.TotalRisk
			c.PercentOfRisk = c.ComponentRisk / rd.TotalRisk * 100
		}
		rd.Contributions = append(rd.Contributions, c)
	}

	rd.SystematicRisk = rd.TotalRisk * e.cfg.SystematicShare
	rd.IdiosyncraticRisk = rd.TotalRisk * (1 - e.cfg.SystematicShare)
	rd.CorrelationRisk = rd.TotalRisk * e.cfg.CorrelationShare
	rd.LiquidityRisk = rd.TotalRisk * e.cfg.LiquidityShare
	rd.ConcentrationRisk = herfindahl(weights)
	rd.PortfolioVolatility = portfolioVolatility(weights, vols, corr)

	return rd
}

// portfolioVolatility computes sqrt(w' Σ w) with Σ_ij = σ_i σ_j ρ_ij
func portfolioVolatility(weights, vols []float64, corr [][]float64) float64 {
	n := len(weights)
	if n == 0 {
		return 0
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			rho := 1.0
			if i != j {
				rho = corr[i][j]
			}
			cov.SetSym(i, j, vols[i]*vols[j]*rho)
		}
	}
	w := mat.NewVecDense(n, append([]float64(nil), weights...))
	variance := mat.Inner(w, cov, w)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func herfindahl(weights []float64) float64 {
	h := 0.0
	for _, w := range weights {
		h += w * w
	}
	return h
}
