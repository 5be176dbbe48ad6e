package optimization

import (
	"math"
	"strings"

	"github.com/aristath/lpsentinel/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// problem is the numeric form of one optimization request, in snapshot slot order
type problem struct {
	ids        []string
	pools      []string
	tokens     [][]string
	mu         []float64
	vols       []float64
	feeYield   []float64
	current    []float64
	values     []float64
	lo         []float64
	hi         []float64
	corr       *mat.SymDense
	cov        *mat.SymDense
	totalValue float64
	riskFree   float64
	lambda     float64
}

// buildProblem assembles expected returns, volatilities and the covariance model.
// Expected return falls back to APR/100, volatility to the configured default, and
// pair correlation to the correlation engine's overall correlation.
func (s *Service) buildProblem(snap *domain.Snapshot, market *domain.MarketData, cfg Config) (*problem, error) {
	n := snap.Len()
	p := &problem{
		ids:        make([]string, n),
		pools:      make([]string, n),
		tokens:     make([][]string, n),
		mu:         make([]float64, n),
		vols:       make([]float64, n),
		feeYield:   make([]float64, n),
		values:     make([]float64, n),
		current:    snap.Weights(),
		totalValue: snap.TotalValue(),
		riskFree:   cfg.RiskFreeRate,
		lambda:     cfg.RiskAversion,
	}
	if p.riskFree == 0 {
		p.riskFree = market.RiskFree(0)
	}

	for i, pos := range snap.Positions {
		a := snap.Analytics[i]
		p.ids[i] = pos.ID
		p.pools[i] = pos.PoolID
		p.tokens[i] = []string{strings.ToUpper(pos.TokenX.Symbol), strings.ToUpper(pos.TokenY.Symbol)}
		p.values[i] = a.TotalValue

		if r, ok := market.ExpectedReturn(pos.ID); ok {
			p.mu[i] = r
		} else {
			p.mu[i] = a.APR / 100
		}
		p.vols[i] = market.VolatilityOr(pos.ID, s.settings.DefaultVolatility)
		if a.TotalValue > 0 {
			p.feeYield[i] = a.FeesEarnedUSD / a.TotalValue
		}
	}

	// Correlations: supplied pairs win, engine estimates fill the gaps
	var engineCorr *mat.SymDense
	if s.engine != nil && n > 1 {
		engineCorr = s.engine.CorrelationMatrix(snap, market)
	}
	p.corr = mat.NewSymDense(max(n, 1), nil)
	for i := 0; i < n; i++ {
		p.corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			rho, ok := market.Correlation(p.ids[i], p.ids[j])
			if !ok {
				rho = 0
				if engineCorr != nil {
					rho = engineCorr.At(i, j)
				}
			}
			p.corr.SetSym(i, j, rho)
		}
	}
	p.cov = covariance(p.vols, p.corr)

	lo, hi, err := weightBounds(p.ids, cfg.Constraints)
	if err != nil {
		return nil, err
	}
	p.lo, p.hi = lo, hi
	return p, nil
}

// covariance builds Σ_ij = σ_i σ_j ρ_ij
func covariance(vols []float64, corr *mat.SymDense) *mat.SymDense {
	n := len(vols)
	cov := mat.NewSymDense(max(n, 1), nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, vols[i]*vols[j]*corr.At(i, j))
		}
	}
	return cov
}

// withCorrelation returns a copy of p whose off-diagonal correlations are all rho
func (p *problem) withCorrelation(rho float64) *problem {
	n := len(p.ids)
	q := *p
	q.corr = mat.NewSymDense(max(n, 1), nil)
	for i := 0; i < n; i++ {
		q.corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			q.corr.SetSym(i, j, rho)
		}
	}
	q.cov = covariance(q.vols, q.corr)
	return &q
}

// withReturns returns a copy of p with transformed expected returns
func (p *problem) withReturns(f func(float64) float64) *problem {
	q := *p
	q.mu = make([]float64, len(p.mu))
	for i, r := range p.mu {
		q.mu[i] = f(r)
	}
	return &q
}

// withVolatilityScale returns a copy of p with volatilities scaled by k
func (p *problem) withVolatilityScale(k float64) *problem {
	q := *p
	q.vols = make([]float64, len(p.vols))
	for i, v := range p.vols {
		q.vols[i] = v * k
	}
	q.cov = covariance(q.vols, q.corr)
	return &q
}

// expectedReturn computes w'μ
func (p *problem) expectedReturn(w []float64) float64 {
	r := 0.0
	for i := range w {
		r += w[i] * p.mu[i]
	}
	return r
}

// risk computes sqrt(w'Σw)
func (p *problem) risk(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	v := mat.NewVecDense(len(w), append([]float64(nil), w...))
	variance := mat.Inner(v, p.cov, v)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// sharpe computes (w'μ - rf) / risk, zero when risk is zero
func (p *problem) sharpe(w []float64) float64 {
	r := p.risk(w)
	if r <= 0 {
		return 0
	}
	return (p.expectedReturn(w) - p.riskFree) / r
}
