package optimization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// solve dispatches to the solver for the objective and returns raw weights plus
// any solver warnings. Weights are not yet fitted to bounds.
func (s *Service) solve(objective Objective, p *problem) ([]float64, []Warning) {
	switch objective {
	case ObjectiveMaximizeReturn:
		return maximizeReturn(p), nil
	case ObjectiveMinimizeRisk:
		return minimizeRisk(p, s.settings.MinRiskIterations), nil
	case ObjectiveMaximizeSharpe:
		scores := make([]float64, len(p.mu))
		for i, r := range p.mu {
			scores[i] = math.Max(0, r-p.riskFree)
		}
		return proportional(scores, "excess return over the risk-free rate")
	case ObjectiveMaximizeYield:
		scores := make([]float64, len(p.mu))
		for i := range p.mu {
			scores[i] = math.Max(0, p.feeYield[i]+0.5*p.mu[i])
		}
		return proportional(scores, "fee yield")
	default:
		return meanVariance(p, s.settings.GradientSteps, s.settings.GradientStepSize), nil
	}
}

// maximizeReturn solves max w'μ over the bounded simplex exactly: every position
// starts at its lower bound and the remaining capital fills the highest returns first.
// With default bounds this puts all capital in the single best position.
func maximizeReturn(p *problem) []float64 {
	n := len(p.mu)
	w := append([]float64(nil), p.lo...)
	remaining := 1.0
	for _, x := range w {
		remaining -= x
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return p.mu[order[a]] > p.mu[order[b]] })

	for _, i := range order {
		if remaining <= 0 {
			break
		}
		add := math.Min(p.hi[i]-w[i], remaining)
		w[i] += add
		remaining -= add
	}
	return w
}

// minimizeRisk solves min w'Σw over the bounded simplex by projected gradient
// descent with step 1/L, where L = 2·λmax(Σ) is the gradient's Lipschitz constant.
func minimizeRisk(p *problem, iterations int) []float64 {
	n := len(p.mu)
	w := projectToBounds(equalWeights(n), p.lo, p.hi)
	if n < 2 {
		return w
	}

	var eig mat.EigenSym
	if !eig.Factorize(p.cov, false) {
		return w
	}
	values := eig.Values(nil)
	lmax := 0.0
	for _, v := range values {
		lmax = math.Max(lmax, math.Abs(v))
	}
	if lmax <= 0 {
		return w
	}
	step := 1 / (2 * lmax)

	grad := mat.NewVecDense(n, nil)
	next := make([]float64, n)
	for iter := 0; iter < iterations; iter++ {
		grad.MulVec(p.cov, mat.NewVecDense(n, w))
		for i := range w {
			next[i] = w[i] - step*2*grad.AtVec(i)
		}
		projected := projectToBounds(next, p.lo, p.hi)

		delta := 0.0
		for i := range w {
			delta = math.Max(delta, math.Abs(projected[i]-w[i]))
		}
		w = projected
		if delta < 1e-12 {
			break
		}
	}
	return w
}

// meanVariance runs fixed-step gradient ascent on U(w) = w'μ - λ w'Σw from equal
// weights. Each step is clamped to the allocation bounds and renormalised.
func meanVariance(p *problem, steps int, stepSize float64) []float64 {
	n := len(p.mu)
	w := equalWeights(n)
	if n == 0 {
		return w
	}

	grad := mat.NewVecDense(n, nil)
	for k := 0; k < steps; k++ {
		grad.MulVec(p.cov, mat.NewVecDense(n, w))

		sum := 0.0
		for i := range w {
			g := p.mu[i] - 2*p.lambda*grad.AtVec(i)
			w[i] = clamp(w[i]+stepSize*g, p.lo[i], p.hi[i])
			sum += w[i]
		}
		if sum <= 0 {
			w = equalWeights(n)
			continue
		}
		for i := range w {
			w[i] /= sum
		}
	}
	return w
}

// proportional allocates in proportion to non-negative scores, falling back to
// equal weights when nothing scores above zero
func proportional(scores []float64, basis string) ([]float64, []Warning) {
	n := len(scores)
	total := 0.0
	for _, sc := range scores {
		total += sc
	}
	if total <= 0 {
		return equalWeights(n), []Warning{{
			Code:    WarnNoPositiveSet,
			Message: "no position has positive " + basis + "; using equal weights",
		}}
	}
	w := make([]float64, n)
	for i, sc := range scores {
		w[i] = sc / total
	}
	return w, nil
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}
