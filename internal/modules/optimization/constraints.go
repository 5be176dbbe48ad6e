package optimization

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aristath/lpsentinel/internal/domain"
)

const weightTolerance = 1e-9

// weightBounds resolves per-position bounds and checks that a feasible allocation exists
func weightBounds(ids []string, c Constraints) ([]float64, []float64, error) {
	n := len(ids)
	lo := make([]float64, n)
	hi := make([]float64, n)
	sumLo, sumHi := 0.0, 0.0

	for i, id := range ids {
		lo[i], hi[i] = c.MinAllocation, c.MaxAllocation
		if b, ok := c.PositionBounds[id]; ok {
			lo[i], hi[i] = b.Min, b.Max
		}
		if lo[i] > hi[i] {
			return nil, nil, domain.NewValidationError(fmt.Sprintf("constraints.position_bounds[%s]", id),
				"min %.4f exceeds max %.4f", lo[i], hi[i])
		}
		sumLo += lo[i]
		sumHi += hi[i]
	}

	if n > 0 && sumLo > 1+weightTolerance {
		return nil, nil, domain.NewValidationError("constraints",
			"minimum allocations sum to %.4f, above 1", sumLo)
	}
	if n > 0 && sumHi < 1-weightTolerance {
		return nil, nil, domain.NewValidationError("constraints",
			"maximum allocations sum to %.4f, below 1", sumHi)
	}
	return lo, hi, nil
}

// projectToBounds returns the Euclidean projection of v onto
// {w : sum(w) = 1, lo <= w <= hi}. It finds the shift tau with
// sum(clamp(v - tau, lo, hi)) = 1 by bisection; bounds must be feasible.
func projectToBounds(v, lo, hi []float64) []float64 {
	n := len(v)
	w := make([]float64, n)
	if n == 0 {
		return w
	}

	shifted := func(tau float64) float64 {
		sum := 0.0
		for i := range v {
			w[i] = clamp(v[i]-tau, lo[i], hi[i])
			sum += w[i]
		}
		return sum
	}

	// At tauLo every weight sits at its upper bound, at tauHi at its lower bound
	tauLo, tauHi := math.Inf(1), math.Inf(-1)
	for i := range v {
		tauLo = math.Min(tauLo, v[i]-hi[i])
		tauHi = math.Max(tauHi, v[i]-lo[i])
	}

	for iter := 0; iter < 200 && tauHi-tauLo > 1e-15; iter++ {
		mid := (tauLo + tauHi) / 2
		if shifted(mid) > 1 {
			tauLo = mid
		} else {
			tauHi = mid
		}
	}
	shifted((tauLo + tauHi) / 2)
	repairSum(w, lo, hi)
	return w
}

// repairSum pushes the floating point residual of sum(w)-1 into coordinates with room
func repairSum(w, lo, hi []float64) {
	residual := 1.0
	for _, x := range w {
		residual -= x
	}
	for i := range w {
		if math.Abs(residual) <= 1e-15 {
			return
		}
		if residual > 0 {
			add := math.Min(residual, hi[i]-w[i])
			w[i] += add
			residual -= add
		} else {
			sub := math.Min(-residual, w[i]-lo[i])
			w[i] -= sub
			residual += sub
		}
	}
}

// groupCap is an exposure cap over a set of position slots.
// share[i] is the fraction of position i's weight that counts towards the group.
type groupCap struct {
	kind  string
	name  string
	cap   float64
	share map[int]float64
}

func (g groupCap) exposure(w []float64) float64 {
	e := 0.0
	for i, s := range g.share {
		e += w[i] * s
	}
	return e
}

// buildGroupCaps turns token and pool limits into group caps. A token counts half
// of the position's weight per side it appears on.
func buildGroupCaps(p *problem, c Constraints) []groupCap {
	var caps []groupCap

	tokens := make([]string, 0, len(c.MaxTokenExposure))
	for t := range c.MaxTokenExposure {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		g := groupCap{kind: "token", name: token, cap: c.MaxTokenExposure[token], share: make(map[int]float64)}
		for i, pair := range p.tokens {
			for _, sym := range pair {
				if strings.EqualFold(sym, token) {
					g.share[i] += 0.5
				}
			}
		}
		if len(g.share) > 0 {
			caps = append(caps, g)
		}
	}

	pools := make([]string, 0, len(c.MaxPoolExposure))
	for pool := range c.MaxPoolExposure {
		pools = append(pools, pool)
	}
	sort.Strings(pools)
	for _, pool := range pools {
		g := groupCap{kind: "pool", name: pool, cap: c.MaxPoolExposure[pool], share: make(map[int]float64)}
		for i, id := range p.pools {
			if id == pool {
				g.share[i] = 1
			}
		}
		if len(g.share) > 0 {
			caps = append(caps, g)
		}
	}
	return caps
}

// applyGroupCaps scales over-exposed groups down and hands the freed weight to
// positions outside the group, within their bounds. Unresolvable caps become warnings.
func applyGroupCaps(w, lo, hi []float64, caps []groupCap) []Warning {
	for pass := 0; pass < 25; pass++ {
		changed := false
		for _, g := range caps {
			exposure := g.exposure(w)
			if exposure <= g.cap+weightTolerance || exposure <= 0 {
				continue
			}

			// 1. Shrink members towards their lower bounds
			factor := g.cap / exposure
			freed := 0.0
			reduced := make(map[int]float64, len(g.share))
			for i := range g.share {
				target := math.Max(lo[i], w[i]*factor)
				reduced[i] = w[i] - target
				freed += reduced[i]
				w[i] = target
			}
			if freed <= weightTolerance {
				continue
			}

			// 2. Hand freed weight to non-members with room
			room := 0.0
			for i := range w {
				if _, member := g.share[i]; !member {
					room += math.Max(0, hi[i]-w[i])
				}
			}
			placed := math.Min(freed, room)
			if room > 0 {
				for i := range w {
					if _, member := g.share[i]; !member {
						w[i] += placed * math.Max(0, hi[i]-w[i]) / room
					}
				}
			}

			// 3. Whatever could not be placed goes back to the members
			if leftover := freed - placed; leftover > 0 {
				for i, r := range reduced {
					w[i] += leftover * r / freed
				}
			}
			if placed > weightTolerance {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	repairSum(w, lo, hi)

	var warnings []Warning
	for _, g := range caps {
		if e := g.exposure(w); e > g.cap+1e-6 {
			code := WarnTokenExposure
			if g.kind == "pool" {
				code = WarnPoolExposure
			}
			warnings = append(warnings, Warning{
				Code:    code,
				Message: fmt.Sprintf("%s %s exposure %.4f exceeds cap %.4f", g.kind, g.name, e, g.cap),
			})
		}
	}
	return warnings
}

// applyMaxPositions keeps the largest allocations and re-projects onto the reduced set.
// It returns the weights and the upper bounds in force afterwards.
func applyMaxPositions(w []float64, p *problem, maxPositions int) ([]float64, []float64, []Warning) {
	if maxPositions <= 0 || countHeld(w) <= maxPositions {
		return w, p.hi, nil
	}

	order := make([]int, len(w))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return w[order[a]] > w[order[b]] })

	hi := append([]float64(nil), p.hi...)
	sumHi, sumLo := 0.0, 0.0
	for rank, i := range order {
		if rank >= maxPositions {
			hi[i] = 0
		}
		sumHi += hi[i]
		sumLo += p.lo[i]
	}
	for i := range hi {
		if hi[i] < p.lo[i] || sumHi < 1-weightTolerance || sumLo > 1+weightTolerance {
			return w, p.hi, []Warning{{
				Code:    WarnMaxPositions,
				Message: fmt.Sprintf("cannot reduce to %d positions within allocation bounds", maxPositions),
			}}
		}
	}
	return projectToBounds(w, p.lo, hi), hi, nil
}

func countHeld(w []float64) int {
	n := 0
	for _, x := range w {
		if x > 1e-6 {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
