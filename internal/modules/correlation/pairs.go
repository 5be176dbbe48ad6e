package correlation

import (
	"math"
	"sort"
	"strings"

	"github.com/aristath/lpsentinel/internal/domain"
)

// computePair derives the correlation record for slots i < j.
// weights and vols are indexed by slot.
func (e *Engine) computePair(snap *domain.Snapshot, market *domain.MarketData, weights, vols []float64, i, j int) Pair {
	a, b := snap.Positions[i], snap.Positions[j]
	overlap := a.SharesTokenWith(b)

	pair := Pair{
		PositionA:    a.ID,
		PositionB:    b.ID,
		SharedTokens: sharedTokens(a, b),
	}

	// 1. Price: supplied pair correlation, else overlap baselines
	if corr, ok := market.Correlation(a.ID, b.ID); ok {
		pair.PriceCorrelation = corr
		pair.MarketSupplied = true
	} else if overlap {
		pair.PriceCorrelation = e.cfg.PriceOverlap
	} else {
		pair.PriceCorrelation = e.cfg.PriceBaseline
	}

	// 2. Return: similarity of realised PnL percentages
	pnlGap := math.Abs(snap.Analytics[i].PnL.Percent - snap.Analytics[j].PnL.Percent)
	pair.ReturnCorrelation = math.Max(0, 1-pnlGap/100)

	// 3. Volume
	if overlap {
		pair.VolumeCorrelation = e.cfg.VolumeOverlap
	} else {
		pair.VolumeCorrelation = e.cfg.VolumeBaseline
	}

	// 4. Liquidity: similarity of position sizes
	pair.LiquidityCorrelation = 0.25 + 0.5*sizeRatio(a.LiquidityAmount, b.LiquidityAmount)

	w := e.cfg.Weights
	overall := w.Price*pair.PriceCorrelation +
		w.Return*pair.ReturnCorrelation +
		w.Volume*pair.VolumeCorrelation +
		w.Liquidity*pair.LiquidityCorrelation
	pair.OverallCorrelation = clamp(overall, -1, 1)

	// Cross term of portfolio variance attributable to this pair
	pair.RiskContribution = 2 * weights[i] * weights[j] * vols[i] * vols[j] * pair.OverallCorrelation
	pair.DiversificationBenefit = 1 - math.Max(0, pair.OverallCorrelation)

	return pair
}

// sizeRatio returns min/max of two non-negative sizes; two empty positions are identical
func sizeRatio(a, b float64) float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	if hi <= 0 {
		return 1
	}
	return lo / hi
}

func sharedTokens(a, b domain.Position) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, x := range a.Symbols() {
		for _, y := range b.Symbols() {
			if strings.EqualFold(x, y) {
				key := strings.ToUpper(x)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					out = append(out, key)
				}
			}
		}
	}
	sort.Strings(out)
	return out
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
