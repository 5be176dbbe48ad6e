package marketdata

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// DaysPerYear annualises daily statistics. Pools trade every day.
const DaysPerYear = 365.0

// LogReturns converts a price series into daily log returns.
// Non-positive prices break the chain and are skipped.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	return returns
}

// StdDev is the population standard deviation of the whole series
func StdDev(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	// Use go-talib with a window spanning the series, the last value covers every point
	out := talib.StdDev(returns, len(returns), 1)
	last := out[len(out)-1]
	if math.IsNaN(last) || last < 0 {
		return 0
	}
	return last
}

// AnnualizedVolatility scales daily return dispersion to a year
func AnnualizedVolatility(returns []float64) float64 {
	return StdDev(returns) * math.Sqrt(DaysPerYear)
}

// AnnualizedReturn scales the mean daily log return to a year
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stat.Mean(returns, nil) * DaysPerYear
}

// Correlation is the Pearson correlation of the aligned tails of two series.
// The bool is false when there is not enough overlapping data or no variance.
func Correlation(x, y []float64) (float64, bool) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 3 {
		return 0, false
	}
	x, y = x[len(x)-n:], y[len(y)-n:]
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0, false
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, c)), true
}
