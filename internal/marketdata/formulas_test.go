package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogReturns(t *testing.T) {
	r := LogReturns([]float64{100, 110, 121})
	assert.Len(t, r, 2)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.InDelta(t, math.Log(1.1), r[1], 1e-12)

	assert.Empty(t, LogReturns([]float64{100}))
	assert.Len(t, LogReturns([]float64{100, 0, 50, 55}), 1)
}

func TestStdDev(t *testing.T) {
	assert.InDelta(t, math.Sqrt(1.25), StdDev([]float64{1, 2, 3, 4}), 1e-9)
	assert.Zero(t, StdDev([]float64{0.5, 0.5, 0.5}))
	assert.Zero(t, StdDev([]float64{1}))
	assert.InDelta(t, math.Sqrt(1.25)*math.Sqrt(DaysPerYear), AnnualizedVolatility([]float64{1, 2, 3, 4}), 1e-9)
}

func TestAnnualizedReturn(t *testing.T) {
	assert.InDelta(t, 0.001*DaysPerYear, AnnualizedReturn([]float64{0.001, 0.002, 0}), 1e-12)
	assert.Zero(t, AnnualizedReturn(nil))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 3, 2, 5, 4}

	tests := []struct {
		name string
		y    []float64
		want float64
		ok   bool
	}{
		{"linear", []float64{3, 7, 5, 11, 9}, 1, true},
		{"inverse", []float64{-1, -3, -2, -5, -4}, -1, true},
		{"flat", []float64{2, 2, 2, 2, 2}, 0, false},
		{"too short", []float64{1, 2}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Correlation(x, tt.y)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	// Unequal lengths use the aligned tails
	got, ok := Correlation([]float64{9, 9, 1, 3, 2, 5, 4}, []float64{3, 7, 5, 11, 9})
	assert.True(t, ok)
	assert.InDelta(t, 1, got, 1e-9)
}
