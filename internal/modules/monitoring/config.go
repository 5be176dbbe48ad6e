package monitoring

import (
	"math"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
)

// DefaultIntervalMinutes is the monitoring timer period when none is given
const DefaultIntervalMinutes = 5

// HealthBands are upper bounds: a health score below a band has that severity
type HealthBands struct {
	Critical float64 `yaml:"critical" json:"critical" validate:"gte=0,lte=100"`
	High     float64 `yaml:"high" json:"high" validate:"gte=0,lte=100"`
	Medium   float64 `yaml:"medium" json:"medium" validate:"gte=0,lte=100"`
	Low      float64 `yaml:"low" json:"low" validate:"gte=0,lte=100"`
}

// RiskBands are lower bounds: a risk score at or above a band has that severity
type RiskBands struct {
	Critical float64 `yaml:"critical" json:"critical" validate:"gte=0,lte=100"`
	High     float64 `yaml:"high" json:"high" validate:"gte=0,lte=100"`
	Medium   float64 `yaml:"medium" json:"medium" validate:"gte=0,lte=100"`
	Low      float64 `yaml:"low" json:"low" validate:"gte=0,lte=100"`
}

// HealthWeights weight the health score components
type HealthWeights struct {
	Efficiency      float64 `yaml:"efficiency" json:"efficiency" validate:"gte=0,lte=1"`
	FeeOptimization float64 `yaml:"fee_optimization" json:"fee_optimization" validate:"gte=0,lte=1"`
	Utilization     float64 `yaml:"utilization" json:"utilization" validate:"gte=0,lte=1"`
	InverseRisk     float64 `yaml:"inverse_risk" json:"inverse_risk" validate:"gte=0,lte=1"`
	Performance     float64 `yaml:"performance" json:"performance" validate:"gte=0,lte=1"`
}

// Settings tunes the health monitor
type Settings struct {
	Health          HealthBands   `yaml:"health_bands" json:"health_bands"`
	Risk            RiskBands     `yaml:"risk_bands" json:"risk_bands"`
	Weights         HealthWeights `yaml:"weights" json:"weights"`
	HistorySize     int           `yaml:"history_size" json:"history_size" validate:"gt=0"`
	AlertRetention  int           `yaml:"alert_retention" json:"alert_retention" validate:"gt=0"`
	Concurrency     int           `yaml:"concurrency" json:"concurrency" validate:"gt=0"`
	BreakerFailures uint32        `yaml:"breaker_failures" json:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" json:"breaker_timeout" validate:"gt=0"`
}

// DefaultSettings returns the standard monitor tuning
func DefaultSettings() Settings {
	return Settings{
		Health: HealthBands{Critical: 30, High: 45, Medium: 60, Low: 70},
		Risk:   RiskBands{Critical: 85, High: 70, Medium: 55, Low: 40},
		Weights: HealthWeights{
			Efficiency:      0.25,
			FeeOptimization: 0.20,
			Utilization:     0.20,
			InverseRisk:     0.20,
			Performance:     0.15,
		},
		HistorySize:     288,
		AlertRetention:  1000,
		Concurrency:     8,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}
}

// Validate checks ranges, band ordering and that the weights sum to 1
func (s Settings) Validate() error {
	if err := domain.ValidateStruct(s); err != nil {
		return err
	}
	h := s.Health
	if !(h.Critical <= h.High && h.High <= h.Medium && h.Medium <= h.Low) {
		return domain.NewValidationError("health_bands", "bands must be ascending from critical to low")
	}
	r := s.Risk
	if !(r.Critical >= r.High && r.High >= r.Medium && r.Medium >= r.Low) {
		return domain.NewValidationError("risk_bands", "bands must be descending from critical to low")
	}
	w := s.Weights
	if sum := w.Efficiency + w.FeeOptimization + w.Utilization + w.InverseRisk + w.Performance; math.Abs(sum-1) > 1e-6 {
		return domain.NewValidationError("weights", "weights sum to %.4f, want 1", sum)
	}
	return nil
}

// Severity returns the band a health score falls in, or "" when healthy
func (b HealthBands) Severity(health float64) (Severity, float64) {
	switch {
	case health < b.Critical:
		return SeverityCritical, b.Critical
	case health < b.High:
		return SeverityHigh, b.High
	case health < b.Medium:
		return SeverityMedium, b.Medium
	case health < b.Low:
		return SeverityLow, b.Low
	}
	return "", b.Low
}

// Severity returns the band a risk score falls in, or "" when acceptable
func (b RiskBands) Severity(risk float64) (Severity, float64) {
	switch {
	case risk >= b.Critical:
		return SeverityCritical, b.Critical
	case risk >= b.High:
		return SeverityHigh, b.High
	case risk >= b.Medium:
		return SeverityMedium, b.Medium
	case risk >= b.Low:
		return SeverityLow, b.Low
	}
	return "", b.Low
}
