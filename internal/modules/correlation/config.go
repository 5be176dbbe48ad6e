package correlation

import (
	"fmt"
	"math"
)

// Weights blends the four correlation components into the overall correlation
type Weights struct {
	Price     float64 `yaml:"price" json:"price" validate:"gte=0,lte=1"`
	Return    float64 `yaml:"return" json:"return" validate:"gte=0,lte=1"`
	Volume    float64 `yaml:"volume" json:"volume" validate:"gte=0,lte=1"`
	Liquidity float64 `yaml:"liquidity" json:"liquidity" validate:"gte=0,lte=1"`
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Price + w.Return + w.Volume + w.Liquidity
}

// Config tunes the correlation and risk engine.
// The risk shares are modelling assumptions applied to total risk, not measurements.
type Config struct {
	Weights Weights `yaml:"weights" json:"weights"`

	// Price correlation baselines used when the market data has no pair correlation
	PriceOverlap  float64 `yaml:"price_overlap" json:"price_overlap" validate:"gte=-1,lte=1"`
	PriceBaseline float64 `yaml:"price_baseline" json:"price_baseline" validate:"gte=-1,lte=1"`

	VolumeOverlap  float64 `yaml:"volume_overlap" json:"volume_overlap" validate:"gte=-1,lte=1"`
	VolumeBaseline float64 `yaml:"volume_baseline" json:"volume_baseline" validate:"gte=-1,lte=1"`

	ClusterThreshold  float64 `yaml:"cluster_threshold" json:"cluster_threshold" validate:"gte=-1,lte=1"`
	DefaultVolatility float64 `yaml:"default_volatility" json:"default_volatility" validate:"gt=0"`

	SystematicShare  float64 `yaml:"systematic_share" json:"systematic_share" validate:"gte=0,lte=1"`
	CorrelationShare float64 `yaml:"correlation_share" json:"correlation_share" validate:"gte=0,lte=1"`
	LiquidityShare   float64 `yaml:"liquidity_share" json:"liquidity_share" validate:"gte=0,lte=1"`

	// Recommendation thresholds
	ConcentrationLimit    float64 `yaml:"concentration_limit" json:"concentration_limit" validate:"gt=0,lte=1"`
	TokenExposureLimit    float64 `yaml:"token_exposure_limit" json:"token_exposure_limit" validate:"gt=0,lte=1"`
	ClusterWeightLimit    float64 `yaml:"cluster_weight_limit" json:"cluster_weight_limit" validate:"gt=0,lte=1"`
	HighCorrelationMarker float64 `yaml:"high_correlation_marker" json:"high_correlation_marker" validate:"gte=-1,lte=1"`
}

// DefaultConfig returns the standard engine tuning
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Price:     0.4,
			Return:    0.3,
			Volume:    0.2,
			Liquidity: 0.1,
		},
		PriceOverlap:          0.75,
		PriceBaseline:         0.25,
		VolumeOverlap:         0.6,
		VolumeBaseline:        0.2,
		ClusterThreshold:      0.6,
		DefaultVolatility:     0.2,
		SystematicShare:       0.7,
		CorrelationShare:      0.2,
		LiquidityShare:        0.1,
		ConcentrationLimit:    0.35,
		TokenExposureLimit:    0.5,
		ClusterWeightLimit:    0.5,
		HighCorrelationMarker: 0.7,
	}
}

// Validate checks cross-field constraints that tags cannot express
func (c Config) Validate() error {
	if math.Abs(c.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("correlation weights must sum to 1, got %.4f", c.Weights.Sum())
	}
	if c.DefaultVolatility <= 0 {
		return fmt.Errorf("default volatility must be positive, got %.4f", c.DefaultVolatility)
	}
	for name, v := range map[string]float64{
		"systematic_share":  c.SystematicShare,
		"correlation_share": c.CorrelationShare,
		"liquidity_share":   c.LiquidityShare,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %.4f", name, v)
		}
	}
	return nil
}
