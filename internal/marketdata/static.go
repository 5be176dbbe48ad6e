// Package marketdata provides reference MarketDataProvider adapters.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
)

// StaticProvider serves estimates registered by the caller
type StaticProvider struct {
	mu           sync.RWMutex
	positions    map[string]domain.PositionMarketData
	correlations map[domain.PairKey]float64
	riskFreeRate float64
	now          func() time.Time
}

// NewStaticProvider creates an empty provider
func NewStaticProvider(riskFreeRate float64) *StaticProvider {
	return &StaticProvider{
		positions:    make(map[string]domain.PositionMarketData),
		correlations: make(map[domain.PairKey]float64),
		riskFreeRate: riskFreeRate,
		now:          time.Now,
	}
}

// SetClock overrides the time source (tests)
func (p *StaticProvider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// SetPosition registers estimates for a position id
func (p *StaticProvider) SetPosition(id string, md domain.PositionMarketData) error {
	if id == "" {
		return domain.NewValidationError("position_id", "position id is required")
	}
	if err := domain.ValidateStruct(md); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[id] = md
	return nil
}

// SetCorrelation registers a pair correlation
func (p *StaticProvider) SetCorrelation(a, b string, corr float64) error {
	if a == "" || b == "" || a == b {
		return domain.NewValidationError("correlations", "a pair needs two distinct ids")
	}
	if corr < -1 || corr > 1 {
		return domain.NewValidationError("correlations", "correlation %.3f outside [-1, 1]", corr)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.correlations[domain.NewPairKey(a, b)] = corr
	return nil
}

// Load replaces every estimate with the contents of md
func (p *StaticProvider) Load(md *domain.MarketData) error {
	if err := md.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = make(map[string]domain.PositionMarketData, len(md.Positions))
	for id, d := range md.Positions {
		p.positions[id] = d
	}
	p.correlations = make(map[domain.PairKey]float64, len(md.Correlations))
	for k, c := range md.Correlations {
		p.correlations[k] = c
	}
	p.riskFreeRate = md.RiskFreeRate
	return nil
}

// MarketData implements domain.MarketDataProvider.
// Only estimates for positions in the snapshot are returned.
func (p *StaticProvider) MarketData(_ context.Context, snap *domain.Snapshot) (*domain.MarketData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	md := domain.NewMarketData()
	md.AsOf = p.now()
	md.RiskFreeRate = p.riskFreeRate
	if snap == nil {
		return md, nil
	}

	for _, pos := range snap.Positions {
		if d, ok := p.positions[pos.ID]; ok {
			md.Positions[pos.ID] = d
		}
	}
	for i := 0; i < snap.Len(); i++ {
		for j := i + 1; j < snap.Len(); j++ {
			key := domain.NewPairKey(snap.Positions[i].ID, snap.Positions[j].ID)
			if c, ok := p.correlations[key]; ok {
				md.Correlations[key] = c
			}
		}
	}
	return md, nil
}
