package monitoring

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// History keeps a bounded window of health samples per position
type History struct {
	mu       sync.RWMutex
	capacity int
	records  map[string][]Record
	latest   map[string]HealthScore
}

// NewHistory creates a history keeping capacity samples per position
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultSettings().HistorySize
	}
	return &History{
		capacity: capacity,
		records:  make(map[string][]Record),
		latest:   make(map[string]HealthScore),
	}
}

// Add appends a score, dropping the oldest sample when the window is full
func (h *History) Add(hs HealthScore) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recs := append(h.records[hs.PositionID], Record{At: hs.At, Health: hs.Health, Risk: hs.Risk})
	if over := len(recs) - h.capacity; over > 0 {
		recs = append([]Record(nil), recs[over:]...)
	}
	h.records[hs.PositionID] = recs
	h.latest[hs.PositionID] = hs
}

// Records returns a copy of a position's samples, oldest first
func (h *History) Records(positionID string) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Record(nil), h.records[positionID]...)
}

// Aggregate summarises a position's window. ok is false when nothing was recorded.
func (h *History) Aggregate(positionID string) (Aggregate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	recs := h.records[positionID]
	if len(recs) == 0 {
		return Aggregate{}, false
	}

	health := make([]float64, len(recs))
	risk := make([]float64, len(recs))
	for i, r := range recs {
		health[i] = r.Health
		risk[i] = r.Risk
	}

	agg := Aggregate{
		PositionID:    positionID,
		Samples:       len(recs),
		AverageHealth: stat.Mean(health, nil),
		AverageRisk:   stat.Mean(risk, nil),
		Stability:     100,
	}
	if len(health) > 1 {
		agg.Stability = clamp(100-stat.StdDev(health, nil), 0, 100)
	}
	latest := h.latest[positionID]
	agg.Latest = &latest
	return agg, true
}
