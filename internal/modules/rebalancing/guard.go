package rebalancing

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GuardResult is the verdict of the execution constraints for one position
type GuardResult struct {
	Mode       Action   `json:"mode"`
	Violations []string `json:"violations"`
	Allowed    bool     `json:"allowed"`
}

// Guard enforces rebalance frequency, time windows and emergency stops.
// It keeps one limiter, a rolling 24h rebalance log and the last rebalance time per
// position. The last rebalance time outlives the log so intervals longer than a day hold.
type Guard struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	recent   map[string][]time.Time
	last     map[string]time.Time
}

// NewGuard creates an empty guard
func NewGuard() *Guard {
	return &Guard{
		limiters: make(map[string]*rate.Limiter),
		recent:   make(map[string][]time.Time),
		last:     make(map[string]time.Time),
	}
}

// Check evaluates the constraints without consuming anything
func (g *Guard) Check(positionID string, m PositionMetrics, c Constraints, now time.Time) GuardResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := GuardResult{Mode: ActionRebalance, Violations: make([]string, 0), Allowed: true}
	block := func(format string, args ...interface{}) {
		res.Allowed = false
		res.Mode = ActionNoAction
		res.Violations = append(res.Violations, fmt.Sprintf(format, args...))
	}

	// 1. Frequency
	recent := g.prune(positionID, now)
	if c.MaxRebalancesPerDay > 0 && len(recent) >= c.MaxRebalancesPerDay {
		block("%d rebalances in the last 24h reaches the daily limit of %d", len(recent), c.MaxRebalancesPerDay)
	}
	if last, ok := g.last[positionID]; ok && c.MinTimeBetween > 0 {
		if lim := g.limiter(positionID, c.MinTimeBetween); now.Sub(last) < c.MinTimeBetween || lim.TokensAt(now) < 1 {
			block("last rebalance %s ago is within the minimum interval %s", now.Sub(last).Round(time.Second), c.MinTimeBetween)
		}
	}

	// 2. Time windows
	if len(c.AllowedWindows) > 0 {
		inside := false
		for _, w := range c.AllowedWindows {
			if w.Contains(now) {
				inside = true
				break
			}
		}
		if !inside {
			block("%s UTC is outside the allowed execution windows", now.UTC().Format("15:04"))
		}
	}
	if !res.Allowed {
		return res
	}

	// 3. Emergency stops
	var stops []string
	s := c.EmergencyStops
	if s.MinPnLPct < 0 && m.PnLPct < s.MinPnLPct {
		stops = append(stops, fmt.Sprintf("pnl %.1f%% below emergency stop %.1f%%", m.PnLPct, s.MinPnLPct))
	}
	if s.MaxILPct > 0 && m.ILPct > s.MaxILPct {
		stops = append(stops, fmt.Sprintf("impermanent loss %.1f%% above emergency stop %.1f%%", m.ILPct, s.MaxILPct))
	}
	if s.MaxVolatility > 0 && m.Volatility > s.MaxVolatility {
		stops = append(stops, fmt.Sprintf("volatility %.2f above emergency stop %.2f", m.Volatility, s.MaxVolatility))
	}
	if len(stops) > 0 {
		res.Violations = append(res.Violations, stops...)
		if c.ConservativeFallback {
			res.Mode = ActionConservative
		} else {
			res.Allowed = false
			res.Mode = ActionNoAction
		}
	}
	return res
}

// Record logs a completed rebalance for a position
func (g *Guard) Record(positionID string, minInterval time.Duration, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.recent[positionID] = append(g.prune(positionID, at), at)
	if at.After(g.last[positionID]) {
		g.last[positionID] = at
	}
	if minInterval > 0 {
		g.limiter(positionID, minInterval).AllowN(at, 1)
	}
}

// LastRebalance returns the time of the most recent recorded rebalance
func (g *Guard) LastRebalance(positionID string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.last[positionID]
	return last, ok
}

// prune drops log entries older than 24h. Callers hold g.mu.
func (g *Guard) prune(positionID string, now time.Time) []time.Time {
	cutoff := now.Add(-24 * time.Hour)
	kept := g.recent[positionID][:0]
	for _, t := range g.recent[positionID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.recent[positionID] = kept
	return kept
}

// limiter returns the position's limiter, replacing it when the interval changed.
// Callers hold g.mu.
func (g *Guard) limiter(positionID string, interval time.Duration) *rate.Limiter {
	lim, ok := g.limiters[positionID]
	if !ok || lim.Limit() != rate.Every(interval) {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		g.limiters[positionID] = lim
	}
	return lim
}
