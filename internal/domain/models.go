// Package domain provides the core position, snapshot and market data models.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Token describes one side of a liquidity position
type Token struct {
	Symbol   string  `json:"symbol" msgpack:"symbol" validate:"required"`
	Decimals int     `json:"decimals" msgpack:"decimals" validate:"gte=0"`
	PriceUSD float64 `json:"price_usd" msgpack:"price_usd" validate:"gte=0"`
}

// TokenAmounts holds a quantity per token of the pair
type TokenAmounts struct {
	X float64 `json:"x" msgpack:"x" validate:"gte=0"`
	Y float64 `json:"y" msgpack:"y" validate:"gte=0"`
}

// Position is an immutable snapshot of a liquidity position in a pool
type Position struct {
	CreatedAt       time.Time    `json:"created_at" msgpack:"created_at"`
	LastUpdated     time.Time    `json:"last_updated" msgpack:"last_updated"`
	ID              string       `json:"id" msgpack:"id" validate:"required"`
	PoolID          string       `json:"pool_id" msgpack:"pool_id" validate:"required"`
	TokenX          Token        `json:"token_x" msgpack:"token_x"`
	TokenY          Token        `json:"token_y" msgpack:"token_y"`
	FeesEarned      TokenAmounts `json:"fees_earned" msgpack:"fees_earned"`
	LiquidityAmount float64      `json:"liquidity_amount" msgpack:"liquidity_amount" validate:"gte=0"`
	IsActive        bool         `json:"is_active" msgpack:"is_active"`
}

// Symbols returns the token symbols of the pair
func (p Position) Symbols() []string {
	return []string{p.TokenX.Symbol, p.TokenY.Symbol}
}

// SharesTokenWith reports whether two positions have at least one token in common
func (p Position) SharesTokenWith(other Position) bool {
	for _, a := range p.Symbols() {
		for _, b := range other.Symbols() {
			if strings.EqualFold(a, b) {
				return true
			}
		}
	}
	return false
}

// FeesUSD values the earned fees at current token prices
func (p Position) FeesUSD() float64 {
	return p.FeesEarned.X*p.TokenX.PriceUSD + p.FeesEarned.Y*p.TokenY.PriceUSD
}

// Amount is a USD amount paired with its percentage of the position value
type Amount struct {
	Amount  float64 `json:"amount" msgpack:"amount"`
	Percent float64 `json:"percent" msgpack:"percent"`
}

// PositionAnalytics holds the derived figures for a single position
type PositionAnalytics struct {
	PnL             Amount        `json:"pnl" msgpack:"pnl"`
	ImpermanentLoss Amount        `json:"impermanent_loss" msgpack:"impermanent_loss"`
	TotalValue      float64       `json:"total_value" msgpack:"total_value" validate:"gte=0"`
	FeesEarnedUSD   float64       `json:"fees_earned_usd" msgpack:"fees_earned_usd" validate:"gte=0"`
	APR             float64       `json:"apr" msgpack:"apr"` // percent
	Duration        time.Duration `json:"duration" msgpack:"duration"`
}

// Snapshot is the engine's input: positions and their analytics as parallel arrays.
// Analytics[i] describes Positions[i].
type Snapshot struct {
	AsOf      time.Time           `json:"as_of" msgpack:"as_of"`
	OwnerKey  string              `json:"owner_key" msgpack:"owner_key"`
	Positions []Position          `json:"positions" msgpack:"positions" validate:"dive"`
	Analytics []PositionAnalytics `json:"analytics" msgpack:"analytics" validate:"dive"`
}

// Validate checks structural integrity of the snapshot
func (s *Snapshot) Validate() error {
	if s == nil {
		return NewValidationError("snapshot", "snapshot is required")
	}
	if len(s.Positions) != len(s.Analytics) {
		return NewValidationError("analytics",
			"expected %d analytics entries, got %d", len(s.Positions), len(s.Analytics))
	}
	if err := ValidateStruct(s); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(s.Positions))
	for i, p := range s.Positions {
		if _, dup := seen[p.ID]; dup {
			return NewValidationError(fmt.Sprintf("positions[%d].id", i), "duplicate position id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Len returns the number of positions
func (s *Snapshot) Len() int {
	return len(s.Positions)
}

// Index returns the slot of a position id, or -1
func (s *Snapshot) Index(positionID string) int {
	for i, p := range s.Positions {
		if p.ID == positionID {
			return i
		}
	}
	return -1
}

// Find returns a position and its analytics by id
func (s *Snapshot) Find(positionID string) (Position, PositionAnalytics, error) {
	i := s.Index(positionID)
	if i < 0 {
		return Position{}, PositionAnalytics{}, &NotFoundError{Kind: "position", ID: positionID}
	}
	return s.Positions[i], s.Analytics[i], nil
}

// TotalValue sums the USD value across positions
func (s *Snapshot) TotalValue() float64 {
	total := 0.0
	for _, a := range s.Analytics {
		total += a.TotalValue
	}
	return total
}

// Weights returns value weights per slot. An all-zero portfolio gets equal weights.
func (s *Snapshot) Weights() []float64 {
	n := len(s.Analytics)
	weights := make([]float64, n)
	if n == 0 {
		return weights
	}
	total := s.TotalValue()
	for i, a := range s.Analytics {
		if total > 0 {
			weights[i] = a.TotalValue / total
		} else {
			weights[i] = 1.0 / float64(n)
		}
	}
	return weights
}

// PositionIDs returns the ids in sorted order, used for cache fingerprints
func (s *Snapshot) PositionIDs() []string {
	ids := make([]string, len(s.Positions))
	for i, p := range s.Positions {
		ids[i] = p.ID
	}
	sort.Strings(ids)
	return ids
}

// Subset returns a snapshot restricted to the given ids, keeping slot order
func (s *Snapshot) Subset(ids []string) *Snapshot {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := &Snapshot{AsOf: s.AsOf, OwnerKey: s.OwnerKey}
	for i, p := range s.Positions {
		if _, ok := want[p.ID]; ok {
			out.Positions = append(out.Positions, p)
			out.Analytics = append(out.Analytics, s.Analytics[i])
		}
	}
	return out
}
