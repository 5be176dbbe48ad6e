package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the persistence contract shared by Repository and MemoryStore
type Store interface {
	domain.PositionSource
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	DeleteSnapshot(ctx context.Context, ownerKey string) error
	Owners(ctx context.Context) ([]string, error)
}

// Holding is one position line of a portfolio summary
type Holding struct {
	PositionID string  `json:"position_id"`
	PoolID     string  `json:"pool_id"`
	Pair       string  `json:"pair"`
	Value      float64 `json:"value"`
	Weight     float64 `json:"weight"`
	PnLPercent float64 `json:"pnl_percent"`
	APR        float64 `json:"apr"`
	IsActive   bool    `json:"is_active"`
}

// Summary describes a stored snapshot
type Summary struct {
	AsOf          time.Time          `json:"as_of"`
	OwnerKey      string             `json:"owner_key"`
	Positions     int                `json:"positions"`
	ActiveCount   int                `json:"active_count"`
	TotalValue    float64            `json:"total_value"`
	TotalPnL      float64            `json:"total_pnl"`
	TotalFees     float64            `json:"total_fees"`
	WeightedAPR   float64            `json:"weighted_apr"`
	TokenExposure map[string]float64 `json:"token_exposure"`
	Holdings      []Holding          `json:"holdings"`
}

// Service manages owner snapshots
type Service struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		log:   log.With().Str("service", "portfolio").Logger(),
	}
}

// SetClock overrides the time source (tests)
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Snapshot implements domain.PositionSource
func (s *Service) Snapshot(ctx context.Context, ownerKey string) (*domain.Snapshot, error) {
	return s.store.Snapshot(ctx, ownerKey)
}

// SaveSnapshot stores a snapshot for ownerKey. The body's owner must match or be empty.
func (s *Service) SaveSnapshot(ctx context.Context, ownerKey string, snap *domain.Snapshot) error {
	if ownerKey == "" {
		return domain.NewValidationError("owner_key", "owner key is required")
	}
	if snap == nil {
		return domain.NewValidationError("snapshot", "snapshot is required")
	}
	if snap.OwnerKey == "" {
		snap.OwnerKey = ownerKey
	}
	if snap.OwnerKey != ownerKey {
		return domain.NewValidationError("owner_key", "snapshot belongs to %q, not %q", snap.OwnerKey, ownerKey)
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = s.now()
	}

	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.log.Info().
		Str("owner", ownerKey).
		Int("positions", snap.Len()).
		Float64("total_value", snap.TotalValue()).
		Msg("Snapshot stored")
	return nil
}

// DeleteSnapshot removes an owner's snapshot
func (s *Service) DeleteSnapshot(ctx context.Context, ownerKey string) error {
	if _, err := s.store.Snapshot(ctx, ownerKey); err != nil {
		return err
	}
	if err := s.store.DeleteSnapshot(ctx, ownerKey); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Owners lists owners with stored snapshots
func (s *Service) Owners(ctx context.Context) ([]string, error) {
	return s.store.Owners(ctx)
}

// GetSummary totals the owner's stored snapshot
func (s *Service) GetSummary(ctx context.Context, ownerKey string) (*Summary, error) {
	snap, err := s.store.Snapshot(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	return Summarize(snap), nil
}

// Summarize computes totals, value weights and token exposure for a snapshot.
// Token exposure splits each position's weight evenly across its two tokens.
func Summarize(snap *domain.Snapshot) *Summary {
	weights := snap.Weights()
	sum := &Summary{
		AsOf:          snap.AsOf,
		OwnerKey:      snap.OwnerKey,
		Positions:     snap.Len(),
		TokenExposure: make(map[string]float64),
		Holdings:      make([]Holding, 0, snap.Len()),
	}

	for i, p := range snap.Positions {
		a := snap.Analytics[i]
		if p.IsActive {
			sum.ActiveCount++
		}
		sum.TotalValue += a.TotalValue
		sum.TotalPnL += a.PnL.Amount
		sum.TotalFees += a.FeesEarnedUSD
		sum.WeightedAPR += weights[i] * a.APR

		sum.TokenExposure[strings.ToUpper(p.TokenX.Symbol)] += weights[i] / 2
		sum.TokenExposure[strings.ToUpper(p.TokenY.Symbol)] += weights[i] / 2

		sum.Holdings = append(sum.Holdings, Holding{
			PositionID: p.ID,
			PoolID:     p.PoolID,
			Pair:       p.TokenX.Symbol + "/" + p.TokenY.Symbol,
			Value:      a.TotalValue,
			Weight:     weights[i],
			PnLPercent: a.PnL.Percent,
			APR:        a.APR,
			IsActive:   p.IsActive,
		})
	}

	sort.SliceStable(sum.Holdings, func(i, j int) bool {
		return sum.Holdings[i].Value > sum.Holdings[j].Value
	})
	return sum
}
