// Package optimization solves for target portfolio allocations and the actions to reach them.
package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/aristath/lpsentinel/internal/modules/correlation"
	"github.com/rs/zerolog"
)

// Service runs portfolio optimizations
type Service struct {
	settings Settings
	engine   *correlation.Engine
	cache    *cache.Cache[*Result]
	bus      *events.Bus
	metrics  *metrics.Registry
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates an optimization service. The correlation engine fills in
// correlations the market data does not supply; cache, bus and metrics may be nil.
func NewService(
	settings Settings,
	engine *correlation.Engine,
	resultCache *cache.Cache[*Result],
	bus *events.Bus,
	m *metrics.Registry,
	log zerolog.Logger,
) *Service {
	return &Service{
		settings: settings,
		engine:   engine,
		cache:    resultCache,
		bus:      bus,
		metrics:  m,
		now:      time.Now,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Settings returns the optimizer tuning
func (s *Service) Settings() Settings {
	return s.settings
}

// OptimizePortfolio solves for a target allocation under cfg. Results are cached per
// (owner, config, position set, market data); forceRefresh recomputes.
func (s *Service) OptimizePortfolio(
	ctx context.Context,
	snap *domain.Snapshot,
	market *domain.MarketData,
	cfg Config,
	ownerKey string,
	forceRefresh bool,
) (result *Result, err error) {
	timer := s.metrics.StartOperation("optimize_portfolio")
	defer func() { timer.Stop(err) }()

	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := market.Validate(); err != nil {
		return nil, err
	}

	if s.cache == nil {
		result, err = s.Optimize(snap, market, cfg, ownerKey)
	} else {
		var key string
		key, err = cache.Fingerprint("optimization", ownerKey, cfg, snap, market, s.settings)
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint optimization input: %w", err)
		}
		var cached bool
		result, cached, err = s.cache.GetOrCompute(ctx, key, forceRefresh, func(context.Context) (*Result, error) {
			return s.Optimize(snap, market, cfg, ownerKey)
		})
		if err == nil {
			out := *result
			out.Cached = cached
			result = &out
		}
	}
	if err != nil {
		return nil, err
	}

	s.bus.Publish("optimization", &events.OptimizationCompletedData{
		OwnerKey:  ownerKey,
		Objective: string(result.Objective),
		Status:    string(result.Status),
		Actions:   len(result.Actions),
		Cached:    result.Cached,
	})
	return result, nil
}

// Optimize computes a result without touching the cache. cfg must already be normalized.
func (s *Service) Optimize(snap *domain.Snapshot, market *domain.MarketData, cfg Config, ownerKey string) (*Result, error) {
	result := &Result{
		GeneratedAt: s.now(),
		OwnerKey:    ownerKey,
		Objective:   cfg.Objective,
		Status:      StatusSuccess,
		Weights:     make([]PortfolioWeight, 0),
		Actions:     make([]Action, 0),
		Warnings:    make([]Warning, 0),
		Plan:        ImplementationPlan{Phases: make([]Phase, 0), Timeline: "No changes required"},
	}

	if snap.Len() == 0 {
		result.Status = StatusPartial
		result.Warnings = append(result.Warnings, Warning{Code: WarnNoPositions, Message: "snapshot holds no positions"})
		return result, nil
	}

	p, err := s.buildProblem(snap, market, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build optimization problem: %w", err)
	}

	target, warnings := s.allocate(p, cfg)
	result.Warnings = append(result.Warnings, warnings...)
	if len(result.Warnings) > 0 {
		result.Status = StatusPartial
	}

	result.Weights = buildWeights(p, target, cfg.Objective)
	result.Actions = buildActions(p, target, cfg)
	result.Metrics = buildMetrics(p, target, result.Actions)
	result.Sensitivity = s.sensitivity(p, cfg, target, result.Metrics)
	result.Scenarios = s.scenarios(p, cfg, target)
	result.Plan = plan(result.Actions)

	s.log.Info().
		Str("owner", ownerKey).
		Str("objective", string(cfg.Objective)).
		Int("positions", len(p.ids)).
		Int("actions", len(result.Actions)).
		Int("warnings", len(result.Warnings)).
		Float64("optimized_return", result.Metrics.OptimizedReturn).
		Float64("optimized_risk", result.Metrics.OptimizedRisk).
		Msg("Portfolio optimized")

	return result, nil
}

// allocate solves the objective and fits the weights to every constraint:
// bounds, the position count limit, then token and pool exposure caps
func (s *Service) allocate(p *problem, cfg Config) ([]float64, []Warning) {
	raw, warnings := s.solve(cfg.Objective, p)

	// 1. Fit to per-position bounds
	w := projectToBounds(raw, p.lo, p.hi)

	// 2. Keep only the largest allocations
	w, hi, w2 := applyMaxPositions(w, p, cfg.Constraints.MaxPositions)
	warnings = append(warnings, w2...)

	// 3. Exposure caps
	caps := buildGroupCaps(p, cfg.Constraints)
	warnings = append(warnings, applyGroupCaps(w, p.lo, hi, caps)...)

	// 4. Minimum count can only be reported
	if held := countHeld(w); cfg.Constraints.MinPositions > 0 && held < cfg.Constraints.MinPositions {
		warnings = append(warnings, Warning{
			Code:    WarnMinPositions,
			Message: fmt.Sprintf("allocation holds %d positions, fewer than the minimum %d", held, cfg.Constraints.MinPositions),
		})
	}
	return w, warnings
}
