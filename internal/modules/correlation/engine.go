// Package correlation computes cross-position correlation, clustering and risk decomposition.
package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Engine analyses a snapshot of positions. It is pure over its inputs; results are
// memoised in an injected cache.
type Engine struct {
	cfg     Config
	cache   *cache.Cache[*Analytics]
	metrics *metrics.Registry
	now     func() time.Time
	log     zerolog.Logger
}

// NewEngine creates a correlation engine. cache and metrics may be nil.
func NewEngine(cfg Config, resultCache *cache.Cache[*Analytics], m *metrics.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		cache:   resultCache,
		metrics: m,
		now:     time.Now,
		log:     log.With().Str("component", "correlation_engine").Logger(),
	}
}

// Config returns the engine tuning
func (e *Engine) Config() Config {
	return e.cfg
}

// AnalyzeMultiplePositions returns the cross-position analytics for a snapshot.
// Results are cached per (owner, position set, market data, tuning); forceRefresh recomputes.
func (e *Engine) AnalyzeMultiplePositions(ctx context.Context, snap *domain.Snapshot, market *domain.MarketData, ownerKey string, forceRefresh bool) (result *Analytics, err error) {
	timer := e.metrics.StartOperation("analyze_multiple_positions")
	defer func() { timer.Stop(err) }()

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := market.Validate(); err != nil {
		return nil, err
	}

	if e.cache == nil {
		return e.Analyze(snap, market, ownerKey), nil
	}

	key, err := cache.Fingerprint("correlation", ownerKey, snap, market, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint analytics input: %w", err)
	}

	analytics, cached, err := e.cache.GetOrCompute(ctx, key, forceRefresh, func(context.Context) (*Analytics, error) {
		return e.Analyze(snap, market, ownerKey), nil
	})
	if err != nil {
		return nil, err
	}
	out := *analytics
	out.Cached = cached
	return &out, nil
}

// Analyze computes analytics without touching the cache
func (e *Engine) Analyze(snap *domain.Snapshot, market *domain.MarketData, ownerKey string) *Analytics {
	n := snap.Len()
	ids := make([]string, n)
	vols := make([]float64, n)
	for i, p := range snap.Positions {
		ids[i] = p.ID
		vols[i] = market.VolatilityOr(p.ID, e.cfg.DefaultVolatility)
	}
	weights := snap.Weights()

	// 1. Pairwise correlations (i < j only)
	corr := identity(n)
	pairs := make([]Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			p := e.computePair(snap, market, weights, vols, i, j)
			corr[i][j] = p.OverallCorrelation
			corr[j][i] = p.OverallCorrelation
			pairs = append(pairs, p)
		}
	}

	// 2. Clusters
	clusters := e.buildClusters(snap, weights, corr)

	// 3. Risk decomposition
	risk := e.decomposeRisk(ids, weights, vols, corr)

	// 4. Diversification and summary
	div := e.diversification(snap, weights, vols, pairs, risk)
	summary := summarize(snap, weights)

	analytics := &Analytics{
		GeneratedAt:     e.now(),
		OwnerKey:        ownerKey,
		PositionIDs:     ids,
		Pairs:           pairs,
		Clusters:        clusters,
		Risk:            risk,
		Diversification: div,
		Summary:         summary,
	}
	analytics.Recommendations = e.recommend(analytics)

	e.log.Debug().
		Str("owner", ownerKey).
		Int("positions", n).
		Int("pairs", len(pairs)).
		Int("clusters", len(clusters)).
		Float64("total_risk", risk.TotalRisk).
		Msg("Computed cross-position analytics")

	return analytics
}

// CorrelationMatrix returns the n x n overall correlation matrix in snapshot slot order
func (e *Engine) CorrelationMatrix(snap *domain.Snapshot, market *domain.MarketData) *mat.SymDense {
	return Matrix(e.Analyze(snap, market, snap.OwnerKey))
}

// Matrix expands analytics pairs into a symmetric matrix with unit diagonal
func Matrix(a *Analytics) *mat.SymDense {
	n := len(a.PositionIDs)
	if n == 0 {
		return nil
	}
	index := make(map[string]int, n)
	for i, id := range a.PositionIDs {
		index[id] = i
	}
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	for _, p := range a.Pairs {
		m.SetSym(index[p.PositionA], index[p.PositionB], p.OverallCorrelation)
	}
	return m
}

func (e *Engine) diversification(snap *domain.Snapshot, weights, vols []float64, pairs []Pair, risk RiskDecomposition) DiversificationMetrics {
	d := DiversificationMetrics{
		TokenExposure:   make(map[string]float64),
		PoolExposure:    make(map[string]float64),
		HerfindahlIndex: risk.ConcentrationRisk,
	}
	if snap.Len() == 0 {
		return d
	}

	if risk.ConcentrationRisk > 0 {
		d.EffectivePositions = 1 / risk.ConcentrationRisk
	}

	if len(pairs) > 0 {
		sum := 0.0
		for _, p := range pairs {
			sum += p.OverallCorrelation
		}
		d.AverageCorrelation = sum / float64(len(pairs))
	}

	weightedVol := 0.0
	for i, p := range snap.Positions {
		weightedVol += weights[i] * vols[i]
		d.PoolExposure[p.PoolID] += weights[i]
		// Each side of the pair is assumed to carry half the position value
		d.TokenExposure[strings.ToUpper(p.TokenX.Symbol)] += weights[i] / 2
		d.TokenExposure[strings.ToUpper(p.TokenY.Symbol)] += weights[i] / 2
	}
	if risk.PortfolioVolatility > 0 {
		d.DiversificationRatio = weightedVol / risk.PortfolioVolatility
	}
	return d
}

func (e *Engine) recommend(a *Analytics) []Recommendation {
	recs := make([]Recommendation, 0)
	n := len(a.PositionIDs)
	if n == 0 {
		return recs
	}

	hhi := a.Risk.ConcentrationRisk
	if n > 1 && hhi > e.cfg.ConcentrationLimit {
		severity := "medium"
		if hhi > 0.5 {
			severity = "high"
		}
		top := topContributors(a.Risk.Contributions, 2)
		recs = append(recs, Recommendation{
			Type:        RecommendReduceConcentration,
			Severity:    severity,
			Message:     fmt.Sprintf("Portfolio concentration (HHI %.2f) exceeds %.2f", hhi, e.cfg.ConcentrationLimit),
			PositionIDs: top,
			Value:       hhi,
		})
	}

	for _, c := range a.Clusters {
		if len(c.PositionIDs) > 1 && c.Weight > e.cfg.ClusterWeightLimit {
			recs = append(recs, Recommendation{
				Type:        RecommendDiversifyCluster,
				Severity:    c.RiskLevel,
				Message:     fmt.Sprintf("%s holds %.0f%% of value in correlated positions", c.ID, c.Weight*100),
				PositionIDs: c.PositionIDs,
				Value:       c.Weight,
			})
		}
	}

	tokens := make([]string, 0, len(a.Diversification.TokenExposure))
	for token := range a.Diversification.TokenExposure {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		exposure := a.Diversification.TokenExposure[token]
		if n > 1 && exposure > e.cfg.TokenExposureLimit {
			recs = append(recs, Recommendation{
				Type:     RecommendReduceTokenExposure,
				Severity: "medium",
				Message:  fmt.Sprintf("%s exposure %.0f%% exceeds %.0f%%", token, exposure*100, e.cfg.TokenExposureLimit*100),
				Value:    exposure,
			})
		}
	}

	if n > 1 && a.Diversification.AverageCorrelation > e.cfg.HighCorrelationMarker {
		recs = append(recs, Recommendation{
			Type:     RecommendAddUncorrelated,
			Severity: "medium",
			Message:  fmt.Sprintf("Average pairwise correlation %.2f is high; add uncorrelated positions", a.Diversification.AverageCorrelation),
			Value:    a.Diversification.AverageCorrelation,
		})
	}
	return recs
}

func summarize(snap *domain.Snapshot, weights []float64) Summary {
	s := Summary{PositionCount: snap.Len()}
	for i, p := range snap.Positions {
		a := snap.Analytics[i]
		if p.IsActive {
			s.ActiveCount++
		}
		s.TotalValue += a.TotalValue
		s.TotalPnL += a.PnL.Amount
		s.TotalFees += a.FeesEarnedUSD
		s.WeightedAPR += weights[i] * a.APR
	}
	if cost := s.TotalValue - s.TotalPnL; cost > 0 {
		s.TotalPnLPercent = s.TotalPnL / cost * 100
	}
	return s
}

func topContributors(contribs []RiskContribution, k int) []string {
	sorted := append([]RiskContribution(nil), contribs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ComponentRisk > sorted[j].ComponentRisk
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = c.PositionID
	}
	return out
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

