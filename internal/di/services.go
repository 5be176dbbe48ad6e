// Package di provides dependency injection for service implementations.
package di

import (
	"fmt"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/config"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/marketdata"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/aristath/lpsentinel/internal/modules/correlation"
	"github.com/aristath/lpsentinel/internal/modules/monitoring"
	"github.com/aristath/lpsentinel/internal/modules/optimization"
	"github.com/aristath/lpsentinel/internal/modules/portfolio"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/aristath/lpsentinel/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates the adapters, caches and engines.
// The databases must already be open on the container.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	tuning := cfg.Tuning

	// ==========================================
	// STEP 1: Infrastructure
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.Metrics = metrics.New()
	container.Caches = cache.NewRegistry()
	container.Scheduler = scheduler.New(log)

	// ==========================================
	// STEP 2: Repositories and adapters
	// ==========================================
	container.SnapshotRepo = portfolio.NewRepository(container.PositionsDB.Conn(), log)
	container.PriceRepo = marketdata.NewPriceRepository(container.HistoryDB.Conn(), log)
	container.PortfolioService = portfolio.NewService(container.SnapshotRepo, log)

	container.StaticMarketData = marketdata.NewStaticProvider(cfg.RiskFree)
	switch cfg.MarketData {
	case config.MarketDataHistory:
		// Estimates derived from stored prices, explicit estimates fill the gaps
		container.MarketData = marketdata.NewHistoryProvider(container.PriceRepo, container.StaticMarketData, tuning.History, log)
	default:
		container.MarketData = container.StaticMarketData
	}
	log.Info().Str("source", cfg.MarketData).Msg("Market data provider selected")

	container.Executor = rebalancing.NewSimulatedExecutor(1)

	// ==========================================
	// STEP 3: Result caches
	// ==========================================
	container.CorrelationCache = cache.New[*correlation.Analytics]("correlation", cfg.Cache.CorrelationTTL, container.Metrics, log)
	container.OptimizationCache = cache.New[*optimization.Result]("optimization", cfg.Cache.OptimizationTTL, container.Metrics, log)
	container.AnalysisCache = cache.New[*rebalancing.Analysis]("rebalancing_analysis", cfg.Cache.AnalysisTTL, container.Metrics, log)
	container.Caches.Register(container.CorrelationCache, container.OptimizationCache, container.AnalysisCache)

	// ==========================================
	// STEP 4: Engines
	// ==========================================
	container.CorrelationEngine = correlation.NewEngine(tuning.Correlation, container.CorrelationCache, container.Metrics, log)

	container.OptimizationService = optimization.NewService(
		tuning.Optimization,
		container.CorrelationEngine,
		container.OptimizationCache,
		container.EventBus,
		container.Metrics,
		log,
	)

	registry := rebalancing.NewRegistry()
	for _, rc := range tuning.Rebalancing {
		if err := registry.RegisterConfig(rc); err != nil {
			return fmt.Errorf("failed to register rebalancing config: %w", err)
		}
	}
	container.RebalancingService = rebalancing.NewService(
		registry,
		container.PortfolioService,
		container.MarketData,
		container.Executor,
		0,
		container.AnalysisCache,
		container.EventBus,
		container.Metrics,
		log,
	)

	// Monitor registers itself as the rebalancer's alert sink
	container.Monitor = monitoring.NewMonitor(
		tuning.Monitoring,
		container.RebalancingService,
		container.PortfolioService,
		container.MarketData,
		container.Scheduler,
		container.EventBus,
		container.Metrics,
		log,
	)

	log.Info().
		Strs("rebalancing_configs", registry.IDs()).
		Msg("Services initialized")

	return nil
}
