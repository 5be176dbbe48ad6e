/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every service instance of the process. It is created by
 * Wire() and handed to the HTTP server and the entry point.
 */
package di

import (
	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/database"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/marketdata"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/aristath/lpsentinel/internal/modules/correlation"
	"github.com/aristath/lpsentinel/internal/modules/monitoring"
	"github.com/aristath/lpsentinel/internal/modules/optimization"
	"github.com/aristath/lpsentinel/internal/modules/portfolio"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/aristath/lpsentinel/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: positions (stored snapshots) and history (token prices)
 * - Adapters: position source and market data provider used by every engine
 * - Engines: correlation, optimization, rebalancing, monitoring
 * - Infrastructure: event bus, metrics, result caches, scheduler
 */
type Container struct {
	// Databases
	PositionsDB *database.DB
	HistoryDB   *database.DB

	// Infrastructure
	EventBus  *events.Bus
	Metrics   *metrics.Registry
	Caches    *cache.Registry
	Scheduler *scheduler.Scheduler

	// Repositories
	SnapshotRepo *portfolio.Repository
	PriceRepo    *marketdata.PriceRepository

	// Adapters
	StaticMarketData *marketdata.StaticProvider
	MarketData       domain.MarketDataProvider // static, or history over static
	Executor         *rebalancing.SimulatedExecutor

	// Result caches
	CorrelationCache  *cache.Cache[*correlation.Analytics]
	OptimizationCache *cache.Cache[*optimization.Result]
	AnalysisCache     *cache.Cache[*rebalancing.Analysis]

	// Services
	PortfolioService    *portfolio.Service
	CorrelationEngine   *correlation.Engine
	OptimizationService *optimization.Service
	RebalancingService  *rebalancing.Service
	Monitor             *monitoring.Monitor
}

// JobInstances holds the scheduled housekeeping jobs for manual triggering
type JobInstances struct {
	CacheCleanup   scheduler.Job
	CheckDatabases scheduler.Job
	PrunePrices    scheduler.Job
	Vacuum         scheduler.Job
}

// Close releases the databases. Safe on a partially initialized container.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for _, db := range []*database.DB{c.PositionsDB, c.HistoryDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
