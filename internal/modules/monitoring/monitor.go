package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/aristath/lpsentinel/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// Monitor runs the periodic monitoring cycle for one owner: trigger evaluation,
// optional automatic execution, health scoring and alerting
type Monitor struct {
	settings   Settings
	rebalancer *rebalancing.Service
	source     domain.PositionSource
	provider   domain.MarketDataProvider
	sched      *scheduler.Scheduler
	alerts     *AlertManager
	history    *History
	bus        *events.Bus
	metrics    *metrics.Registry

	sourceBreaker *gobreaker.CircuitBreaker
	marketBreaker *gobreaker.CircuitBreaker

	mu        sync.Mutex
	running   bool
	entryID   scheduler.EntryID
	ownerKey  string
	configIDs []string
	interval  int
	cycles    int
	lastCycle *CycleReport

	now func() time.Time
	log zerolog.Logger
}

// NewMonitor creates a monitor and registers its alert manager as the rebalancer's
// failure sink
func NewMonitor(
	settings Settings,
	rebalancer *rebalancing.Service,
	source domain.PositionSource,
	provider domain.MarketDataProvider,
	sched *scheduler.Scheduler,
	bus *events.Bus,
	m *metrics.Registry,
	log zerolog.Logger,
) *Monitor {
	mon := &Monitor{
		settings:   settings,
		rebalancer: rebalancer,
		source:     source,
		provider:   provider,
		sched:      sched,
		alerts:     NewAlertManager(settings.AlertRetention, bus, m, log),
		history:    NewHistory(settings.HistorySize),
		bus:        bus,
		metrics:    m,
		now:        time.Now,
		log:        log.With().Str("service", "monitoring").Logger(),
	}
	mon.sourceBreaker = mon.newBreaker("position_source")
	mon.marketBreaker = mon.newBreaker("market_data")

	rebalancer.SetAlertSink(mon.alerts)
	if bus != nil {
		bus.Subscribe(events.RebalanceCompleted, func(e *events.Event) {
			if d, ok := e.Data.(*events.RebalanceData); ok {
				mon.alerts.ResolveExecutionFailure(d.OwnerKey, d.PositionID)
			}
		})
	}
	return mon
}

func (m *Monitor) newBreaker(name string) *gobreaker.CircuitBreaker {
	failures := m.settings.BreakerFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: m.settings.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsNotFound(err) || domain.IsValidation(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// SetClock overrides the time source of the monitor and its alert manager
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	m.alerts.SetClock(now)
}

// Alerts returns the alert manager
func (m *Monitor) Alerts() *AlertManager {
	return m.alerts
}

// Settings returns the monitor tuning
func (m *Monitor) Settings() Settings {
	return m.settings
}

// StartMonitoring schedules the cycle for ownerKey every intervalMinutes (0 uses the
// default). An empty configIDs monitors with the default rebalancing config. Starting
// again replaces the running schedule.
func (m *Monitor) StartMonitoring(ownerKey string, configIDs []string, intervalMinutes int) error {
	if ownerKey == "" {
		return domain.NewValidationError("owner_key", "is required")
	}
	if len(configIDs) == 0 {
		configIDs = []string{rebalancing.DefaultConfigID}
	}
	for _, id := range configIDs {
		if _, err := m.rebalancer.Registry().Config(id); err != nil {
			return err
		}
	}
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.sched.Remove(m.entryID)
	}
	id, err := m.sched.AddJob(scheduler.EveryMinutes(intervalMinutes), &cycleJob{monitor: m})
	if err != nil {
		m.running = false
		return fmt.Errorf("failed to schedule monitoring: %w", err)
	}
	m.sched.Start()

	m.running = true
	m.entryID = id
	m.ownerKey = ownerKey
	m.configIDs = append([]string(nil), configIDs...)
	m.interval = intervalMinutes

	m.log.Info().
		Str("owner", ownerKey).
		Strs("configs", configIDs).
		Int("interval_minutes", intervalMinutes).
		Msg("Monitoring started")
	m.bus.Publish("monitoring", &events.MonitoringStatusData{
		OwnerKey:        ownerKey,
		Running:         true,
		IntervalMinutes: intervalMinutes,
	})
	return nil
}

// StopMonitoring removes the timer. A cycle already running completes.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.sched.Remove(m.entryID)
	m.running = false

	m.log.Info().Str("owner", m.ownerKey).Int("cycles", m.cycles).Msg("Monitoring stopped")
	m.bus.Publish("monitoring", &events.MonitoringStatusData{
		OwnerKey:        m.ownerKey,
		Running:         false,
		IntervalMinutes: m.interval,
	})
}

// Status reports the timer state and the last cycle
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:         m.running,
		OwnerKey:        m.ownerKey,
		ConfigIDs:       append([]string(nil), m.configIDs...),
		IntervalMinutes: m.interval,
		Cycles:          m.cycles,
		LastCycle:       m.lastCycle,
	}
}

// Health returns the aggregated history of a position
func (m *Monitor) Health(positionID string) (Aggregate, error) {
	agg, ok := m.history.Aggregate(positionID)
	if !ok {
		return Aggregate{}, &domain.NotFoundError{Kind: "position health", ID: positionID}
	}
	agg.AlertCounts = m.alerts.Counts(positionID)
	return agg, nil
}

// RunCycle runs one cycle for the owner and configs given to StartMonitoring
func (m *Monitor) RunCycle(ctx context.Context) (*CycleReport, error) {
	m.mu.Lock()
	owner, configIDs := m.ownerKey, m.configIDs
	m.mu.Unlock()

	if owner == "" {
		return nil, domain.NewValidationError("owner_key", "monitoring has not been started")
	}
	return m.RunCycleFor(ctx, owner, configIDs)
}

type positionResult struct {
	positionID string
	health     *HealthScore
	fires      int
	executions []string
	err        error
}

// RunCycleFor evaluates every active position of ownerKey. Per-position failures are
// logged and counted; only failing to load the snapshot or market data fails the cycle.
func (m *Monitor) RunCycleFor(ctx context.Context, ownerKey string, configIDs []string) (report *CycleReport, err error) {
	timer := m.metrics.StartOperation("monitor_cycle")
	defer func() { timer.Stop(err) }()

	if len(configIDs) == 0 {
		configIDs = []string{rebalancing.DefaultConfigID}
	}
	m.mu.Lock()
	now := m.now()
	m.mu.Unlock()
	wall := time.Now()

	// 1. Load inputs through the breakers
	snap, err := m.snapshot(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	market, err := m.marketData(ctx, snap)
	if err != nil {
		return nil, err
	}

	// 2. Fan out across active positions
	positions := make([]string, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		if p.IsActive {
			positions = append(positions, p.ID)
		}
	}
	results := make([]positionResult, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.settings.Concurrency)
	for i, id := range positions {
		g.Go(func() error {
			results[i] = m.evaluatePosition(gctx, snap, market, id, ownerKey, configIDs, now)
			return nil
		})
	}
	_ = g.Wait()

	// 3. Join: history and alerts
	report = &CycleReport{
		StartedAt:  now,
		OwnerKey:   ownerKey,
		ConfigIDs:  configIDs,
		Positions:  len(positions),
		Executions: make([]string, 0),
		Health:     make([]HealthScore, 0, len(positions)),
	}
	for _, r := range results {
		if r.err != nil {
			report.Failures++
			continue
		}
		report.TriggerFires += r.fires
		report.Executions = append(report.Executions, r.executions...)
		if r.health != nil {
			m.history.Add(*r.health)
			m.alerts.EvaluateHealth(ownerKey, *r.health, m.settings)
			report.Health = append(report.Health, *r.health)
		}
	}
	// Positions that left the active set take their alerts with them. Failed positions
	// are kept: their last known alerts stay until they can be evaluated again.
	keep := make(map[string]struct{}, len(positions))
	for _, id := range positions {
		keep[id] = struct{}{}
	}
	if stale := m.alerts.ResolveStale(ownerKey, keep); stale > 0 {
		m.log.Debug().Str("owner", ownerKey).Int("resolved", stale).Msg("Resolved alerts of inactive positions")
	}
	report.ActiveAlerts = m.alerts.ActiveCount()
	report.Duration = time.Since(wall)

	m.mu.Lock()
	m.cycles++
	m.lastCycle = report
	m.mu.Unlock()

	m.metrics.ObserveCycle(report.Duration, report.Positions, report.Failures)
	m.bus.Publish("monitoring", &events.MonitorCycleData{
		OwnerKey:     ownerKey,
		Positions:    report.Positions,
		Failures:     report.Failures,
		TriggerFires: report.TriggerFires,
		ActiveAlerts: report.ActiveAlerts,
		DurationMs:   float64(report.Duration.Microseconds()) / 1000,
	})
	m.log.Info().
		Str("owner", ownerKey).
		Int("positions", report.Positions).
		Int("failures", report.Failures).
		Int("trigger_fires", report.TriggerFires).
		Int("executions", len(report.Executions)).
		Int("active_alerts", report.ActiveAlerts).
		Dur("duration", report.Duration).
		Msg("Monitoring cycle completed")
	return report, nil
}

func (m *Monitor) evaluatePosition(
	ctx context.Context,
	snap *domain.Snapshot,
	market *domain.MarketData,
	positionID, ownerKey string,
	configIDs []string,
	now time.Time,
) positionResult {
	res := positionResult{positionID: positionID}
	fail := func(err error) positionResult {
		m.log.Error().Err(err).Str("owner", ownerKey).Str("position", positionID).Msg("Position evaluation failed")
		res.err = err
		return res
	}

	// 1. Triggers, with automatic execution where the config allows it
	for _, cfgID := range configIDs {
		fires, err := m.rebalancer.EvaluatePosition(snap, market, positionID, ownerKey, cfgID, now)
		if err != nil {
			return fail(err)
		}
		res.fires += len(fires)
		if len(fires) == 0 {
			continue
		}

		analysis, err := m.rebalancer.AnalyzeSnapshot(ctx, snap, market, positionID, ownerKey, cfgID, now, false)
		if err != nil {
			return fail(err)
		}
		cfg, err := m.rebalancer.Registry().Config(cfgID)
		if err != nil {
			return fail(err)
		}
		if !cfg.AutoExecute || !analysis.Decision.Actionable() {
			continue
		}
		exec, err := m.rebalancer.ExecuteRebalancing(ctx, analysis, ownerKey, true)
		if err != nil {
			return fail(err)
		}
		res.executions = append(res.executions, exec.ID)
	}

	// 2. Health under the primary config
	analysis, err := m.rebalancer.AnalyzeSnapshot(ctx, snap, market, positionID, ownerKey, configIDs[0], now, false)
	if err != nil {
		return fail(err)
	}
	md, _ := market.Position(positionID)
	hs := Score(positionID, InputsFromAnalysis(analysis, md), m.settings, now)
	hs.RecommendedAction = string(analysis.Decision.Action)
	res.health = &hs

	m.log.Debug().
		Str("position", positionID).
		Float64("health", hs.Health).
		Float64("risk", hs.Risk).
		Int("fires", res.fires).
		Msg("Position evaluated")
	return res
}

func (m *Monitor) snapshot(ctx context.Context, ownerKey string) (*domain.Snapshot, error) {
	out, err := m.sourceBreaker.Execute(func() (interface{}, error) {
		return m.source.Snapshot(ctx, ownerKey)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load positions for %s: %w", ownerKey, err)
	}
	return out.(*domain.Snapshot), nil
}

func (m *Monitor) marketData(ctx context.Context, snap *domain.Snapshot) (*domain.MarketData, error) {
	out, err := m.marketBreaker.Execute(func() (interface{}, error) {
		return m.provider.MarketData(ctx, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load market data for %s: %w", snap.OwnerKey, err)
	}
	return out.(*domain.MarketData), nil
}

// cycleJob adapts the monitor to the scheduler
type cycleJob struct {
	monitor *Monitor
}

func (j *cycleJob) Name() string {
	return "monitoring_cycle"
}

func (j *cycleJob) Run() error {
	_, err := j.monitor.RunCycle(context.Background())
	return err
}
