// Package rebalancing evaluates per-position rebalancing triggers, weighs the cost and
// benefit of a rebalance and runs the execution state machine.
package rebalancing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlertSink receives execution failures so they can be surfaced as alerts
type AlertSink interface {
	RaiseExecutionFailure(ownerKey, positionID, executionID, message string)
}

// analysisBucket is the time granularity of cached analyses
const analysisBucket = time.Minute

type efficiencyObservation struct {
	at    time.Time
	value float64
}

// Service analyses positions and executes rebalances
type Service struct {
	registry *Registry
	source   domain.PositionSource
	provider domain.MarketDataProvider
	executor Executor
	guard    *Guard
	triggers *TriggerBook
	history  *History
	cache    *cache.Cache[*Analysis]
	bus      *events.Bus
	metrics  *metrics.Registry

	mu             sync.Mutex
	alerts         AlertSink
	positionLocks  map[string]*sync.Mutex
	lastEfficiency map[string]efficiencyObservation

	now func() time.Time
	log zerolog.Logger
}

// NewService creates a rebalancing service. cache, bus and metrics may be nil.
func NewService(
	registry *Registry,
	source domain.PositionSource,
	provider domain.MarketDataProvider,
	executor Executor,
	historySize int,
	resultCache *cache.Cache[*Analysis],
	bus *events.Bus,
	m *metrics.Registry,
	log zerolog.Logger,
) *Service {
	return &Service{
		registry:       registry,
		source:         source,
		provider:       provider,
		executor:       executor,
		guard:          NewGuard(),
		triggers:       NewTriggerBook(),
		history:        NewHistory(historySize),
		cache:          resultCache,
		bus:            bus,
		metrics:        m,
		positionLocks:  make(map[string]*sync.Mutex),
		lastEfficiency: make(map[string]efficiencyObservation),
		now:            time.Now,
		log:            log.With().Str("service", "rebalancing").Logger(),
	}
}

// SetAlertSink wires the alert destination for execution failures
func (s *Service) SetAlertSink(sink AlertSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = sink
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Registry returns the config registry
func (s *Service) Registry() *Registry {
	return s.registry
}

// AnalyzePosition fetches the owner's snapshot and market data and analyses one position.
// An unknown config or position id fails with a NotFoundError.
func (s *Service) AnalyzePosition(ctx context.Context, positionID, ownerKey, configID string) (*Analysis, error) {
	if _, err := s.registry.Config(configID); err != nil {
		return nil, err
	}

	snap, err := s.source.Snapshot(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions for %s: %w", ownerKey, err)
	}
	market, err := s.provider.MarketData(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data for %s: %w", ownerKey, err)
	}
	return s.AnalyzeSnapshot(ctx, snap, market, positionID, ownerKey, configID, s.now(), false)
}

// AnalyzeSnapshot analyses one position of an already fetched snapshot. Results are
// cached per (owner, position, config, position data, market data) and per minute of
// now, so time derived metrics such as hours since the last rebalance stay current.
// Callers running a cycle pass the cycle time as now.
func (s *Service) AnalyzeSnapshot(
	ctx context.Context,
	snap *domain.Snapshot,
	market *domain.MarketData,
	positionID, ownerKey, configID string,
	now time.Time,
	forceRefresh bool,
) (result *Analysis, err error) {
	timer := s.metrics.StartOperation("analyze_position")
	defer func() { timer.Stop(err) }()

	cfg, err := s.registry.Config(configID)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := market.Validate(); err != nil {
		return nil, err
	}
	pos, analytics, err := snap.Find(positionID)
	if err != nil {
		return nil, err
	}
	md, _ := market.Position(positionID)
	lastRebalance, _ := s.guard.LastRebalance(ownerKey + "|" + positionID)

	compute := func(context.Context) (*Analysis, error) {
		return s.analyze(pos, analytics, market, lastRebalance, ownerKey, cfg, now), nil
	}
	if s.cache == nil {
		return compute(ctx)
	}

	key, err := cache.Fingerprint("rebalancing", ownerKey, cfg, pos, analytics, md, lastRebalance, now.Truncate(analysisBucket))
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint analysis input: %w", err)
	}
	analysis, cached, err := s.cache.GetOrCompute(ctx, key, forceRefresh, compute)
	if err != nil {
		return nil, err
	}
	out := *analysis
	out.Cached = cached
	return &out, nil
}

func (s *Service) analyze(pos domain.Position, a domain.PositionAnalytics, market *domain.MarketData, lastRebalance time.Time, ownerKey string, cfg Config, now time.Time) *Analysis {
	m := BuildMetrics(pos, a, market, lastRebalance, now)

	// 1. Efficiency, against the previous observation for the degradation rate
	effKey := ownerKey + "|" + pos.ID
	s.mu.Lock()
	var prev *previousEfficiency
	if obs, ok := s.lastEfficiency[effKey]; ok && now.After(obs.at) {
		prev = &previousEfficiency{value: obs.value, days: now.Sub(obs.at).Hours() / 24}
	}
	s.lastEfficiency[effKey] = efficiencyObservation{at: now, value: m.Efficiency}
	s.mu.Unlock()
	eff := analyzeEfficiency(m, prev, cfg)

	// 2. Cost-benefit and risk
	cb := analyzeCostBenefit(m, eff, cfg)
	risk := assessRisk(m, cb)

	// 3. Decision
	decision := decide(eff, cb, risk, cfg)

	s.log.Debug().
		Str("owner", ownerKey).
		Str("position", pos.ID).
		Str("config", cfg.ID).
		Float64("gap", eff.Gap).
		Float64("roi", cb.ROI).
		Str("risk", string(risk.Level)).
		Str("decision", string(decision.Action)).
		Msg("Analysed position")

	return &Analysis{
		GeneratedAt: now,
		OwnerKey:    ownerKey,
		PositionID:  pos.ID,
		ConfigID:    cfg.ID,
		Metrics:     m,
		Efficiency:  eff,
		CostBenefit: cb,
		Risk:        risk,
		Decision:    decision,
	}
}

// EvaluatePosition evaluates the config's triggers for one position at now
func (s *Service) EvaluatePosition(snap *domain.Snapshot, market *domain.MarketData, positionID, ownerKey, configID string, now time.Time) ([]TriggerFire, error) {
	cfg, err := s.registry.Config(configID)
	if err != nil {
		return nil, err
	}
	pos, analytics, err := snap.Find(positionID)
	if err != nil {
		return nil, err
	}

	lastRebalance, _ := s.guard.LastRebalance(ownerKey + "|" + positionID)
	m := BuildMetrics(pos, analytics, market, lastRebalance, now)
	fires := s.triggers.Evaluate(ownerKey, cfg.ID, positionID, cfg.Triggers, m, now)

	for _, f := range fires {
		s.metrics.RecordTriggerFire(string(f.Type))
		s.bus.Publish("rebalancing", &events.TriggerFiredData{
			OwnerKey:    ownerKey,
			PositionID:  positionID,
			TriggerID:   f.TriggerID,
			TriggerType: string(f.Type),
			Metric:      f.Metric,
			Value:       f.Value,
			Threshold:   f.Threshold,
		})
		s.log.Info().
			Str("owner", ownerKey).
			Str("position", positionID).
			Str("trigger", f.TriggerID).
			Float64("value", f.Value).
			Float64("threshold", f.Threshold).
			Msg("Trigger fired")
	}
	return fires, nil
}

// EvaluateTriggers fetches the owner's positions and evaluates triggers for every
// active one
func (s *Service) EvaluateTriggers(ctx context.Context, ownerKey, configID string, now time.Time) ([]TriggerFire, error) {
	if _, err := s.registry.Config(configID); err != nil {
		return nil, err
	}
	snap, err := s.source.Snapshot(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions for %s: %w", ownerKey, err)
	}
	market, err := s.provider.MarketData(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data for %s: %w", ownerKey, err)
	}

	var fires []TriggerFire
	for _, pos := range snap.Positions {
		if !pos.IsActive {
			continue
		}
		f, err := s.EvaluatePosition(snap, market, pos.ID, ownerKey, configID, now)
		if err != nil {
			return nil, err
		}
		fires = append(fires, f...)
	}
	return fires, nil
}

// TriggerStatus returns the runtime trigger state of a position
func (s *Service) TriggerStatus(ownerKey, configID, positionID string) ([]TriggerStatus, error) {
	cfg, err := s.registry.Config(configID)
	if err != nil {
		return nil, err
	}
	return s.triggers.Status(ownerKey, cfg.ID, positionID, cfg.Triggers), nil
}

// ExecuteRebalancing runs the execution state machine for an analysis:
// pending -> executing -> completed | failed, or pending -> cancelled when approval is
// withheld, the decision is not actionable or the constraints block execution.
// Executor failures are recorded on the execution, never returned.
func (s *Service) ExecuteRebalancing(ctx context.Context, analysis *Analysis, ownerKey string, approvalGranted bool) (*Execution, error) {
	if analysis == nil {
		return nil, domain.NewValidationError("analysis", "is required")
	}
	cfg, err := s.registry.Config(analysis.ConfigID)
	if err != nil {
		return nil, err
	}

	lock := s.positionLock(ownerKey, analysis.PositionID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	exec := &Execution{
		StartedAt:     now,
		ID:            uuid.NewString(),
		OwnerKey:      ownerKey,
		PositionID:    analysis.PositionID,
		Mode:          analysis.Decision.Action,
		Analysis:      analysis,
		EstimatedCost: analysis.CostBenefit.TotalCost,
	}
	exec.transition(StatePending, now, "execution created")

	// 1. Gates
	switch {
	case !approvalGranted:
		s.finish(exec, StateCancelled, "approval withheld")
		return exec, nil
	case !analysis.Decision.Actionable():
		s.finish(exec, StateCancelled, "analysis does not recommend a rebalance")
		return exec, nil
	}

	guardKey := ownerKey + "|" + analysis.PositionID
	verdict := s.guard.Check(guardKey, analysis.Metrics, cfg.Constraints, now)
	if !verdict.Allowed {
		exec.Mode = ActionNoAction
		s.finish(exec, StateCancelled, fmt.Sprintf("blocked by constraints: %v", verdict.Violations))
		return exec, nil
	}
	if verdict.Mode == ActionConservative {
		exec.Mode = ActionConservative
		exec.Lessons = append(exec.Lessons, verdict.Violations...)
	}

	// 2. Execute
	exec.transition(StateExecuting, s.now(), fmt.Sprintf("executing in %s mode", exec.Mode))
	receipt, err := s.executor.Execute(ctx, ExecutionRequest{
		ExecutionID:   exec.ID,
		OwnerKey:      ownerKey,
		PositionID:    analysis.PositionID,
		Mode:          exec.Mode,
		EstimatedCost: exec.EstimatedCost,
		ValueUSD:      analysis.Metrics.Value,
	})
	if err != nil {
		exec.Error = err.Error()
		s.finish(exec, StateFailed, "executor failed")
		s.mu.Lock()
		sink := s.alerts
		s.mu.Unlock()
		if sink != nil {
			sink.RaiseExecutionFailure(ownerKey, exec.PositionID, exec.ID, exec.Error)
		}
		return exec, nil
	}

	// 3. Reconcile
	exec.ActualCost = receipt.ActualCost
	exec.CostVariance = exec.ActualCost - exec.EstimatedCost
	if exec.EstimatedCost > 0 {
		exec.CostVariancePct = exec.CostVariance / exec.EstimatedCost * 100
	}
	for _, tx := range receipt.TxIDs {
		exec.Log = append(exec.Log, LogEntry{Time: s.now(), State: StateExecuting, Message: "transaction submitted", TxID: tx})
	}
	exec.Lessons = append(exec.Lessons, lessons(exec, receipt)...)

	s.guard.Record(guardKey, cfg.Constraints.MinTimeBetween, exec.StartedAt)
	s.triggers.Reset(ownerKey, exec.PositionID)
	s.finish(exec, StateCompleted, fmt.Sprintf("completed with %d transactions", len(receipt.TxIDs)))
	return exec, nil
}

// finish moves an execution to a terminal state, stores it and announces it
func (s *Service) finish(exec *Execution, state ExecutionState, message string) {
	exec.transition(state, s.now(), message)
	s.history.Add(exec)
	s.metrics.RecordExecution(string(state))
	s.bus.Publish("rebalancing", &events.RebalanceData{
		ExecutionID:   exec.ID,
		OwnerKey:      exec.OwnerKey,
		PositionID:    exec.PositionID,
		State:         string(state),
		EstimatedCost: exec.EstimatedCost,
		ActualCost:    exec.ActualCost,
		Error:         exec.Error,
	})

	evt := s.log.Info()
	if state == StateFailed {
		evt = s.log.Error().Str("error", exec.Error)
	}
	evt.Str("execution", exec.ID).
		Str("owner", exec.OwnerKey).
		Str("position", exec.PositionID).
		Str("state", string(state)).
		Str("mode", string(exec.Mode)).
		Msg(message)
}

func lessons(exec *Execution, receipt *Receipt) []string {
	out := append([]string(nil), receipt.Notes...)
	switch {
	case exec.EstimatedCost <= 0:
	case math.Abs(exec.CostVariancePct) <= 10:
		out = append(out, fmt.Sprintf("cost estimate accurate within %.1f%%", math.Abs(exec.CostVariancePct)))
	case exec.CostVariancePct > 0:
		out = append(out, fmt.Sprintf("actual cost %.1f%% above estimate; raise slippage or gas assumptions", exec.CostVariancePct))
	default:
		out = append(out, fmt.Sprintf("actual cost %.1f%% below estimate; cost model is conservative", -exec.CostVariancePct))
	}
	if exec.Mode == ActionConservative {
		out = append(out, "executed in conservative mode after an emergency stop")
	}
	return out
}

// History returns the executions for a position, newest first
func (s *Service) History(positionID string) []*Execution {
	return s.history.ForPosition(positionID)
}

// Execution returns a retained execution by id
func (s *Service) Execution(id string) (*Execution, bool) {
	return s.history.Get(id)
}

func (s *Service) positionLock(ownerKey, positionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey + "|" + positionID
	l, ok := s.positionLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.positionLocks[key] = l
	}
	return l
}
