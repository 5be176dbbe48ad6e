package rebalancing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []string
}

func (s *recordingSink) RaiseExecutionFailure(ownerKey, positionID, executionID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, positionID+": "+message)
}

type fixture struct {
	svc      *Service
	source   *testutil.MockPositionSource
	provider *testutil.MockMarketDataProvider
	executor *SimulatedExecutor
	bus      *events.Bus
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:   testutil.NewMockPositionSource(testutil.NewSnapshotFixture()),
		provider: testutil.NewMockMarketDataProvider(testutil.NewMarketDataFixture()),
		executor: NewSimulatedExecutor(1),
		bus:      events.NewBus(zerolog.Nop()),
		clock:    testutil.FixtureTime,
	}
	c := cache.New[*Analysis]("rebalancing", cache.TTLAnalysis, nil, zerolog.Nop())
	c.SetClock(func() time.Time { return f.clock })
	f.svc = NewService(NewRegistry(), f.source, f.provider, f.executor, 0, c, f.bus, nil, zerolog.Nop())
	f.svc.SetClock(func() time.Time { return f.clock })
	return f
}

func TestAnalyzePosition_SolUSDC(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.AnalyzePosition(context.Background(), "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigID, a.ConfigID)

	// Efficiency: 20pp gap on $5000 at a 45% pool fee APR over 30 days
	assert.Equal(t, 20.0, a.Efficiency.Gap)
	assert.InDelta(t, 5000*0.45*0.2*30/365, a.Efficiency.MissedFeesUSD, 1e-9)
	assert.Equal(t, 0.0, a.Efficiency.DegradationRate)

	// Costs: gas 2, slippage 10bps scaled by 1.25 pool impact, one hour of fees
	cb := a.CostBenefit
	assert.Equal(t, 2.0, cb.GasCost)
	assert.InDelta(t, 6.25, cb.SlippageCost, 1e-9)
	assert.InDelta(t, 5000*0.45/8760, cb.OpportunityCost, 1e-9)
	assert.InDelta(t, 2+6.25+5000*0.45/8760, cb.TotalCost, 1e-9)

	// Benefits
	assert.InDelta(t, 5000*0.2*0.05*30/365, cb.EfficiencyGain, 1e-9)
	assert.InDelta(t, 6, cb.RiskReduction, 1e-9)
	assert.InDelta(t, cb.IncreasedFees+cb.EfficiencyGain+cb.RiskReduction, cb.TotalBenefit, 1e-9)
	assert.InDelta(t, cb.NetBenefit/cb.TotalCost, cb.ROI, 1e-9)
	assert.InDelta(t, cb.TotalCost/(cb.TotalBenefit/30), cb.PaybackDays, 1e-9)
	assert.Greater(t, cb.ProfitProbability, 0.5)
	assert.Less(t, cb.ProfitProbability, 0.6)

	// Risk: liquidity 42.5, volatility 60, execution ~31.7
	assert.InDelta(t, 42.5, a.Risk.LiquidityRisk, 1e-9)
	assert.InDelta(t, 60, a.Risk.VolatilityRisk, 1e-9)
	assert.InDelta(t, 30+1000*cb.TotalCost/5000, a.Risk.ExecutionRisk, 1e-9)
	assert.Equal(t, RiskMedium, a.Risk.Level)

	assert.Equal(t, ActionRebalance, a.Decision.Action)
}

func TestAnalyzePosition_SmallGapIsNoAction(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.AnalyzePosition(context.Background(), "eth-wbtc", "owner-1", DefaultConfigID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.Efficiency.Gap)
	assert.Equal(t, ActionNoAction, a.Decision.Action)
	assert.NotEmpty(t, a.Decision.Reasons)
}

func TestAnalyzePosition_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AnalyzePosition(context.Background(), "sol-usdc", "owner-1", "missing")
	assert.True(t, domain.IsNotFound(err))
	assert.Equal(t, 0, f.source.Calls(), "unknown config fails before fetching")

	_, err = f.svc.AnalyzePosition(context.Background(), "nope", "owner-1", "")
	assert.True(t, domain.IsNotFound(err))
}

func TestAnalyzePosition_AdapterError(t *testing.T) {
	f := newFixture(t)
	f.provider.SetError(errors.New("oracle down"))

	_, err := f.svc.AnalyzePosition(context.Background(), "sol-usdc", "owner-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle down")
}

func TestAnalyzePosition_CacheAndDegradation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.CostBenefit, second.CostBenefit)

	// A day later efficiency has dropped by 10pp
	f.clock = f.clock.Add(24 * time.Hour)
	market := testutil.NewMarketDataFixture()
	md := market.Positions["sol-usdc"]
	md.CurrentEfficiency = 60
	market.Positions["sol-usdc"] = md
	f.provider.SetData(market)

	third, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.InDelta(t, 10, third.Efficiency.DegradationRate, 1e-9)
	assert.Equal(t, 30.0, third.Efficiency.Gap)
}

func TestAnalyzePosition_CachedPerMinute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.InDelta(t, 720, first.Metrics.HoursSinceRebalance, 1e-9)

	f.clock = testutil.FixtureTime.Add(20 * time.Second)
	same, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.True(t, same.Cached)

	// Still inside the cache TTL but a later minute
	f.clock = testutil.FixtureTime.Add(3 * time.Minute)
	later, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.False(t, later.Cached)
	assert.InDelta(t, 720.05, later.Metrics.HoursSinceRebalance, 1e-9)
	assert.Equal(t, f.clock, later.GeneratedAt)
}

func TestAnalyzeSnapshot_UsesGivenTime(t *testing.T) {
	f := newFixture(t)
	at := testutil.FixtureTime.Add(2 * time.Hour)

	a, err := f.svc.AnalyzeSnapshot(context.Background(), testutil.NewSnapshotFixture(), testutil.NewMarketDataFixture(),
		"sol-usdc", "owner-1", "", at, false)
	require.NoError(t, err)
	assert.Equal(t, at, a.GeneratedAt)
	assert.InDelta(t, 722, a.Metrics.HoursSinceRebalance, 1e-9)
}

func TestAnalyzePosition_ResultsAreCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	require.False(t, first.Cached)
	roi := first.CostBenefit.ROI
	action := first.Decision.Action

	first.CostBenefit.ROI = -1
	first.Decision.Action = ActionNoAction
	first.OwnerKey = "someone-else"

	second, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, roi, second.CostBenefit.ROI)
	assert.Equal(t, action, second.Decision.Action)
	assert.Equal(t, "owner-1", second.OwnerKey)
}

func TestDecide_AllCombinations(t *testing.T) {
	cfg := DefaultConfig()
	for _, gainOK := range []bool{true, false} {
		for _, roiOK := range []bool{true, false} {
			for _, riskOK := range []bool{true, false} {
				eff := EfficiencyAnalysis{Gap: cfg.MinEfficiencyGain}
				if gainOK {
					eff.Gap += 1
				}
				cb := CostBenefitAnalysis{ROI: cfg.BreakEvenThreshold}
				if roiOK {
					cb.ROI += 0.5
				}
				risk := RiskAssessment{Level: RiskCritical}
				if riskOK {
					risk.Level = RiskHigh
				}

				d := decide(eff, cb, risk, cfg)
				want := ActionNoAction
				if gainOK && roiOK && riskOK {
					want = ActionRebalance
				}
				assert.Equal(t, want, d.Action, "gain=%v roi=%v risk=%v", gainOK, roiOK, riskOK)
				assert.NotEmpty(t, d.Reasons)
			}
		}
	}
}

func TestAssessRisk_Levels(t *testing.T) {
	calm := assessRisk(PositionMetrics{Value: 1000, Volatility: 0.1, Utilization: 90, PoolLiquidityUSD: 1e8}, CostBenefitAnalysis{})
	assert.Equal(t, RiskLow, calm.Level)

	wild := assessRisk(PositionMetrics{Value: 1e6, Volatility: 1.5, Utilization: 5, PoolLiquidityUSD: 1e6, PriceChangePct: 30}, CostBenefitAnalysis{})
	assert.Equal(t, RiskCritical, wild.Level)
	assert.Len(t, wild.Factors, 3)
}

func TestCostBenefit_EdgeCases(t *testing.T) {
	cfg := DefaultConfig()
	m := PositionMetrics{Value: 1000}
	cb := analyzeCostBenefit(m, EfficiencyAnalysis{}, cfg)

	assert.Equal(t, cfg.DefaultGasCostUSD, cb.GasCost)
	assert.Equal(t, -1.0, cb.PaybackDays)
	assert.Equal(t, 0.0, cb.ProfitProbability)
	assert.Less(t, cb.ROI, 0.0)
}

func TestGuard(t *testing.T) {
	t0 := testutil.FixtureTime
	c := Constraints{MaxRebalancesPerDay: 2, MinTimeBetween: time.Hour}

	t.Run("frequency", func(t *testing.T) {
		g := NewGuard()
		assert.True(t, g.Check("p1", PositionMetrics{}, c, t0).Allowed)

		g.Record("p1", c.MinTimeBetween, t0)
		res := g.Check("p1", PositionMetrics{}, c, t0.Add(30*time.Minute))
		assert.False(t, res.Allowed)
		assert.Equal(t, ActionNoAction, res.Mode)
		assert.Len(t, res.Violations, 1)

		assert.True(t, g.Check("p1", PositionMetrics{}, c, t0.Add(61*time.Minute)).Allowed)
		g.Record("p1", c.MinTimeBetween, t0.Add(61*time.Minute))

		// Daily limit of two reached until the first one ages out
		assert.False(t, g.Check("p1", PositionMetrics{}, c, t0.Add(3*time.Hour)).Allowed)
		assert.True(t, g.Check("p1", PositionMetrics{}, c, t0.Add(25*time.Hour)).Allowed)

		// Other positions are unaffected
		assert.True(t, g.Check("p2", PositionMetrics{}, c, t0.Add(30*time.Minute)).Allowed)

		last, ok := g.LastRebalance("p1")
		require.True(t, ok)
		assert.Equal(t, t0.Add(61*time.Minute), last)
	})

	t.Run("interval longer than a day", func(t *testing.T) {
		g := NewGuard()
		long := Constraints{MinTimeBetween: 48 * time.Hour}
		g.Record("p1", long.MinTimeBetween, t0)

		res := g.Check("p1", PositionMetrics{}, long, t0.Add(30*time.Hour))
		assert.False(t, res.Allowed)
		require.Len(t, res.Violations, 1)
		assert.Contains(t, res.Violations[0], "minimum interval")

		last, ok := g.LastRebalance("p1")
		require.True(t, ok)
		assert.Equal(t, t0, last)

		assert.True(t, g.Check("p1", PositionMetrics{}, long, t0.Add(49*time.Hour)).Allowed)
	})

	t.Run("windows", func(t *testing.T) {
		g := NewGuard()
		wc := Constraints{AllowedWindows: []TimeWindow{{StartHour: 0, EndHour: 6}}}
		assert.False(t, g.Check("p1", PositionMetrics{}, wc, t0).Allowed)
		assert.True(t, g.Check("p1", PositionMetrics{}, wc, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)).Allowed)
	})

	t.Run("emergency stops", func(t *testing.T) {
		g := NewGuard()
		sc := Constraints{EmergencyStops: EmergencyStops{MinPnLPct: -20, MaxILPct: 10, MaxVolatility: 1}}
		stressed := PositionMetrics{PnLPct: -30, ILPct: 12, Volatility: 1.2}

		res := g.Check("p1", stressed, sc, t0)
		assert.False(t, res.Allowed)
		assert.Len(t, res.Violations, 3)

		sc.ConservativeFallback = true
		res = g.Check("p1", stressed, sc, t0)
		assert.True(t, res.Allowed)
		assert.Equal(t, ActionConservative, res.Mode)

		assert.Equal(t, ActionRebalance, g.Check("p1", PositionMetrics{PnLPct: -5}, sc, t0).Mode)
	})
}

func TestExecuteRebalancing_StateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("approval withheld", func(t *testing.T) {
		f := newFixture(t)
		var got []events.EventType
		f.bus.SubscribeAll(func(e *events.Event) { got = append(got, e.Type) })

		a, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
		require.NoError(t, err)
		exec, err := f.svc.ExecuteRebalancing(ctx, a, "owner-1", false)
		require.NoError(t, err)

		assert.Equal(t, StateCancelled, exec.State)
		assert.Empty(t, f.executor.Requests())
		assert.Equal(t, []events.EventType{events.RebalanceCancelled}, got)
		assert.Len(t, f.svc.History("sol-usdc"), 1)
	})

	t.Run("not actionable", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.AnalyzePosition(ctx, "eth-wbtc", "owner-1", "")
		require.NoError(t, err)

		exec, err := f.svc.ExecuteRebalancing(ctx, a, "owner-1", true)
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, exec.State)
		assert.Empty(t, f.executor.Requests())
	})

	t.Run("completed", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
		require.NoError(t, err)

		exec, err := f.svc.ExecuteRebalancing(ctx, a, "owner-1", true)
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, exec.State)
		assert.NotEmpty(t, exec.ID)
		assert.Equal(t, ActionRebalance, exec.Mode)
		assert.InDelta(t, a.CostBenefit.TotalCost, exec.ActualCost, 1e-9)
		assert.InDelta(t, 0, exec.CostVariance, 1e-9)
		assert.NotEmpty(t, exec.Lessons)

		states := make([]ExecutionState, 0)
		txs := 0
		for _, entry := range exec.Log {
			if entry.TxID != "" {
				txs++
				continue
			}
			states = append(states, entry.State)
		}
		assert.Equal(t, []ExecutionState{StatePending, StateExecuting, StateCompleted}, states)
		assert.Equal(t, 3, txs)

		got, ok := f.svc.Execution(exec.ID)
		require.True(t, ok)
		assert.Same(t, exec, got)

		// The minimum interval now blocks an immediate second run
		again, err := f.svc.ExecuteRebalancing(ctx, a, "owner-1", true)
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, again.State)
		assert.Len(t, f.executor.Requests(), 1)
		assert.Len(t, f.svc.History("sol-usdc"), 2)
	})

	t.Run("failed raises alert", func(t *testing.T) {
		f := newFixture(t)
		sink := &recordingSink{}
		f.svc.SetAlertSink(sink)
		f.executor.FailPosition("sol-usdc", ErrExecutionRejected)
		var failed int
		f.bus.Subscribe(events.RebalanceFailed, func(*events.Event) { failed++ })

		a, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
		require.NoError(t, err)
		exec, err := f.svc.ExecuteRebalancing(ctx, a, "owner-1", true)
		require.NoError(t, err)

		assert.Equal(t, StateFailed, exec.State)
		assert.Contains(t, exec.Error, "execution rejected")
		assert.Equal(t, 1, failed)
		require.Len(t, sink.alerts, 1)
		assert.Contains(t, sink.alerts[0], "sol-usdc")
	})

	t.Run("emergency stop runs conservatively", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
		require.NoError(t, err)
		stressed := *a
		stressed.Metrics.PnLPct = -40

		exec, err := f.svc.ExecuteRebalancing(ctx, &stressed, "owner-1", true)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, exec.State)
		assert.Equal(t, ActionConservative, exec.Mode)
		require.Len(t, f.executor.Requests(), 1)
		assert.Equal(t, ActionConservative, f.executor.Requests()[0].Mode)
	})

	t.Run("nil analysis", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ExecuteRebalancing(ctx, nil, "owner-1", true)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestExecuteRebalancing_ResetsTriggers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fires, err := f.svc.EvaluateTriggers(ctx, "owner-1", "", f.clock)
	require.NoError(t, err)
	ids := map[string]int{}
	for _, fire := range fires {
		if fire.PositionID == "sol-usdc" {
			ids[fire.TriggerID]++
		}
	}
	assert.Equal(t, map[string]int{"price-movement": 1, "weekly": 1}, ids)

	a, err := f.svc.AnalyzePosition(ctx, "sol-usdc", "owner-1", "")
	require.NoError(t, err)
	exec, err := f.svc.ExecuteRebalancing(ctx, a, "owner-1", true)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, exec.State)

	// Price is still moving so that trigger re-fires; the weekly timer restarted
	f.clock = f.clock.Add(time.Minute)
	snap := testutil.NewSnapshotFixture()
	fires, err = f.svc.EvaluatePosition(snap, testutil.NewMarketDataFixture(), "sol-usdc", "owner-1", "", f.clock)
	require.NoError(t, err)
	require.Len(t, fires, 1)
	assert.Equal(t, "price-movement", fires[0].TriggerID)
	assert.Equal(t, 2, fires[0].FireCount)
}

func TestEvaluateTriggers_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	var fired []string
	f.bus.Subscribe(events.TriggerFired, func(e *events.Event) {
		fired = append(fired, e.Data.(*events.TriggerFiredData).TriggerID)
	})

	fires, err := f.svc.EvaluateTriggers(context.Background(), "owner-1", "", f.clock)
	require.NoError(t, err)
	assert.Len(t, fired, len(fires))

	_, err = f.svc.EvaluateTriggers(context.Background(), "owner-1", "missing", f.clock)
	assert.True(t, domain.IsNotFound(err))
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(2)
	h.Add(&Execution{ID: "a", PositionID: "p1"})
	h.Add(&Execution{ID: "b", PositionID: "p2"})
	h.Add(&Execution{ID: "c", PositionID: "p1"})

	assert.Equal(t, 2, h.Len())
	_, ok := h.Get("a")
	assert.False(t, ok)
	p1 := h.ForPosition("p1")
	require.Len(t, p1, 1)
	assert.Equal(t, "c", p1[0].ID)
}
