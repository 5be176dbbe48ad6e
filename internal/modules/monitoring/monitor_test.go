package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/aristath/lpsentinel/internal/scheduler"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type monitorFixture struct {
	monitor    *Monitor
	rebalancer *rebalancing.Service
	source     *testutil.MockPositionSource
	provider   *testutil.MockMarketDataProvider
	executor   *rebalancing.SimulatedExecutor
	sched      *scheduler.Scheduler
	bus        *events.Bus
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		source:   testutil.NewMockPositionSource(testutil.NewSnapshotFixture()),
		provider: testutil.NewMockMarketDataProvider(testutil.NewMarketDataFixture()),
		executor: rebalancing.NewSimulatedExecutor(1),
		sched:    scheduler.New(zerolog.Nop()),
		bus:      events.NewBus(zerolog.Nop()),
	}
	t.Cleanup(f.sched.Stop)

	clock := func() time.Time { return testutil.FixtureTime }
	f.rebalancer = rebalancing.NewService(rebalancing.NewRegistry(), f.source, f.provider, f.executor, 0, nil, f.bus, nil, zerolog.Nop())
	f.rebalancer.SetClock(clock)
	f.monitor = NewMonitor(DefaultSettings(), f.rebalancer, f.source, f.provider, f.sched, f.bus, nil, zerolog.Nop())
	f.monitor.SetClock(clock)
	return f
}

func (f *monitorFixture) registerAutoConfig(t *testing.T) {
	t.Helper()
	cfg := rebalancing.DefaultConfig()
	cfg.ID = "auto"
	cfg.AutoExecute = true
	require.NoError(t, f.rebalancer.Registry().RegisterConfig(cfg))
}

func TestRunCycle_ScoresEveryPosition(t *testing.T) {
	f := newMonitorFixture(t)
	var cycles []*events.MonitorCycleData
	f.bus.Subscribe(events.MonitorCycleCompleted, func(e *events.Event) {
		cycles = append(cycles, e.Data.(*events.MonitorCycleData))
	})

	report, err := f.monitor.RunCycleFor(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Positions)
	assert.Equal(t, 0, report.Failures)
	// price movement on sol-usdc plus the weekly timer on all three
	assert.Equal(t, 4, report.TriggerFires)
	assert.Empty(t, report.Executions)
	require.Len(t, report.Health, 3)
	for _, hs := range report.Health {
		assert.GreaterOrEqual(t, hs.Health, 0.0)
		assert.LessOrEqual(t, hs.Health, 100.0)
		assert.NotEmpty(t, hs.RecommendedAction)
	}

	require.Len(t, cycles, 1)
	assert.Equal(t, 3, cycles[0].Positions)
	assert.Equal(t, 4, cycles[0].TriggerFires)

	agg, err := f.monitor.Health("sol-usdc")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Samples)
	assert.Equal(t, 100.0, agg.Stability)

	_, err = f.monitor.Health("unknown")
	assert.True(t, domain.IsNotFound(err))
}

func TestRunCycle_CriticalHealthAlertLifecycle(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	degraded := testutil.NewMarketDataFixture()
	md := degraded.Positions["sol-usdc"]
	md.CurrentEfficiency = 0
	md.LiquidityUtilization = 0
	md.PoolFeeAPR = 400
	degraded.Positions["sol-usdc"] = md
	f.provider.SetData(degraded)

	_, err := f.monitor.RunCycleFor(ctx, "owner-1", nil)
	require.NoError(t, err)

	alert := findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertHealthDegradation)
	require.NotNil(t, alert)
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Less(t, alert.CurrentValue, 30.0)

	recovered := testutil.NewMarketDataFixture()
	md = recovered.Positions["sol-usdc"]
	md.CurrentEfficiency = 90
	recovered.Positions["sol-usdc"] = md
	f.provider.SetData(recovered)

	_, err = f.monitor.RunCycleFor(ctx, "owner-1", nil)
	require.NoError(t, err)

	assert.Nil(t, findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertHealthDegradation))
	got, ok := f.monitor.Alerts().Get(alert.ID)
	require.True(t, ok)
	assert.False(t, got.Active)

	agg, err := f.monitor.Health("sol-usdc")
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Samples)
	assert.Less(t, agg.Stability, 100.0)
	assert.Equal(t, 1, agg.AlertCounts[AlertHealthDegradation])
}

func TestRunCycle_ResolvesAlertsOfInactivePositions(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	degraded := testutil.NewMarketDataFixture()
	md := degraded.Positions["sol-usdc"]
	md.CurrentEfficiency = 0
	md.LiquidityUtilization = 0
	md.PoolFeeAPR = 400
	degraded.Positions["sol-usdc"] = md
	f.provider.SetData(degraded)

	_, err := f.monitor.RunCycleFor(ctx, "owner-1", nil)
	require.NoError(t, err)
	alert := findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertHealthDegradation)
	require.NotNil(t, alert)

	// A cycle where every position fails keeps the alert
	report, err := f.monitor.RunCycleFor(ctx, "owner-1", []string{"missing"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failures)
	assert.NotNil(t, findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertHealthDegradation))

	// Deactivating the position resolves it
	snap := testutil.NewSnapshotFixture()
	for i := range snap.Positions {
		if snap.Positions[i].ID == "sol-usdc" {
			snap.Positions[i].IsActive = false
		}
	}
	f.source.SetSnapshot(snap)

	report, err = f.monitor.RunCycleFor(ctx, "owner-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Positions)
	assert.Nil(t, findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertHealthDegradation))
	got, ok := f.monitor.Alerts().Get(alert.ID)
	require.True(t, ok)
	assert.False(t, got.Active)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, report.ActiveAlerts, f.monitor.Alerts().ActiveCount())
}

func TestRunCycle_AutoExecute(t *testing.T) {
	f := newMonitorFixture(t)
	f.registerAutoConfig(t)

	report, err := f.monitor.RunCycleFor(context.Background(), "owner-1", []string{"auto"})
	require.NoError(t, err)

	// Only sol-usdc clears the efficiency gain threshold
	require.Len(t, report.Executions, 1)
	require.Len(t, f.executor.Requests(), 1)
	assert.Equal(t, "sol-usdc", f.executor.Requests()[0].PositionID)

	history := f.rebalancer.History("sol-usdc")
	require.Len(t, history, 1)
	assert.Equal(t, rebalancing.StateCompleted, history[0].State)
}

func TestRunCycle_ExecutionFailureAlert(t *testing.T) {
	f := newMonitorFixture(t)
	f.registerAutoConfig(t)
	f.executor.FailPosition("sol-usdc", rebalancing.ErrExecutionRejected)
	ctx := context.Background()

	_, err := f.monitor.RunCycleFor(ctx, "owner-1", []string{"auto"})
	require.NoError(t, err)

	alert := findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertExecutionFailure)
	require.NotNil(t, alert)
	assert.Equal(t, SeverityHigh, alert.Severity)

	// A later successful execution clears it
	f.executor.FailPosition("sol-usdc", nil)
	analysis, err := f.rebalancer.AnalyzePosition(ctx, "sol-usdc", "owner-1", "auto")
	require.NoError(t, err)
	exec, err := f.rebalancer.ExecuteRebalancing(ctx, analysis, "owner-1", true)
	require.NoError(t, err)
	require.Equal(t, rebalancing.StateCompleted, exec.State)

	assert.Nil(t, findAlert(f.monitor.Alerts().List("owner-1", true), "sol-usdc", AlertExecutionFailure))
}

func TestRunCycle_PositionFailuresAreSkipped(t *testing.T) {
	f := newMonitorFixture(t)

	report, err := f.monitor.RunCycleFor(context.Background(), "owner-1", []string{"missing"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Positions)
	assert.Equal(t, 3, report.Failures)
	assert.Empty(t, report.Health)
}

func TestRunCycle_SourceBreaker(t *testing.T) {
	f := newMonitorFixture(t)
	f.source.SetError(errors.New("indexer down"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.monitor.RunCycleFor(ctx, "owner-1", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "indexer down")
	}

	_, err := f.monitor.RunCycleFor(ctx, "owner-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 3, f.source.Calls())
}

func TestStartStopMonitoring(t *testing.T) {
	f := newMonitorFixture(t)
	var statuses []bool
	f.bus.Subscribe(events.MonitoringStatusChanged, func(e *events.Event) {
		statuses = append(statuses, e.Data.(*events.MonitoringStatusData).Running)
	})

	_, err := f.monitor.RunCycle(context.Background())
	assert.True(t, domain.IsValidation(err))

	assert.True(t, domain.IsValidation(f.monitor.StartMonitoring("", nil, 5)))
	assert.True(t, domain.IsNotFound(f.monitor.StartMonitoring("owner-1", []string{"missing"}, 5)))
	assert.Equal(t, 0, f.sched.Entries())

	require.NoError(t, f.monitor.StartMonitoring("owner-1", nil, 0))
	status := f.monitor.Status()
	assert.True(t, status.Running)
	assert.Equal(t, DefaultIntervalMinutes, status.IntervalMinutes)
	assert.Equal(t, []string{rebalancing.DefaultConfigID}, status.ConfigIDs)
	assert.Equal(t, 1, f.sched.Entries())

	// Restarting replaces the schedule
	require.NoError(t, f.monitor.StartMonitoring("owner-1", nil, 10))
	assert.Equal(t, 1, f.sched.Entries())
	assert.Equal(t, 10, f.monitor.Status().IntervalMinutes)

	report, err := f.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner-1", report.OwnerKey)
	assert.Equal(t, 1, f.monitor.Status().Cycles)

	f.monitor.StopMonitoring()
	f.monitor.StopMonitoring()
	assert.False(t, f.monitor.Status().Running)
	assert.Equal(t, 0, f.sched.Entries())
	assert.Equal(t, []bool{true, true, false}, statuses)

	job := &cycleJob{monitor: f.monitor}
	assert.Equal(t, "monitoring_cycle", job.Name())
	assert.NoError(t, job.Run())
}

func findAlert(alerts []Alert, positionID string, kind AlertType) *Alert {
	for i := range alerts {
		if alerts[i].PositionID == positionID && alerts[i].Type == kind {
			return &alerts[i]
		}
	}
	return nil
}
