package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/events"
	"github.com/aristath/lpsentinel/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type alertKey struct {
	owner    string
	position string
	kind     AlertType
}

// AlertManager keeps at most one active alert per (owner, position, type).
// Conditions are evaluated every cycle: an alert is created when its condition starts
// to hold, updated while it holds and resolved on the first evaluation where it does not.
type AlertManager struct {
	mu        sync.RWMutex
	alerts    map[string]*Alert
	active    map[alertKey]string
	order     []string
	retention int
	bus       *events.Bus
	metrics   *metrics.Registry
	now       func() time.Time
	log       zerolog.Logger
}

// NewAlertManager creates an alert manager keeping up to retention alerts
func NewAlertManager(retention int, bus *events.Bus, m *metrics.Registry, log zerolog.Logger) *AlertManager {
	if retention <= 0 {
		retention = DefaultSettings().AlertRetention
	}
	return &AlertManager{
		alerts:    make(map[string]*Alert),
		active:    make(map[alertKey]string),
		retention: retention,
		bus:       bus,
		metrics:   m,
		now:       time.Now,
		log:       log.With().Str("component", "alert_manager").Logger(),
	}
}

// SetClock overrides the time source
func (m *AlertManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// EvaluateHealth raises, updates or resolves the health and risk alerts of a position
func (m *AlertManager) EvaluateHealth(ownerKey string, hs HealthScore, s Settings) {
	healthSev, healthAt := s.Health.Severity(hs.Health)
	m.evaluate(alertKey{ownerKey, hs.PositionID, AlertHealthDegradation}, healthSev, healthAt, hs.Health,
		fmt.Sprintf("health score %.1f below %.0f", hs.Health, healthAt))

	riskSev, riskAt := s.Risk.Severity(hs.Risk)
	m.evaluate(alertKey{ownerKey, hs.PositionID, AlertHighRisk}, riskSev, riskAt, hs.Risk,
		fmt.Sprintf("risk score %.1f at or above %.0f", hs.Risk, riskAt))
}

func (m *AlertManager) evaluate(key alertKey, sev Severity, threshold, value float64, message string) {
	m.mu.Lock()
	now := m.now()
	var published []*events.AlertData

	id, isActive := m.active[key]
	switch {
	case sev != "" && isActive && m.alerts[id].Severity == sev:
		a := m.alerts[id]
		a.Threshold = threshold
		a.CurrentValue = value
		a.Message = message
		a.UpdatedAt = now
	case sev != "" && isActive:
		// A severity band change closes the old alert and opens one at the new band
		old := m.resolve(key, id, now)
		old.CurrentValue = value
		published = append(published, alertEvent(old))
		a := m.create(key, sev, threshold, value, message, now)
		published = append(published, alertEvent(a))
	case sev != "":
		a := m.create(key, sev, threshold, value, message, now)
		published = append(published, alertEvent(a))
	case isActive:
		a := m.resolve(key, id, now)
		a.CurrentValue = value
		published = append(published, alertEvent(a))
	}
	activeCount := len(m.active)
	m.mu.Unlock()

	m.metrics.SetActiveAlerts(activeCount)
	for _, data := range published {
		m.bus.Publish("monitoring", data)
	}
}

// ResolveStale resolves the active alerts of ownerKey whose position is not in keep.
// The monitor passes the positions it evaluated or failed to evaluate this cycle, so
// alerts of deactivated or removed positions do not stay active.
func (m *AlertManager) ResolveStale(ownerKey string, keep map[string]struct{}) int {
	m.mu.Lock()
	now := m.now()
	var published []*events.AlertData
	for key, id := range m.active {
		if key.owner != ownerKey {
			continue
		}
		if _, ok := keep[key.position]; ok {
			continue
		}
		published = append(published, alertEvent(m.resolve(key, id, now)))
	}
	activeCount := len(m.active)
	m.mu.Unlock()

	if len(published) > 0 {
		m.metrics.SetActiveAlerts(activeCount)
	}
	for _, data := range published {
		m.bus.Publish("monitoring", data)
	}
	return len(published)
}

// RaiseExecutionFailure records a failed execution as a high severity alert.
// A later completed execution of the position resolves it.
func (m *AlertManager) RaiseExecutionFailure(ownerKey, positionID, executionID, message string) {
	key := alertKey{ownerKey, positionID, AlertExecutionFailure}
	text := fmt.Sprintf("execution %s failed: %s", executionID, message)

	m.mu.Lock()
	now := m.now()
	var published *events.AlertData
	if id, ok := m.active[key]; ok {
		a := m.alerts[id]
		a.Message = text
		a.CurrentValue++
		a.UpdatedAt = now
	} else {
		a := m.create(key, SeverityHigh, 1, 1, text, now)
		published = alertEvent(a)
	}
	activeCount := len(m.active)
	m.mu.Unlock()

	m.metrics.SetActiveAlerts(activeCount)
	if published != nil {
		m.bus.Publish("monitoring", published)
	}
}

// ResolveExecutionFailure resolves the execution failure alert of a position, if any
func (m *AlertManager) ResolveExecutionFailure(ownerKey, positionID string) {
	key := alertKey{ownerKey, positionID, AlertExecutionFailure}

	m.mu.Lock()
	id, ok := m.active[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	a := m.resolve(key, id, m.now())
	activeCount := len(m.active)
	m.mu.Unlock()

	m.metrics.SetActiveAlerts(activeCount)
	m.bus.Publish("monitoring", alertEvent(a))
}

// Acknowledge marks an alert as seen. Activity is unaffected.
func (m *AlertManager) Acknowledge(id string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return Alert{}, &domain.NotFoundError{Kind: "alert", ID: id}
	}
	a.Acknowledged = true
	a.UpdatedAt = m.now()
	m.log.Info().Str("alert", id).Str("position", a.PositionID).Msg("Alert acknowledged")
	return *a, nil
}

// Get returns an alert by id
func (m *AlertManager) Get(id string) (Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// List returns alerts, newest first. activeOnly drops resolved alerts; an empty
// ownerKey matches every owner.
func (m *AlertManager) List(ownerKey string, activeOnly bool) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		a := m.alerts[m.order[i]]
		if activeOnly && !a.Active {
			continue
		}
		if ownerKey != "" && a.OwnerKey != ownerKey {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// ActiveCount returns the number of active alerts
func (m *AlertManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Counts returns how many alerts of each type a position has had
func (m *AlertManager) Counts(positionID string) map[AlertType]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[AlertType]int)
	for _, a := range m.alerts {
		if a.PositionID == positionID {
			out[a.Type]++
		}
	}
	return out
}

// create stores a new active alert. Callers hold m.mu.
func (m *AlertManager) create(key alertKey, sev Severity, threshold, value float64, message string, now time.Time) *Alert {
	a := &Alert{
		CreatedAt:    now,
		UpdatedAt:    now,
		ID:           uuid.NewString(),
		OwnerKey:     key.owner,
		PositionID:   key.position,
		Type:         key.kind,
		Severity:     sev,
		Message:      message,
		Threshold:    threshold,
		CurrentValue: value,
		Active:       true,
	}
	m.alerts[a.ID] = a
	m.active[key] = a.ID
	m.order = append(m.order, a.ID)
	m.evict()

	m.log.Warn().
		Str("alert", a.ID).
		Str("owner", a.OwnerKey).
		Str("position", a.PositionID).
		Str("type", string(a.Type)).
		Str("severity", string(a.Severity)).
		Float64("value", value).
		Msg("Alert raised")
	return a
}

// resolve deactivates an alert. Callers hold m.mu.
func (m *AlertManager) resolve(key alertKey, id string, now time.Time) *Alert {
	a := m.alerts[id]
	a.Active = false
	a.UpdatedAt = now
	resolved := now
	a.ResolvedAt = &resolved
	delete(m.active, key)

	m.log.Info().
		Str("alert", a.ID).
		Str("position", a.PositionID).
		Str("type", string(a.Type)).
		Msg("Alert resolved")
	return a
}

// evict drops the oldest resolved alerts beyond the retention limit. Callers hold m.mu.
func (m *AlertManager) evict() {
	over := len(m.order) - m.retention
	if over <= 0 {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if over > 0 && !m.alerts[id].Active {
			delete(m.alerts, id)
			over--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func alertEvent(a *Alert) *events.AlertData {
	return &events.AlertData{
		AlertID:      a.ID,
		OwnerKey:     a.OwnerKey,
		PositionID:   a.PositionID,
		AlertType:    string(a.Type),
		Severity:     string(a.Severity),
		CurrentValue: a.CurrentValue,
		Resolved:     !a.Active,
	}
}
