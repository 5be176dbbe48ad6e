// Package monitoring scores position health, manages alerts and runs the periodic
// monitoring cycle.
package monitoring

import "time"

// Severity grades an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertType is the condition an alert reports
type AlertType string

const (
	AlertHealthDegradation AlertType = "health_degradation"
	AlertHighRisk          AlertType = "high_risk"
	AlertExecutionFailure  AlertType = "execution_failure"
)

// Alert is one active or resolved condition on a position
type Alert struct {
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ID           string     `json:"id"`
	OwnerKey     string     `json:"owner_key"`
	PositionID   string     `json:"position_id"`
	Type         AlertType  `json:"type"`
	Severity     Severity   `json:"severity"`
	Message      string     `json:"message"`
	Threshold    float64    `json:"threshold"`
	CurrentValue float64    `json:"current_value"`
	Active       bool       `json:"active"`
	Acknowledged bool       `json:"acknowledged"`
}

// HealthInputs are the per-position measurements the health score is built from
type HealthInputs struct {
	Efficiency  float64 `json:"efficiency"`   // percent
	PositionAPR float64 `json:"position_apr"` // percent
	PoolFeeAPR  float64 `json:"pool_fee_apr"` // percent, 0 when unknown
	Utilization float64 `json:"utilization"`  // percent
	RiskScore   float64 `json:"risk_score"`   // 0-100
	ReturnPct   float64 `json:"return_pct"`   // pnl percent
}

// HealthScore is the scored state of one position in one cycle
type HealthScore struct {
	At                time.Time    `json:"at"`
	PositionID        string       `json:"position_id"`
	Inputs            HealthInputs `json:"inputs"`
	FeeOptimization   float64      `json:"fee_optimization"`
	Performance       float64      `json:"performance"`
	Health            float64      `json:"health"`
	Risk              float64      `json:"risk"`
	HealthSeverity    Severity     `json:"health_severity,omitempty"`
	RiskSeverity      Severity     `json:"risk_severity,omitempty"`
	RecommendedAction string       `json:"recommended_action,omitempty"`
}

// Record is one history sample
type Record struct {
	At     time.Time `json:"at"`
	Health float64   `json:"health"`
	Risk   float64   `json:"risk"`
}

// Aggregate summarises a position's recent history
type Aggregate struct {
	PositionID    string            `json:"position_id"`
	Samples       int               `json:"samples"`
	AverageHealth float64           `json:"average_health"`
	AverageRisk   float64           `json:"average_risk"`
	Stability     float64           `json:"stability"`
	AlertCounts   map[AlertType]int `json:"alert_counts"`
	Latest        *HealthScore      `json:"latest,omitempty"`
}

// CycleReport describes one completed monitoring cycle
type CycleReport struct {
	StartedAt    time.Time     `json:"started_at"`
	OwnerKey     string        `json:"owner_key"`
	ConfigIDs    []string      `json:"config_ids"`
	Duration     time.Duration `json:"duration"`
	Positions    int           `json:"positions"`
	Failures     int           `json:"failures"`
	TriggerFires int           `json:"trigger_fires"`
	Executions   []string      `json:"executions"`
	Health       []HealthScore `json:"health"`
	ActiveAlerts int           `json:"active_alerts"`
}

// Status is the state of the monitoring timer
type Status struct {
	Running         bool         `json:"running"`
	OwnerKey        string       `json:"owner_key,omitempty"`
	ConfigIDs       []string     `json:"config_ids,omitempty"`
	IntervalMinutes int          `json:"interval_minutes,omitempty"`
	Cycles          int          `json:"cycles"`
	LastCycle       *CycleReport `json:"last_cycle,omitempty"`
}
