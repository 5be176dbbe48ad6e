package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TriggerFiredData contains data for TriggerFired events
type TriggerFiredData struct {
	OwnerKey    string  `json:"owner_key"`
	PositionID  string  `json:"position_id"`
	TriggerID   string  `json:"trigger_id"`
	TriggerType string  `json:"trigger_type"`
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
}

// EventType returns the event type for TriggerFiredData
func (d *TriggerFiredData) EventType() EventType {
	return TriggerFired
}

// AlertData contains data for AlertRaised and AlertResolved events
type AlertData struct {
	AlertID      string  `json:"alert_id"`
	OwnerKey     string  `json:"owner_key"`
	PositionID   string  `json:"position_id"`
	AlertType    string  `json:"alert_type"`
	Severity     string  `json:"severity"`
	CurrentValue float64 `json:"current_value"`
	Resolved     bool    `json:"resolved"`
}

// EventType returns AlertResolved for resolved alerts, AlertRaised otherwise
func (d *AlertData) EventType() EventType {
	if d.Resolved {
		return AlertResolved
	}
	return AlertRaised
}

// RebalanceData contains data for execution lifecycle events
type RebalanceData struct {
	ExecutionID   string  `json:"execution_id"`
	OwnerKey      string  `json:"owner_key"`
	PositionID    string  `json:"position_id"`
	State         string  `json:"state"`
	EstimatedCost float64 `json:"estimated_cost"`
	ActualCost    float64 `json:"actual_cost"`
	Error         string  `json:"error,omitempty"`
}

// EventType maps the execution state onto an event type
func (d *RebalanceData) EventType() EventType {
	switch d.State {
	case "completed":
		return RebalanceCompleted
	case "failed":
		return RebalanceFailed
	default:
		return RebalanceCancelled
	}
}

// MonitorCycleData contains data for MonitorCycleCompleted events
type MonitorCycleData struct {
	OwnerKey     string  `json:"owner_key"`
	Positions    int     `json:"positions"`
	Failures     int     `json:"failures"`
	TriggerFires int     `json:"trigger_fires"`
	ActiveAlerts int     `json:"active_alerts"`
	DurationMs   float64 `json:"duration_ms"`
}

// EventType returns the event type for MonitorCycleData
func (d *MonitorCycleData) EventType() EventType {
	return MonitorCycleCompleted
}

// MonitoringStatusData contains data for MonitoringStatusChanged events
type MonitoringStatusData struct {
	OwnerKey        string `json:"owner_key"`
	Running         bool   `json:"running"`
	IntervalMinutes int    `json:"interval_minutes"`
}

// EventType returns the event type for MonitoringStatusData
func (d *MonitoringStatusData) EventType() EventType {
	return MonitoringStatusChanged
}

// OptimizationCompletedData contains data for OptimizationCompleted events
type OptimizationCompletedData struct {
	OwnerKey  string `json:"owner_key"`
	Objective string `json:"objective"`
	Status    string `json:"status"`
	Actions   int    `json:"actions"`
	Cached    bool   `json:"cached"`
}

// EventType returns the event type for OptimizationCompletedData
func (d *OptimizationCompletedData) EventType() EventType {
	return OptimizationCompleted
}
