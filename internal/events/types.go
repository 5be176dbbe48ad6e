// Package events provides the in-process event bus used to publish engine activity.
package events

import "time"

// EventType identifies a kind of event
type EventType string

const (
	// TriggerFired - a rebalancing trigger fired for a position
	TriggerFired EventType = "TRIGGER_FIRED"
	// AlertRaised - a health alert became active
	AlertRaised EventType = "ALERT_RAISED"
	// AlertResolved - a health alert's condition cleared
	AlertResolved EventType = "ALERT_RESOLVED"
	// RebalanceCompleted - an execution reached the completed state
	RebalanceCompleted EventType = "REBALANCE_COMPLETED"
	// RebalanceFailed - an execution failed
	RebalanceFailed EventType = "REBALANCE_FAILED"
	// RebalanceCancelled - an execution was cancelled before running
	RebalanceCancelled EventType = "REBALANCE_CANCELLED"
	// MonitorCycleCompleted - a monitoring cycle finished
	MonitorCycleCompleted EventType = "MONITOR_CYCLE_COMPLETED"
	// MonitoringStatusChanged - monitoring started or stopped
	MonitoringStatusChanged EventType = "MONITORING_STATUS_CHANGED"
	// OptimizationCompleted - a portfolio optimization produced a result
	OptimizationCompleted EventType = "OPTIMIZATION_COMPLETED"
)

// AllTypes lists every event type, used by subscribers that want everything
var AllTypes = []EventType{
	TriggerFired,
	AlertRaised,
	AlertResolved,
	RebalanceCompleted,
	RebalanceFailed,
	RebalanceCancelled,
	MonitorCycleCompleted,
	MonitoringStatusChanged,
	OptimizationCompleted,
}

// Event is a published event with typed data
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
}
