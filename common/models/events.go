package models

import "time"

// TopicRunEvents is the in-process bus topic carrying run events. The
// Redis bridge subscribes here and forwards to the configured stream.
const TopicRunEvents = "run.events"

// EventType identifies a run lifecycle event
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunSuspended  EventType = "run.suspended"
	EventRunResumed    EventType = "run.resumed"
	EventRunCompleted  EventType = "run.completed"
	EventRunFailed     EventType = "run.failed"
	EventRunCancelled  EventType = "run.cancelled"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
	EventNodeSkipped   EventType = "node.skipped"
)

// RunEvent is published to the in-process bus and bridged to Redis for
// external subscribers (the fan-out service, dashboards).
type RunEvent struct {
	Type       EventType      `json:"type"`
	RunID      string         `json:"runId"`
	WorkflowID string         `json:"workflowId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	NodeID     string         `json:"nodeId,omitempty"`
	NodeType   string         `json:"nodeType,omitempty"`
	StepNumber int            `json:"stepNumber,omitempty"`
	Status     string         `json:"status,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}
