package models

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus represents the status of one observed node outcome
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// WorkflowStep is one observed node outcome within a run. StepNumber is
// contiguous and strictly increasing per run, assigned in the order
// outcomes are observed.
// Maps to: workflow_run_steps
type WorkflowStep struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	RunID           uuid.UUID  `db:"run_id" json:"runId"`
	NodeID          string     `db:"node_id" json:"nodeId"`
	NodeType        string     `db:"node_type" json:"nodeType"`
	StepNumber      int        `db:"step_number" json:"stepNumber"`
	Status          StepStatus `db:"status" json:"status"`
	Input           any        `db:"input" json:"input,omitempty"`
	Output          any        `db:"output" json:"output,omitempty"`
	Error           *string    `db:"error" json:"error,omitempty"`
	StartedAt       *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	DurationMs      int64      `db:"duration_ms" json:"durationMs"`
	ToolExecutionID *string    `db:"tool_execution_id" json:"toolExecutionId,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}
