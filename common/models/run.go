package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a workflow run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSuspended RunStatus = "suspended"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Owner is the tenant scope applied to reads and stamped onto writes
type Owner struct {
	UserID string `json:"userId,omitempty"`
	OrgID  string `json:"orgId,omitempty"`
}

// RunError is the JSON-encoded terminal error of a failed run
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
}

// PendingApprovalState is the durable pointer to a suspension point,
// stored inside the engine-state snapshot so a resume can reconstruct
// the approval on any process instance.
type PendingApprovalState struct {
	ApprovalID  string         `json:"approvalId"`
	NodeID      string         `json:"nodeId"`
	Message     string         `json:"message,omitempty"`
	ToolName    string         `json:"toolName,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Approvers   []string       `json:"approvers,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
}

// EngineState is the full-state snapshot written after every node
// outcome. Resume needs only the latest snapshot.
type EngineState struct {
	StepResults     map[string]any        `json:"stepResults"`
	StepCount       int                   `json:"stepCount"`
	Skipped         []string              `json:"skipped,omitempty"`
	Compensation    []CompensationEntry   `json:"compensation,omitempty"`
	PendingApproval *PendingApprovalState `json:"pendingApproval,omitempty"`
}

// WorkflowRun is one execution of a definition against one input.
// Maps to: workflow_runs
type WorkflowRun struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	WorkflowID      uuid.UUID    `db:"workflow_id" json:"workflowId"`
	WorkflowVersion int          `db:"workflow_version" json:"workflowVersion"`
	UserID          *string      `db:"user_id" json:"userId,omitempty"`
	OrgID           *string      `db:"org_id" json:"orgId,omitempty"`
	Status          RunStatus    `db:"status" json:"status"`
	Input           any          `db:"input" json:"input,omitempty"`
	Output          any          `db:"output" json:"output,omitempty"`
	Error           *RunError    `db:"error" json:"error,omitempty"`
	EngineState     *EngineState `db:"engine_state" json:"engineState,omitempty"`
	StartedAt       *time.Time   `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt     *time.Time   `db:"completed_at" json:"completedAt,omitempty"`
	SuspendedAt     *time.Time   `db:"suspended_at" json:"suspendedAt,omitempty"`
	ResumedAt       *time.Time   `db:"resumed_at" json:"resumedAt,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}
