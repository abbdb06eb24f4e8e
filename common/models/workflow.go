package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus represents the lifecycle state of a definition
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "draft"
	WorkflowPublished WorkflowStatus = "published"
	WorkflowArchived  WorkflowStatus = "archived"
)

// Node types understood by the engine
const (
	NodeTypeInput     = "input"
	NodeTypeOutput    = "output"
	NodeTypeAIStep    = "ai-step"
	NodeTypeTool      = "tool"
	NodeTypeCondition = "condition"
	NodeTypeLoop      = "loop"
	NodeTypeParallel  = "parallel"
	NodeTypeApproval  = "approval"
	NodeTypeDelay     = "delay"
	NodeTypeWebhook   = "webhook"
)

// Position is the designer layout coordinate, opaque to the engine
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one vertex of a workflow graph. Data's shape depends on Type
// and is decoded into typed config structs by the node handlers.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
	Position Position       `json:"position,omitempty"`
}

// Edge connects two nodes. Label selects condition branches ("true",
// "false", a case value, "default") and marks loop bodies ("body").
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// RetryPolicy controls re-invocation of a failed node handler.
// Zero-valued fields fall back to the engine defaults; a node without
// a policy runs exactly once.
type RetryPolicy struct {
	MaxAttempts       int     `json:"maxAttempts" mapstructure:"maxAttempts"`
	BackoffMs         int     `json:"backoffMs" mapstructure:"backoffMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier" mapstructure:"backoffMultiplier"`
	MaxBackoffMs      int     `json:"maxBackoffMs" mapstructure:"maxBackoffMs"`
}

// WorkflowDefinition is the stored graph a run executes against.
// Maps to: workflow_definitions
type WorkflowDefinition struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	UserID      *string        `db:"user_id" json:"userId,omitempty"`
	OrgID       *string        `db:"org_id" json:"orgId,omitempty"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description,omitempty"`
	Status      WorkflowStatus `db:"status" json:"status"`
	Version     int            `db:"version" json:"version"`
	Tags        []string       `db:"tags" json:"tags,omitempty"`
	Nodes       []Node         `db:"nodes" json:"nodes"`
	Edges       []Edge         `db:"edges" json:"edges"`
	InputSchema map[string]any `db:"input_schema" json:"inputSchema,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// NodeByID returns the node with the given id, if present
func (d *WorkflowDefinition) NodeByID(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// InputNode returns the single input-type node when the definition has
// exactly one; ok is false otherwise.
func (d *WorkflowDefinition) InputNode() (*Node, bool) {
	var found *Node
	for i := range d.Nodes {
		if d.Nodes[i].Type == NodeTypeInput {
			if found != nil {
				return nil, false
			}
			found = &d.Nodes[i]
		}
	}
	return found, found != nil
}
