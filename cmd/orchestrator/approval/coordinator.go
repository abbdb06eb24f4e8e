package approval

import (
	"sync"
	"time"

	"github.com/weftlabs/weft/common/sdk"
)

// Decision is the outcome delivered to a suspended approval node.
type Decision struct {
	Approved   bool                   `json:"approved"`
	ApprovedBy string                 `json:"approvedBy,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	DecidedAt  time.Time              `json:"decidedAt"`
}

// Request describes a pending approval awaiting a human decision.
type Request struct {
	ApprovalID string
	RunID      string
	NodeID     string
	ToolName   string
	Message    string
	Approvers  []string
	Args       map[string]interface{}
	Context    map[string]interface{}
	SessionID  string
	Deadline   *time.Time
}

type pendingApproval struct {
	request Request
	signal  chan Decision
}

// Coordinator is the process-wide registry of pending approvals. Each
// pending approval owns a buffered single-assignment signal: exactly one
// decision is ever delivered, and delivery removes the record, so a late
// Decide after an expiry (or the reverse) reports false instead of blocking.
// Durable pending state lives in the run snapshot, not here; after a process
// restart the resume path re-registers the approval before deciding it.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[string]*pendingApproval
	recorded map[string]string // approvalId -> toolName, out-of-band grants
	clock    sdk.Clock
	logger   sdk.Logger
}

// NewCoordinator creates an approval coordinator
func NewCoordinator(clock sdk.Clock, logger sdk.Logger) *Coordinator {
	return &Coordinator{
		pending:  make(map[string]*pendingApproval),
		recorded: make(map[string]string),
		clock:    clock,
		logger:   logger,
	}
}

// RequestApproval registers a pending approval and returns its completion
// signal. Re-requesting an id that is already pending returns the existing
// signal, which lets the resume path reconstruct a record after a restart
// without racing a concurrent registration.
func (c *Coordinator) RequestApproval(req Request) <-chan Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.pending[req.ApprovalID]; ok {
		return existing.signal
	}

	p := &pendingApproval{
		request: req,
		signal:  make(chan Decision, 1),
	}
	c.pending[req.ApprovalID] = p

	c.logger.Info("approval requested",
		"approval_id", req.ApprovalID,
		"run_id", req.RunID,
		"node_id", req.NodeID)

	return p.signal
}

// Decide delivers a decision into the waiting signal and removes the
// record. Returns false when no approval with that id is pending.
func (c *Coordinator) Decide(approvalID string, decision Decision) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[approvalID]
	if !ok {
		return false
	}

	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = c.clock.Now()
	}

	// Buffered send cannot block: the record is removed in the same
	// critical section, so this is the only delivery for this signal.
	p.signal <- decision
	delete(c.pending, approvalID)

	c.logger.Info("approval decided",
		"approval_id", approvalID,
		"approved", decision.Approved,
		"reason", decision.Reason)

	return true
}

// Reject resolves a pending approval as denied with the given reason. Used
// by run cancellation. Returns false when a decision already landed.
func (c *Coordinator) Reject(approvalID, reason string) bool {
	return c.Decide(approvalID, Decision{Approved: false, Reason: reason})
}

// Expire resolves a pending approval as timed out. Returns false when a
// decision raced in first, in which case the real decision is already
// buffered in the signal.
func (c *Coordinator) Expire(approvalID string) bool {
	return c.Decide(approvalID, Decision{Approved: false, Reason: "timeout"})
}

// Pending returns a copy of the request for a pending approval.
func (c *Coordinator) Pending(approvalID string) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[approvalID]
	if !ok {
		return Request{}, false
	}
	return p.request, true
}

// PendingCount returns the number of approvals awaiting a decision.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Record marks an out-of-band approval grant for a tool call, to be claimed
// later by Consume.
func (c *Coordinator) Record(approvalID, toolName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorded[approvalID] = toolName
}

// Consume atomically checks for a recorded grant matching the id and tool
// name and removes it. Returns true when a grant had been recorded.
func (c *Coordinator) Consume(approvalID, toolName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	recorded, ok := c.recorded[approvalID]
	if !ok || recorded != toolName {
		return false
	}
	delete(c.recorded, approvalID)
	return true
}
