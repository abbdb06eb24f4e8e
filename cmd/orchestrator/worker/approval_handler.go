package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// ApprovalID derives the coordinator key for a node-scoped suspension. The
// node id alone is not unique across concurrent runs.
func ApprovalID(runID, nodeID string) string {
	return fmt.Sprintf("%s:%s", runID, nodeID)
}

// ApprovalHandlerOpts configures the approval node handler.
type ApprovalHandlerOpts struct {
	Coordinator    *approval.Coordinator
	Resolver       *resolver.Resolver
	Clock          sdk.Clock
	DefaultTimeout time.Duration
	Logger         sdk.Logger
}

// ApprovalHandler registers a pending approval and asks the engine to
// suspend the run until a decision arrives.
type ApprovalHandler struct {
	coordinator    *approval.Coordinator
	resolver       *resolver.Resolver
	clock          sdk.Clock
	defaultTimeout time.Duration
	logger         sdk.Logger
}

// NewApprovalHandler creates the approval node handler
func NewApprovalHandler(opts ApprovalHandlerOpts) *ApprovalHandler {
	return &ApprovalHandler{
		coordinator:    opts.Coordinator,
		resolver:       opts.Resolver,
		clock:          opts.Clock,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}
}

func (h *ApprovalHandler) Type() string {
	return models.NodeTypeApproval
}

type approvalConfig struct {
	Message        string                 `mapstructure:"message"`
	Approvers      []string               `mapstructure:"approvers"`
	TimeoutMinutes int                    `mapstructure:"timeoutMinutes"`
	Context        map[string]interface{} `mapstructure:"context"`
}

func (h *ApprovalHandler) Execute(_ context.Context, ec *ExecutionContext) (*Result, error) {
	var cfg approvalConfig
	if err := DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid approval node config", err)
	}

	message := h.resolver.Interpolate(cfg.Message, ec.Results)

	timeout := h.defaultTimeout
	if cfg.TimeoutMinutes > 0 {
		timeout = time.Duration(cfg.TimeoutMinutes) * time.Minute
	}

	now := h.clock.Now()
	var deadline *time.Time
	if timeout > 0 {
		d := now.Add(timeout)
		deadline = &d
	}

	approvalID := ApprovalID(ec.RunID, ec.Node.ID)
	signal := h.coordinator.RequestApproval(approval.Request{
		ApprovalID: approvalID,
		RunID:      ec.RunID,
		NodeID:     ec.Node.ID,
		Message:    message,
		Approvers:  cfg.Approvers,
		Context:    cfg.Context,
		Deadline:   deadline,
	})

	state := models.PendingApprovalState{
		ApprovalID:  approvalID,
		NodeID:      ec.Node.ID,
		Message:     message,
		Approvers:   cfg.Approvers,
		Context:     cfg.Context,
		RequestedAt: now,
		Deadline:    deadline,
	}

	return &Result{Suspension: &Suspension{State: state, Signal: signal}}, nil
}

// DecisionOutput shapes an approval decision into the approval node's
// output value.
func DecisionOutput(decision approval.Decision) map[string]interface{} {
	out := map[string]interface{}{
		"approved": decision.Approved,
	}
	if decision.ApprovedBy != "" {
		out["approvedBy"] = decision.ApprovedBy
	}
	if !decision.DecidedAt.IsZero() {
		out["approvedAt"] = decision.DecidedAt.UTC().Format(time.RFC3339)
	}
	if decision.Reason != "" {
		out["approvalReason"] = decision.Reason
	}
	if decision.Data != nil {
		out["approvalData"] = decision.Data
	}
	return out
}
