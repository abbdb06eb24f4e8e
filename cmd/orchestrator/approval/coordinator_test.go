package approval

import (
	"testing"
	"time"

	"github.com/weftlabs/weft/common/sdk"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

func newTestCoordinator() *Coordinator {
	return NewCoordinator(sdk.SystemClock{}, nopLogger{})
}

func TestRequestAndDecide(t *testing.T) {
	c := newTestCoordinator()

	signal := c.RequestApproval(Request{
		ApprovalID: "appr-1",
		RunID:      "run-1",
		NodeID:     "gate",
		Message:    "release to prod?",
	})

	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", c.PendingCount())
	}

	if !c.Decide("appr-1", Decision{Approved: true, ApprovedBy: "alice"}) {
		t.Fatal("Decide returned false for pending approval")
	}

	select {
	case decision := <-signal:
		if !decision.Approved || decision.ApprovedBy != "alice" {
			t.Errorf("decision = %+v, want approved by alice", decision)
		}
		if decision.DecidedAt.IsZero() {
			t.Error("DecidedAt not stamped")
		}
	default:
		t.Fatal("signal empty after Decide")
	}

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() after decide = %d, want 0", c.PendingCount())
	}
}

func TestDecideUnknownApproval(t *testing.T) {
	c := newTestCoordinator()

	if c.Decide("missing", Decision{Approved: true}) {
		t.Error("Decide returned true for unknown approval")
	}
}

func TestDecideIsSingleAssignment(t *testing.T) {
	c := newTestCoordinator()
	signal := c.RequestApproval(Request{ApprovalID: "appr-1", RunID: "run-1", NodeID: "gate"})

	if !c.Decide("appr-1", Decision{Approved: true}) {
		t.Fatal("first Decide failed")
	}
	if c.Decide("appr-1", Decision{Approved: false}) {
		t.Error("second Decide succeeded, record not removed")
	}

	decision := <-signal
	if !decision.Approved {
		t.Errorf("delivered decision = %+v, want the first one", decision)
	}
}

func TestRequestApprovalIsIdempotent(t *testing.T) {
	c := newTestCoordinator()

	first := c.RequestApproval(Request{ApprovalID: "appr-1", RunID: "run-1", NodeID: "gate"})
	second := c.RequestApproval(Request{ApprovalID: "appr-1", RunID: "run-1", NodeID: "gate"})

	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", c.PendingCount())
	}

	c.Decide("appr-1", Decision{Approved: true})

	// Both callers observe the same signal
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("first signal never resolved")
	}
	select {
	case <-second:
	default:
		// second is the same channel; the buffered decision was already
		// drained above
	}
}

func TestExpireResolvesTimeout(t *testing.T) {
	c := newTestCoordinator()
	signal := c.RequestApproval(Request{ApprovalID: "appr-1", RunID: "run-1", NodeID: "gate"})

	if !c.Expire("appr-1") {
		t.Fatal("Expire returned false for pending approval")
	}

	decision := <-signal
	if decision.Approved {
		t.Error("expired approval reported approved")
	}
	if decision.Reason != "timeout" {
		t.Errorf("reason = %q, want %q", decision.Reason, "timeout")
	}
}

func TestExpireLosesRaceToDecision(t *testing.T) {
	c := newTestCoordinator()
	signal := c.RequestApproval(Request{ApprovalID: "appr-1", RunID: "run-1", NodeID: "gate"})

	c.Decide("appr-1", Decision{Approved: true, ApprovedBy: "bob"})

	if c.Expire("appr-1") {
		t.Fatal("Expire won after a decision had landed")
	}

	// The real decision is still buffered for the waiter
	decision := <-signal
	if !decision.Approved || decision.ApprovedBy != "bob" {
		t.Errorf("decision = %+v, want bob's approval", decision)
	}
}

func TestRejectCarriesReason(t *testing.T) {
	c := newTestCoordinator()
	signal := c.RequestApproval(Request{ApprovalID: "appr-1", RunID: "run-1", NodeID: "gate"})

	if !c.Reject("appr-1", "run cancelled") {
		t.Fatal("Reject returned false")
	}

	decision := <-signal
	if decision.Approved || decision.Reason != "run cancelled" {
		t.Errorf("decision = %+v, want rejected with reason", decision)
	}
}

func TestRecordAndConsume(t *testing.T) {
	c := newTestCoordinator()

	c.Record("call-1", "payments.charge")

	if c.Consume("call-1", "other.tool") {
		t.Error("Consume matched wrong tool name")
	}
	if !c.Consume("call-1", "payments.charge") {
		t.Error("Consume missed recorded grant")
	}
	if c.Consume("call-1", "payments.charge") {
		t.Error("Consume returned true twice, grant not removed")
	}
}

func TestPendingSnapshot(t *testing.T) {
	c := newTestCoordinator()
	deadline := time.Now().Add(time.Hour)

	c.RequestApproval(Request{
		ApprovalID: "appr-1",
		RunID:      "run-1",
		NodeID:     "gate",
		Message:    "ship it?",
		Approvers:  []string{"alice"},
		Deadline:   &deadline,
	})

	req, ok := c.Pending("appr-1")
	if !ok {
		t.Fatal("Pending returned false for registered approval")
	}
	if req.Message != "ship it?" || req.Deadline == nil {
		t.Errorf("request = %+v, want message and deadline preserved", req)
	}

	if _, ok := c.Pending("missing"); ok {
		t.Error("Pending returned true for unknown id")
	}
}
