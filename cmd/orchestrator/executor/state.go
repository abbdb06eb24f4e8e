package executor

import (
	"time"

	"github.com/weftlabs/weft/cmd/orchestrator/compensation"
	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/common/models"
)

// runState is the mutable execution state of one run task. Only the
// task goroutine touches it; parallel bodies work on forked scopes and
// hand results back through their controller's handler.
type runState struct {
	plan *compiler.ExecutionPlan
	run  *models.WorkflowRun

	results      map[string]interface{}
	skipped      map[string]bool
	skippedOrder []string
	comp         *compensation.Plan
	stepCount    int

	// output is the most recent completed output node's result;
	// lastExecuted backs the no-output-node fallback.
	output       interface{}
	hasOutput    bool
	lastExecuted string

	nodeTimeout time.Duration
}

func newRunState(plan *compiler.ExecutionPlan, run *models.WorkflowRun, nodeTimeout time.Duration) *runState {
	return &runState{
		plan:        plan,
		run:         run,
		results:     map[string]interface{}{"input": run.Input},
		skipped:     make(map[string]bool),
		comp:        compensation.NewPlan(),
		nodeTimeout: nodeTimeout,
	}
}

// restoreRunState rebuilds execution state from the run's engine-state
// snapshot for a cross-process resume.
func restoreRunState(plan *compiler.ExecutionPlan, run *models.WorkflowRun) *runState {
	st := &runState{
		plan:    plan,
		run:     run,
		results: make(map[string]interface{}),
		skipped: make(map[string]bool),
		comp:    compensation.NewPlan(),
	}

	es := run.EngineState
	if es == nil {
		st.results["input"] = run.Input
		return st
	}

	for k, v := range es.StepResults {
		st.results[k] = v
	}
	if _, ok := st.results["input"]; !ok {
		st.results["input"] = run.Input
	}

	for _, id := range es.Skipped {
		st.skipped[id] = true
		st.skippedOrder = append(st.skippedOrder, id)
	}

	st.comp = compensation.NewPlanFrom(es.Compensation)
	st.stepCount = es.StepCount

	// An output node may already have completed before the suspension.
	for _, id := range plan.OutputIDs {
		if out, ok := st.results[id]; ok && !st.skipped[id] {
			st.output = out
			st.hasOutput = true
		}
	}

	return st
}

func (st *runState) markSkipped(nodeID string) {
	st.skipped[nodeID] = true
	st.skippedOrder = append(st.skippedOrder, nodeID)
	st.results[nodeID] = nil
}

// snapshot captures the full engine state for persistence. Full-state
// snapshots mean a resume only ever needs the latest one.
func (st *runState) snapshot(pending *models.PendingApprovalState) *models.EngineState {
	results := make(map[string]interface{}, len(st.results))
	for k, v := range st.results {
		results[k] = v
	}

	skipped := make([]string, len(st.skippedOrder))
	copy(skipped, st.skippedOrder)

	return &models.EngineState{
		StepResults:     results,
		StepCount:       st.stepCount,
		Skipped:         skipped,
		Compensation:    st.comp.Entries(),
		PendingApproval: pending,
	}
}

// runOutput resolves the run's final output: the designated output
// node's result, falling back to the last executed node for graphs
// without one.
func (st *runState) runOutput() interface{} {
	if st.hasOutput {
		return st.output
	}
	if st.lastExecuted != "" {
		return st.results[st.lastExecuted]
	}
	return nil
}
