package compensation

import (
	"context"
	"sync"

	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// Executor runs a single undo action against the tool layer.
type Executor func(ctx context.Context, action string, args map[string]interface{}) error

// Plan accumulates undo actions as side-effecting nodes complete. Entries
// are appended in execution order and rolled back in reverse. The plan is
// safe for concurrent appends from parallel body nodes.
type Plan struct {
	mu      sync.Mutex
	entries []models.CompensationEntry
}

// NewPlan creates an empty compensation plan
func NewPlan() *Plan {
	return &Plan{}
}

// NewPlanFrom rebuilds a plan from a persisted snapshot.
func NewPlanFrom(entries []models.CompensationEntry) *Plan {
	p := &Plan{entries: make([]models.CompensationEntry, len(entries))}
	copy(p.entries, entries)
	return p
}

// Add appends an undo entry in forward execution order.
func (p *Plan) Add(entry models.CompensationEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
}

// Len returns the number of recorded entries.
func (p *Plan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a copy of the plan in forward order, for snapshots.
func (p *Plan) Entries() []models.CompensationEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.CompensationEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// RollbackOrder returns a reversed copy of the plan. The plan itself is not
// mutated, so a failed rollback can be retried from the same snapshot.
func (p *Plan) RollbackOrder() []models.CompensationEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.CompensationEntry, len(p.entries))
	for i, entry := range p.entries {
		out[len(p.entries)-1-i] = entry
	}
	return out
}

// Engine executes compensation plans when a run fails or is cancelled.
type Engine struct {
	logger sdk.Logger
}

// NewEngine creates a compensation engine
func NewEngine(logger sdk.Logger) *Engine {
	return &Engine{logger: logger}
}

// Run invokes exec for each entry in LIFO order, best-effort: a failing
// entry is recorded and rollback continues with the remaining entries. The
// input slice is never mutated.
func (e *Engine) Run(ctx context.Context, entries []models.CompensationEntry, exec Executor) *models.CompensationSummary {
	summary := &models.CompensationSummary{
		Total:   len(entries),
		Results: make([]models.CompensationResult, 0, len(entries)),
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		result := models.CompensationResult{
			NodeID:           entry.NodeID,
			CompensateAction: entry.CompensateAction,
		}

		if err := exec(ctx, entry.CompensateAction, entry.CompensateArgs); err != nil {
			e.logger.Warn("compensation action failed, continuing rollback",
				"node_id", entry.NodeID,
				"action", entry.CompensateAction,
				"error", err)
			result.Error = err.Error()
			summary.Failed++
		} else {
			e.logger.Info("compensation action succeeded",
				"node_id", entry.NodeID,
				"action", entry.CompensateAction)
			result.Success = true
			summary.Succeeded++
		}

		summary.Results = append(summary.Results, result)
	}

	return summary
}
