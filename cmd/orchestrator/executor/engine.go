// Package executor runs compiled workflow plans. One goroutine owns each
// active run: it walks the plan in topological order, dispatches node
// handlers, persists a step record and a full engine-state snapshot after
// every node outcome, and parks on approval signals when a node suspends
// the run.
package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/compensation"
	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/metrics"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/queue"
	"github.com/weftlabs/weft/common/repository"
	"github.com/weftlabs/weft/common/sdk"
)

// RunStore is the run persistence surface the engine writes through.
type RunStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, patch repository.RunStatusPatch) (*models.WorkflowRun, error)
}

// StepStore records observed node outcomes.
type StepStore interface {
	Append(ctx context.Context, step *models.WorkflowStep) error
}

// Outcome is what a run task reports back: the first of suspended or a
// terminal status. A suspended run keeps executing in the background;
// later outcomes reach whoever is waiting on Resume.
type Outcome struct {
	RunID        uuid.UUID
	Status       models.RunStatus
	Output       interface{}
	ApprovalID   string
	Err          error
	Compensation *models.CompensationSummary
}

// Options tune a single Execute call.
type Options struct {
	// NodeTimeout overrides the engine-wide per-node ceiling when > 0.
	NodeTimeout time.Duration
}

// Opts configures the engine.
type Opts struct {
	Handlers    []worker.Handler
	Runs        RunStore
	Steps       StepStore
	Approvals   *approval.Coordinator
	Compensator *compensation.Engine
	Tools       sdk.ToolExecutor
	Bus         queue.Queue
	Clock       sdk.Clock
	NewID       sdk.IDFunc
	Logger      *logger.Logger
	Config      config.EngineConfig
}

// Engine executes workflow runs. Safe for concurrent use; each run gets
// its own task goroutine and no run touches another run's state.
type Engine struct {
	handlers    map[string]worker.Handler
	runs        RunStore
	steps       StepStore
	approvals   *approval.Coordinator
	compensator *compensation.Engine
	tools       sdk.ToolExecutor
	bus         queue.Queue
	clock       sdk.Clock
	newID       sdk.IDFunc
	logger      *logger.Logger
	cfg         config.EngineConfig

	// slots bounds simultaneously active runs; parked runs hold no slot.
	slots chan struct{}

	mu     sync.Mutex
	active map[uuid.UUID]*activeRun

	// jitter spreads retry backoff; tests replace it with identity.
	jitter func(time.Duration) time.Duration
}

// New creates a workflow engine
func New(opts Opts) *Engine {
	handlers := make(map[string]worker.Handler, len(opts.Handlers))
	for _, h := range opts.Handlers {
		handlers[h.Type()] = h
	}

	maxRuns := opts.Config.MaxConcurrentRuns
	if maxRuns < 1 {
		maxRuns = 1
	}

	newID := opts.NewID
	if newID == nil {
		newID = sdk.NewID
	}

	return &Engine{
		handlers:    handlers,
		runs:        opts.Runs,
		steps:       opts.Steps,
		approvals:   opts.Approvals,
		compensator: opts.Compensator,
		tools:       opts.Tools,
		bus:         opts.Bus,
		clock:       opts.Clock,
		newID:       newID,
		logger:      opts.Logger,
		cfg:         opts.Config,
		slots:       make(chan struct{}, maxRuns),
		active:      make(map[uuid.UUID]*activeRun),
		jitter: func(d time.Duration) time.Duration {
			offset := float64(d) * 0.2 * (rand.Float64()*2 - 1)
			return d + time.Duration(offset)
		},
	}
}

// Execute starts a run task for the given plan and blocks until the run
// suspends or terminates, whichever comes first. The task outlives a
// cancelled caller context: the run keeps executing and persisting, only
// the wait is abandoned.
func (e *Engine) Execute(ctx context.Context, plan *compiler.ExecutionPlan, run *models.WorkflowRun, opts Options) (*Outcome, error) {
	if run.ID == uuid.Nil {
		run.ID = e.newID()
	}

	if err := e.acquire(ctx); err != nil {
		return nil, err
	}

	ar, err := e.register(run.ID)
	if err != nil {
		e.release()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar.cancel = cancel

	st := newRunState(plan, run, opts.NodeTimeout)
	waiter := ar.addWaiter()

	go e.runTask(runCtx, st, func(taskCtx context.Context) *Outcome {
		return e.runLoop(taskCtx, st, 0)
	})

	return e.wait(ctx, ar, waiter)
}

// Resume delivers an approval decision into a suspended run and blocks
// until the run's next outcome. When the run's task is parked in this
// process the decision travels through the coordinator; otherwise the
// run is rebuilt from its engine-state snapshot and continued here.
func (e *Engine) Resume(ctx context.Context, plan *compiler.ExecutionPlan, run *models.WorkflowRun, decision approval.Decision) (*Outcome, error) {
	pending := pendingApproval(run)
	if pending == nil {
		return nil, apperr.Newf(apperr.KindConflict, "run %s has no pending approval", run.ID)
	}

	if ar := e.lookup(run.ID); ar != nil {
		waiter := ar.addWaiter()
		// A false return means expiry or cancellation raced the decision
		// in; the parked task is already continuing and the waiter will
		// observe whatever outcome it produces.
		e.approvals.Decide(pending.ApprovalID, decision)
		return e.wait(ctx, ar, waiter)
	}

	return e.resumeDetached(ctx, plan, run, pending, decision)
}

// resumeDetached continues a run whose original task lives in another
// process (or died with it): state is rebuilt from the snapshot and the
// approval node's output synthesized from the decision.
func (e *Engine) resumeDetached(ctx context.Context, plan *compiler.ExecutionPlan, run *models.WorkflowRun, pending *models.PendingApprovalState, decision approval.Decision) (*Outcome, error) {
	pn, ok := plan.Nodes[pending.NodeID]
	if !ok {
		return nil, apperr.Newf(apperr.KindInternal, "run snapshot references unknown node %s", pending.NodeID)
	}

	start := -1
	for i, id := range plan.Order {
		if id == pending.NodeID {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, apperr.Newf(apperr.KindInternal, "suspended node %s is not in the execution order", pending.NodeID)
	}

	if err := e.acquire(ctx); err != nil {
		return nil, err
	}

	ar, err := e.register(run.ID)
	if err != nil {
		e.release()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar.cancel = cancel

	st := restoreRunState(plan, run)
	waiter := ar.addWaiter()

	go e.runTask(runCtx, st, func(taskCtx context.Context) *Outcome {
		if out := e.applyDecision(taskCtx, st, pn, decision); out != nil {
			return out
		}
		return e.runLoop(taskCtx, st, start)
	})

	return e.wait(ctx, ar, waiter)
}

// Cancel requests cancellation of an active run. Returns false when the
// run is not executing in this process.
func (e *Engine) Cancel(runID uuid.UUID) bool {
	ar := e.lookup(runID)
	if ar == nil {
		return false
	}
	ar.cancel()
	return true
}

// Active reports whether this process owns the run's task.
func (e *Engine) Active(runID uuid.UUID) bool {
	return e.lookup(runID) != nil
}

// Watch registers for the run's next outcome. ok is false when the run
// is not active in this process.
func (e *Engine) Watch(ctx context.Context, runID uuid.UUID) (*Outcome, error) {
	ar := e.lookup(runID)
	if ar == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "run %s is not active", runID)
	}
	return e.wait(ctx, ar, ar.addWaiter())
}

// runTask drives one run on its own goroutine. Terminal outcomes are
// delivered to waiters here; suspension outcomes are delivered inside
// the loop before the task parks.
func (e *Engine) runTask(ctx context.Context, st *runState, body func(context.Context) *Outcome) {
	defer e.release()
	defer e.unregister(st.run.ID)

	rm := metrics.CaptureStart()
	out := body(ctx)
	rm.Finalize()
	e.logger.Debug("run task finished", "run_id", st.run.ID, "usage", rm.ToMap())

	if out != nil {
		e.deliver(st.run.ID, *out)
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindCancelled, "gave up waiting for a run slot", ctx.Err())
	}
}

func (e *Engine) release() {
	<-e.slots
}

func (e *Engine) register(runID uuid.UUID) (*activeRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.active[runID]; exists {
		return nil, apperr.Newf(apperr.KindConflict, "run %s is already executing", runID)
	}

	ar := &activeRun{runID: runID}
	e.active[runID] = ar
	return ar, nil
}

func (e *Engine) unregister(runID uuid.UUID) {
	e.mu.Lock()
	ar := e.active[runID]
	delete(e.active, runID)
	e.mu.Unlock()

	if ar != nil && ar.cancel != nil {
		ar.cancel()
	}
}

func (e *Engine) lookup(runID uuid.UUID) *activeRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[runID]
}

func (e *Engine) deliver(runID uuid.UUID, out Outcome) {
	if ar := e.lookup(runID); ar != nil {
		ar.deliver(out)
	}
}

// wait blocks for the next outcome or the caller's context. The run task
// is unaffected by a caller that stops waiting.
func (e *Engine) wait(ctx context.Context, ar *activeRun, waiter chan Outcome) (*Outcome, error) {
	select {
	case out := <-waiter:
		return &out, nil
	case <-ctx.Done():
		ar.removeWaiter(waiter)
		return nil, ctx.Err()
	}
}

func pendingApproval(run *models.WorkflowRun) *models.PendingApprovalState {
	if run.EngineState == nil {
		return nil
	}
	return run.EngineState.PendingApproval
}

// activeRun tracks one run task and the callers waiting on its next
// outcome. Waiter channels are buffered so delivery never blocks the
// task.
type activeRun struct {
	runID  uuid.UUID
	cancel context.CancelFunc

	mu      sync.Mutex
	waiters []chan Outcome
}

func (ar *activeRun) addWaiter() chan Outcome {
	ch := make(chan Outcome, 1)
	ar.mu.Lock()
	ar.waiters = append(ar.waiters, ch)
	ar.mu.Unlock()
	return ch
}

func (ar *activeRun) removeWaiter(ch chan Outcome) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	for i, w := range ar.waiters {
		if w == ch {
			ar.waiters = append(ar.waiters[:i], ar.waiters[i+1:]...)
			return
		}
	}
}

// deliver hands the outcome to every registered waiter and clears the
// list; each waiter observes exactly one outcome per registration.
func (ar *activeRun) deliver(out Outcome) {
	ar.mu.Lock()
	waiters := ar.waiters
	ar.waiters = nil
	ar.mu.Unlock()

	for _, ch := range waiters {
		ch <- out
	}
}
