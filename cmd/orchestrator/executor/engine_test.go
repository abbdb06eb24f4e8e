package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/compensation"
	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/cmd/orchestrator/condition"
	"github.com/weftlabs/weft/cmd/orchestrator/operators"
	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/cmd/orchestrator/tools"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/queue"
	"github.com/weftlabs/weft/common/repository"
	"github.com/weftlabs/weft/common/sdk"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
	// blockAfter parks sleeps of at least this duration until the context
	// is cancelled; zero means every sleep returns immediately.
	blockAfter time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.slept = append(c.slept, d)
	block := c.blockAfter > 0 && d >= c.blockAfter
	if !block {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (c *fakeClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

// memRunStore keeps one run row in memory and mimics the repository's
// terminal guard: a terminal row never changes again and updates against
// it return nil.
type memRunStore struct {
	mu      sync.Mutex
	run     *models.WorkflowRun
	patches []repository.RunStatusPatch
	failOn  map[models.RunStatus]error
}

func newMemRunStore(run *models.WorkflowRun) *memRunStore {
	return &memRunStore{run: run, failOn: map[models.RunStatus]error{}}
}

func (s *memRunStore) UpdateStatus(_ context.Context, id uuid.UUID, patch repository.RunStatusPatch) (*models.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failOn[patch.Status]; ok && err != nil {
		return nil, err
	}
	if id != s.run.ID || s.run.Status.Terminal() {
		return nil, nil
	}

	s.patches = append(s.patches, patch)
	prev := s.run.Status
	now := patch.Now.UTC()

	s.run.Status = patch.Status
	s.run.Output = patch.Output
	s.run.Error = patch.Error
	s.run.EngineState = patch.EngineState
	s.run.UpdatedAt = now
	switch {
	case patch.Status == models.RunRunning:
		if s.run.StartedAt == nil {
			s.run.StartedAt = &now
		}
		if prev == models.RunSuspended {
			s.run.ResumedAt = &now
		}
	case patch.Status == models.RunSuspended:
		s.run.SuspendedAt = &now
	case patch.Status.Terminal():
		s.run.CompletedAt = &now
	}

	cp := *s.run
	return &cp, nil
}

func (s *memRunStore) current() models.WorkflowRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.run
}

func (s *memRunStore) statuses() []models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RunStatus, len(s.patches))
	for i, p := range s.patches {
		out[i] = p.Status
	}
	return out
}

type memStepStore struct {
	mu    sync.Mutex
	steps []*models.WorkflowStep
	err   error
}

func (s *memStepStore) Append(_ context.Context, step *models.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *step
	s.steps = append(s.steps, &cp)
	return nil
}

func (s *memStepStore) all() []*models.WorkflowStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.WorkflowStep, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *memStepStore) byNode(nodeID string) *models.WorkflowStep {
	for _, st := range s.all() {
		if st.NodeID == nodeID {
			return st
		}
	}
	return nil
}

// memBus records published run events in order.
type memBus struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func (b *memBus) Publish(_ context.Context, _ string, _ string, message []byte) error {
	var event models.RunEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

func (b *memBus) Subscribe(context.Context, string, queue.MessageHandler) error {
	return nil
}

func (b *memBus) Close() error { return nil }

func (b *memBus) types() []models.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

// callLog records tool invocations across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type testEnv struct {
	engine    *Engine
	runs      *memRunStore
	steps     *memStepStore
	bus       *memBus
	approvals *approval.Coordinator
	clock     *fakeClock
	registry  *tools.Registry
	calls     *callLog
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxConcurrentRuns: 4,
		NodeTimeout:       5 * time.Second,
		ApprovalTimeout:   time.Hour,
		RetryBackoff:      100 * time.Millisecond,
		RetryMultiplier:   2,
		RetryMaxBackoff:   time.Second,
	}
}

func newTestEnv(t *testing.T, run *models.WorkflowRun) *testEnv {
	t.Helper()

	clock := newFakeClock()
	registry := tools.NewRegistry(nopLogger{})
	coordinator := approval.NewCoordinator(clock, nopLogger{})
	res := resolver.NewResolver(nopLogger{})
	eval := condition.NewEvaluator(res)

	handlers := []worker.Handler{
		worker.NewInputHandler(),
		worker.NewOutputHandler(res),
		worker.NewToolHandler(registry, res, nopLogger{}),
		worker.NewDelayHandler(clock, nopLogger{}),
		worker.NewApprovalHandler(worker.ApprovalHandlerOpts{
			Coordinator:    coordinator,
			Resolver:       res,
			Clock:          clock,
			DefaultTimeout: 30 * time.Minute,
			Logger:         nopLogger{},
		}),
		operators.NewConditionHandler(eval, nopLogger{}),
		operators.NewLoopHandler(eval, res, nopLogger{}),
		operators.NewParallelHandler(nopLogger{}),
	}

	runs := newMemRunStore(run)
	steps := &memStepStore{}
	bus := &memBus{}

	engine := New(Opts{
		Handlers:    handlers,
		Runs:        runs,
		Steps:       steps,
		Approvals:   coordinator,
		Compensator: compensation.NewEngine(nopLogger{}),
		Tools:       registry,
		Bus:         bus,
		Clock:       clock,
		Logger:      logger.NewWithWriter(io.Discard, "error", "json"),
		Config:      testConfig(),
	})
	engine.jitter = func(d time.Duration) time.Duration { return d }

	return &testEnv{
		engine:    engine,
		runs:      runs,
		steps:     steps,
		bus:       bus,
		approvals: coordinator,
		clock:     clock,
		registry:  registry,
		calls:     &callLog{},
	}
}

func (env *testEnv) registerTool(t *testing.T, def *sdk.ToolDefinition) {
	t.Helper()
	if err := env.registry.Register(def); err != nil {
		t.Fatalf("Register(%s) failed: %v", def.Name, err)
	}
}

func (env *testEnv) recordingTool(t *testing.T, name string, result interface{}) {
	t.Helper()
	env.registerTool(t, &sdk.ToolDefinition{
		Name: name,
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			env.calls.add(name)
			return result, nil
		},
	})
}

func newRun(workflowVersion int) *models.WorkflowRun {
	return &models.WorkflowRun{
		ID:              uuid.New(),
		WorkflowID:      uuid.New(),
		WorkflowVersion: workflowVersion,
		Status:          models.RunPending,
		CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func mustCompile(t *testing.T, nodes []models.Node, edges []models.Edge) *compiler.ExecutionPlan {
	t.Helper()
	plan, err := compiler.Compile(&models.WorkflowDefinition{Name: "test", Nodes: nodes, Edges: edges})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return plan
}

func node(id, nodeType string, data map[string]interface{}) models.Node {
	if data == nil {
		data = map[string]interface{}{}
	}
	return models.Node{ID: id, Type: nodeType, Data: data}
}

func edge(source, target string) models.Edge {
	return models.Edge{Source: source, Target: target}
}

func labeledEdge(source, target, label string) models.Edge {
	return models.Edge{Source: source, Target: target, Label: label}
}

func waitTerminal(t *testing.T, env *testEnv, runID uuid.UUID) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for env.engine.Active(runID) {
		select {
		case <-deadline:
			t.Fatal("run did not finish in time")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestExecute_StraightLineRun(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"name": "Alice"}
	env := newTestEnv(t, run)
	env.recordingTool(t, "greet", map[string]interface{}{"greeting": "hello"})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeTool, map[string]interface{}{
				"toolName": "greet",
				"args":     map[string]interface{}{"who": "{{in.name}}"},
			}),
			node("out", models.NodeTypeOutput, map[string]interface{}{
				"bindings": map[string]interface{}{"value": "{{work.greeting}}"},
			}),
		},
		[]models.Edge{edge("in", "work"), edge("work", "out")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
	}
	if outcome.Output != "hello" {
		t.Errorf("output = %#v, want %q", outcome.Output, "hello")
	}

	steps := env.steps.all()
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i, step := range steps {
		if step.StepNumber != i+1 {
			t.Errorf("step %d number = %d, want %d", i, step.StepNumber, i+1)
		}
		if step.Status != models.StepCompleted {
			t.Errorf("step %s status = %s, want completed", step.NodeID, step.Status)
		}
		if step.RunID != run.ID {
			t.Errorf("step %s run id = %s, want %s", step.NodeID, step.RunID, run.ID)
		}
	}
	if steps[0].NodeID != "in" || steps[1].NodeID != "work" || steps[2].NodeID != "out" {
		t.Errorf("step order = %s,%s,%s", steps[0].NodeID, steps[1].NodeID, steps[2].NodeID)
	}

	final := env.runs.current()
	if final.Status != models.RunCompleted {
		t.Errorf("persisted status = %s, want completed", final.Status)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Error("startedAt and completedAt should both be set")
	}
	if final.Output != "hello" {
		t.Errorf("persisted output = %#v, want %q", final.Output, "hello")
	}

	sts := env.runs.statuses()
	if len(sts) == 0 || sts[0] != models.RunRunning || sts[len(sts)-1] != models.RunCompleted {
		t.Errorf("status sequence = %v, want running first and completed last", sts)
	}

	types := env.bus.types()
	want := []models.EventType{
		models.EventRunStarted,
		models.EventNodeStarted, models.EventNodeCompleted,
		models.EventNodeStarted, models.EventNodeCompleted,
		models.EventNodeStarted, models.EventNodeCompleted,
		models.EventRunCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestExecute_ConditionSkipsDeadBranch(t *testing.T) {
	for _, tc := range []struct {
		name      string
		threshold float64
		wantRun   string
		wantSkip  string
	}{
		{name: "true branch", threshold: 10, wantRun: "big", wantSkip: "small"},
		{name: "false branch", threshold: 100, wantRun: "small", wantSkip: "big"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			run := newRun(1)
			run.Input = map[string]interface{}{"amount": float64(50), "threshold": tc.threshold}
			env := newTestEnv(t, run)
			env.recordingTool(t, "big", map[string]interface{}{"path": "big"})
			env.recordingTool(t, "small", map[string]interface{}{"path": "small"})

			plan := mustCompile(t,
				[]models.Node{
					node("in", models.NodeTypeInput, nil),
					node("check", models.NodeTypeCondition, map[string]interface{}{
						"expression": "{{in.amount}} > {{in.threshold}}",
					}),
					node("big", models.NodeTypeTool, map[string]interface{}{"toolName": "big"}),
					node("small", models.NodeTypeTool, map[string]interface{}{"toolName": "small"}),
					node("out", models.NodeTypeOutput, nil),
				},
				[]models.Edge{
					edge("in", "check"),
					labeledEdge("check", "big", "true"),
					labeledEdge("check", "small", "false"),
					edge("big", "out"),
					edge("small", "out"),
				},
			)

			outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if outcome.Status != models.RunCompleted {
				t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
			}

			calls := env.calls.list()
			if len(calls) != 1 || calls[0] != tc.wantRun {
				t.Errorf("tool calls = %v, want [%s]", calls, tc.wantRun)
			}

			ran := env.steps.byNode(tc.wantRun)
			if ran == nil || ran.Status != models.StepCompleted {
				t.Errorf("node %s should have a completed step", tc.wantRun)
			}
			skipped := env.steps.byNode(tc.wantSkip)
			if skipped == nil {
				t.Fatalf("node %s should have a step record", tc.wantSkip)
			}
			if skipped.Status != models.StepSkipped {
				t.Errorf("node %s step status = %s, want skipped", tc.wantSkip, skipped.Status)
			}
			if skipped.Output != nil {
				t.Errorf("skipped step output = %#v, want nil", skipped.Output)
			}

			// Five nodes, five steps, numbered without gaps.
			steps := env.steps.all()
			if len(steps) != 5 {
				t.Fatalf("got %d steps, want 5", len(steps))
			}
			for i, step := range steps {
				if step.StepNumber != i+1 {
					t.Errorf("step %d number = %d, want %d", i, step.StepNumber, i+1)
				}
			}
		})
	}
}

func TestExecute_SkipCascadesThroughDownstream(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"flag": false}
	env := newTestEnv(t, run)
	env.recordingTool(t, "a", "a-done")
	env.recordingTool(t, "b", "b-done")

	// check -> a -> b all sit on the dead branch; both a and b skip.
	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("check", models.NodeTypeCondition, map[string]interface{}{"expression": "{{in.flag}} == true"}),
			node("a", models.NodeTypeTool, map[string]interface{}{"toolName": "a"}),
			node("b", models.NodeTypeTool, map[string]interface{}{"toolName": "b"}),
		},
		[]models.Edge{
			edge("in", "check"),
			labeledEdge("check", "a", "true"),
			edge("a", "b"),
		},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
	}
	if len(env.calls.list()) != 0 {
		t.Errorf("tool calls = %v, want none", env.calls.list())
	}
	for _, id := range []string{"a", "b"} {
		step := env.steps.byNode(id)
		if step == nil || step.Status != models.StepSkipped {
			t.Errorf("node %s should be skipped, got %+v", id, step)
		}
	}
}

func TestExecute_UnlabeledEdgePassesAnyBranch(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"flag": true}
	env := newTestEnv(t, run)
	env.recordingTool(t, "always", "ran")

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("check", models.NodeTypeCondition, map[string]interface{}{"expression": "{{in.flag}} == true"}),
			node("always", models.NodeTypeTool, map[string]interface{}{"toolName": "always"}),
		},
		[]models.Edge{
			edge("in", "check"),
			edge("check", "always"),
		},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
	}
	if step := env.steps.byNode("always"); step == nil || step.Status != models.StepCompleted {
		t.Errorf("unlabeled successor should run, got %+v", step)
	}
}

func TestExecute_LoopBodyProducesSingleStep(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"items": []interface{}{"a", "b", "c"}}
	env := newTestEnv(t, run)
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "echo",
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			env.calls.add("echo")
			return args["value"], nil
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("iter", models.NodeTypeLoop, map[string]interface{}{
				"iteratorExpression": "{{in.items}}",
				"bodyNodes":          []interface{}{"step"},
			}),
			node("step", models.NodeTypeTool, map[string]interface{}{
				"toolName": "echo",
				"args":     map[string]interface{}{"value": "{{item}}"},
			}),
			node("out", models.NodeTypeOutput, map[string]interface{}{
				"bindings": map[string]interface{}{"value": "{{iter.totalIterations}}"},
			}),
		},
		[]models.Edge{edge("in", "iter"), edge("iter", "out")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
	}
	if got := len(env.calls.list()); got != 3 {
		t.Errorf("body tool ran %d times, want 3", got)
	}

	// Three iterations still yield exactly one step for the loop node and
	// none for the body node.
	steps := env.steps.all()
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3 (in, iter, out)", len(steps))
	}
	if env.steps.byNode("step") != nil {
		t.Error("body node must not produce its own step record")
	}
	loopStep := env.steps.byNode("iter")
	if loopStep == nil {
		t.Fatal("loop node has no step record")
	}
	loopOut, ok := loopStep.Output.(map[string]interface{})
	if !ok {
		t.Fatalf("loop output = %#v, want map", loopStep.Output)
	}
	if total, _ := loopOut["totalIterations"].(float64); total != 3 {
		t.Errorf("totalIterations = %v, want 3", loopOut["totalIterations"])
	}
	if outcome.Output != float64(3) {
		t.Errorf("run output = %#v, want 3", outcome.Output)
	}
}

func TestExecute_LoopBreakCondition(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"items": []interface{}{float64(1), float64(2), float64(3), float64(4)}}
	env := newTestEnv(t, run)
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "echo",
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			env.calls.add("echo")
			return args["value"], nil
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("iter", models.NodeTypeLoop, map[string]interface{}{
				"iteratorExpression": "{{in.items}}",
				"breakCondition":     "{{item}} > 2",
				"bodyNodes":          []interface{}{"step"},
			}),
			node("step", models.NodeTypeTool, map[string]interface{}{
				"toolName": "echo",
				"args":     map[string]interface{}{"value": "{{item}}"},
			}),
		},
		[]models.Edge{edge("in", "iter")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
	}
	if got := len(env.calls.list()); got != 2 {
		t.Errorf("body ran %d times, want 2 (break at item 3)", got)
	}
	loopStep := env.steps.byNode("iter")
	loopOut := loopStep.Output.(map[string]interface{})
	if broke, _ := loopOut["breakTriggered"].(bool); !broke {
		t.Error("breakTriggered should be true")
	}
}

func TestExecute_RetryThenSuccess(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)

	attempts := 0
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "flaky",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			attempts++
			if attempts < 3 {
				return nil, apperr.New(apperr.KindToolFailure, "transient")
			}
			return "ok", nil
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeTool, map[string]interface{}{
				"toolName": "flaky",
				"retry": map[string]interface{}{
					"maxAttempts":       float64(3),
					"backoffMs":         float64(100),
					"backoffMultiplier": float64(2),
				},
			}),
		},
		[]models.Edge{edge("in", "work")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", outcome.Status, outcome.Err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	// Backoff doubles per retry: 100ms then 200ms.
	sleeps := env.clock.sleeps()
	if len(sleeps) != 2 || sleeps[0] != 100*time.Millisecond || sleeps[1] != 200*time.Millisecond {
		t.Errorf("sleeps = %v, want [100ms 200ms]", sleeps)
	}

	// Retries never add extra step records.
	if step := env.steps.byNode("work"); step == nil || step.Status != models.StepCompleted {
		t.Errorf("work step = %+v, want one completed record", step)
	}
	if len(env.steps.all()) != 2 {
		t.Errorf("got %d steps, want 2", len(env.steps.all()))
	}
}

func TestExecute_RetryExhaustionFailsRun(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "broken",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			env.calls.add("broken")
			return nil, apperr.New(apperr.KindToolFailure, "still down")
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeTool, map[string]interface{}{
				"toolName": "broken",
				"retry":    map[string]interface{}{"maxAttempts": float64(2), "backoffMs": float64(50)},
			}),
		},
		[]models.Edge{edge("in", "work")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	if got := len(env.calls.list()); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}

	failed := env.steps.byNode("work")
	if failed == nil || failed.Status != models.StepFailed {
		t.Fatalf("work step = %+v, want failed record", failed)
	}
	if failed.Error == nil || *failed.Error == "" {
		t.Error("failed step should carry the error message")
	}

	final := env.runs.current()
	if final.Status != models.RunFailed {
		t.Errorf("persisted status = %s, want failed", final.Status)
	}
	if final.Error == nil {
		t.Fatal("persisted run should carry an error")
	}
	if final.Error.Code != string(apperr.KindToolFailure) {
		t.Errorf("error code = %s, want %s", final.Error.Code, apperr.KindToolFailure)
	}
	if final.Error.NodeID != "work" {
		t.Errorf("error node = %s, want work", final.Error.NodeID)
	}
}

func TestExecute_ValidationErrorDoesNotRetry(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)

	calls := 0
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "strict",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			calls++
			return nil, apperr.New(apperr.KindValidation, "bad arguments")
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeTool, map[string]interface{}{
				"toolName": "strict",
				"retry":    map[string]interface{}{"maxAttempts": float64(5), "backoffMs": float64(10)},
			}),
		},
		[]models.Edge{edge("in", "work")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (validation errors are not retryable)", calls)
	}
	if len(env.clock.sleeps()) != 0 {
		t.Errorf("no backoff sleeps expected, got %v", env.clock.sleeps())
	}
}

func TestExecute_CompensationRunsInReverseOrder(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)

	undo := &callLog{}
	undoTool := func(name string) *sdk.ToolDefinition {
		return &sdk.ToolDefinition{
			Name: name,
			Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
				undo.add(name)
				return "undone", nil
			},
		}
	}
	env.registerTool(t, undoTool("undo-a"))
	env.registerTool(t, undoTool("undo-b"))
	env.registerTool(t, &sdk.ToolDefinition{
		Name:         "create-a",
		Handler:      func(context.Context, map[string]interface{}) (interface{}, error) { return "a", nil },
		Compensation: &sdk.CompensationSpec{Action: "undo-a"},
	})
	env.registerTool(t, &sdk.ToolDefinition{
		Name:         "create-b",
		Handler:      func(context.Context, map[string]interface{}) (interface{}, error) { return "b", nil },
		Compensation: &sdk.CompensationSpec{Action: "undo-b"},
	})
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "explode",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			return nil, apperr.New(apperr.KindToolFailure, "boom")
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("a", models.NodeTypeTool, map[string]interface{}{"toolName": "create-a"}),
			node("b", models.NodeTypeTool, map[string]interface{}{"toolName": "create-b"}),
			node("c", models.NodeTypeTool, map[string]interface{}{"toolName": "explode"}),
		},
		[]models.Edge{edge("in", "a"), edge("a", "b"), edge("b", "c")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}

	// LIFO: b's undo fires before a's.
	got := undo.list()
	if len(got) != 2 || got[0] != "undo-b" || got[1] != "undo-a" {
		t.Errorf("undo order = %v, want [undo-b undo-a]", got)
	}

	if outcome.Compensation == nil {
		t.Fatal("outcome should carry a compensation summary")
	}
	if outcome.Compensation.Total != 2 || outcome.Compensation.Succeeded != 2 {
		t.Errorf("summary = %+v, want total=2 succeeded=2", outcome.Compensation)
	}
}

func TestExecute_NoCompensationOnSuccess(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)

	undo := &callLog{}
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "undo-a",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			undo.add("undo-a")
			return nil, nil
		},
	})
	env.registerTool(t, &sdk.ToolDefinition{
		Name:         "create-a",
		Handler:      func(context.Context, map[string]interface{}) (interface{}, error) { return "a", nil },
		Compensation: &sdk.CompensationSpec{Action: "undo-a"},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("a", models.NodeTypeTool, map[string]interface{}{"toolName": "create-a"}),
		},
		[]models.Edge{edge("in", "a")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed", outcome.Status)
	}
	if len(undo.list()) != 0 {
		t.Errorf("undo ran on a successful run: %v", undo.list())
	}
	if outcome.Compensation != nil {
		t.Errorf("summary = %+v, want nil", outcome.Compensation)
	}
}

func approvalPlan(t *testing.T) *compiler.ExecutionPlan {
	t.Helper()
	return mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("gate", models.NodeTypeApproval, map[string]interface{}{
				"message":        "approve {{in.subject}}?",
				"timeoutMinutes": float64(30),
			}),
			node("out", models.NodeTypeOutput, map[string]interface{}{
				"bindings": map[string]interface{}{"value": "{{gate.approved}}"},
			}),
		},
		[]models.Edge{edge("in", "gate"), edge("gate", "out")},
	)
}

func TestExecute_ApprovalRoundTrip(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"subject": "deploy"}
	env := newTestEnv(t, run)
	// Park the 30 minute deadline sleep instead of expiring instantly.
	env.clock.blockAfter = time.Minute

	plan := approvalPlan(t)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunSuspended {
		t.Fatalf("status = %s, want suspended (err=%v)", outcome.Status, outcome.Err)
	}
	wantID := worker.ApprovalID(run.ID.String(), "gate")
	if outcome.ApprovalID != wantID {
		t.Errorf("approval id = %s, want %s", outcome.ApprovalID, wantID)
	}

	suspended := env.runs.current()
	if suspended.Status != models.RunSuspended {
		t.Fatalf("persisted status = %s, want suspended", suspended.Status)
	}
	pending := suspended.EngineState.PendingApproval
	if pending == nil {
		t.Fatal("snapshot should carry the pending approval")
	}
	if pending.Message != "approve deploy?" {
		t.Errorf("message = %q, want interpolated subject", pending.Message)
	}
	if pending.Deadline == nil {
		t.Error("pending approval should carry a deadline")
	}

	current := suspended
	resumed, err := env.engine.Resume(context.Background(), plan, &current, approval.Decision{
		Approved:   true,
		ApprovedBy: "ops@example.com",
		DecidedAt:  env.clock.Now(),
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Status != models.RunCompleted {
		t.Fatalf("resumed status = %s, want completed (err=%v)", resumed.Status, resumed.Err)
	}
	if resumed.Output != true {
		t.Errorf("output = %#v, want true", resumed.Output)
	}

	gate := env.steps.byNode("gate")
	if gate == nil || gate.Status != models.StepCompleted {
		t.Fatalf("gate step = %+v, want completed", gate)
	}
	gateOut, ok := gate.Output.(map[string]interface{})
	if !ok {
		t.Fatalf("gate output = %#v, want map", gate.Output)
	}
	if gateOut["approvedBy"] != "ops@example.com" {
		t.Errorf("approvedBy = %v", gateOut["approvedBy"])
	}

	final := env.runs.current()
	if final.ResumedAt == nil {
		t.Error("resumedAt should be set after the approval")
	}
	if env.approvals.PendingCount() != 0 {
		t.Errorf("pending approvals = %d, want 0", env.approvals.PendingCount())
	}

	types := env.bus.types()
	var sawSuspended, sawResumed bool
	for _, typ := range types {
		if typ == models.EventRunSuspended {
			sawSuspended = true
		}
		if typ == models.EventRunResumed {
			sawResumed = true
		}
	}
	if !sawSuspended || !sawResumed {
		t.Errorf("events = %v, want both run.suspended and run.resumed", types)
	}
}

func TestExecute_ApprovalRejectionFailsRun(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"subject": "deploy"}
	env := newTestEnv(t, run)
	env.clock.blockAfter = time.Minute

	plan := approvalPlan(t)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunSuspended {
		t.Fatalf("status = %s, want suspended", outcome.Status)
	}

	current := env.runs.current()
	resumed, err := env.engine.Resume(context.Background(), plan, &current, approval.Decision{
		Approved: false,
		Reason:   "not this quarter",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Status != models.RunFailed {
		t.Fatalf("resumed status = %s, want failed", resumed.Status)
	}

	final := env.runs.current()
	if final.Error == nil || final.Error.Code != string(apperr.KindApprovalRejected) {
		t.Errorf("error = %+v, want approval-rejected", final.Error)
	}
	if step := env.steps.byNode("gate"); step == nil || step.Status != models.StepFailed {
		t.Errorf("gate step = %+v, want failed", step)
	}
	if step := env.steps.byNode("out"); step != nil {
		t.Errorf("out should never run after rejection, got %+v", step)
	}
}

func TestExecute_ApprovalTimeout(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"subject": "deploy"}
	env := newTestEnv(t, run)
	// Sleeps return immediately, so the deadline fires as soon as the run
	// parks.
	plan := approvalPlan(t)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunSuspended {
		t.Fatalf("first outcome = %s, want suspended", outcome.Status)
	}

	waitTerminal(t, env, run.ID)

	final := env.runs.current()
	if final.Status != models.RunFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if final.Error == nil || final.Error.Code != string(apperr.KindApprovalTimeout) {
		t.Errorf("error = %+v, want approval-timeout", final.Error)
	}
	if env.approvals.PendingCount() != 0 {
		t.Errorf("pending approvals = %d, want 0", env.approvals.PendingCount())
	}
}

func TestResume_DetachedRun(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"subject": "deploy"}
	env := newTestEnv(t, run)
	env.clock.blockAfter = time.Minute

	plan := approvalPlan(t)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunSuspended {
		t.Fatalf("status = %s, want suspended", outcome.Status)
	}
	t.Cleanup(func() { env.engine.Cancel(run.ID) })

	suspended := env.runs.current()
	if suspended.Status != models.RunSuspended {
		t.Fatalf("snapshot status = %s, want suspended", suspended.Status)
	}
	if suspended.EngineState == nil || suspended.EngineState.StepCount != 1 {
		t.Fatalf("snapshot = %+v, want stepCount 1", suspended.EngineState)
	}

	// Simulate a restart: a fresh engine with empty registries rebuilds
	// the run from the persisted snapshot.
	fresh := newTestEnv(t, &suspended)

	resumed, err := fresh.engine.Resume(context.Background(), plan, &suspended, approval.Decision{
		Approved:   true,
		ApprovedBy: "ops@example.com",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Status != models.RunCompleted {
		t.Fatalf("resumed status = %s, want completed (err=%v)", resumed.Status, resumed.Err)
	}
	if resumed.Output != true {
		t.Errorf("output = %#v, want true", resumed.Output)
	}

	// The walk picked up after the gate: numbering continues from the
	// snapshot, no replayed steps for nodes before the suspension.
	steps := fresh.steps.all()
	if len(steps) != 2 {
		t.Fatalf("got %d steps after resume, want 2 (gate, out)", len(steps))
	}
	if steps[0].NodeID != "gate" || steps[0].StepNumber != 2 {
		t.Errorf("first resumed step = %s #%d, want gate #2", steps[0].NodeID, steps[0].StepNumber)
	}
	if steps[1].NodeID != "out" || steps[1].StepNumber != 3 {
		t.Errorf("second resumed step = %s #%d, want out #3", steps[1].NodeID, steps[1].StepNumber)
	}

	final := fresh.runs.current()
	if final.Status != models.RunCompleted {
		t.Errorf("persisted status = %s, want completed", final.Status)
	}
}

func TestResume_TerminalRunConflicts(t *testing.T) {
	run := newRun(1)
	run.Status = models.RunCompleted
	env := newTestEnv(t, run)
	plan := approvalPlan(t)

	_, err := env.engine.Resume(context.Background(), plan, run, approval.Decision{Approved: true})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestExecute_CancelWhileParked(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"subject": "deploy"}
	env := newTestEnv(t, run)
	env.clock.blockAfter = time.Minute

	undo := &callLog{}
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "undo-reserve",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			undo.add("undo-reserve")
			return nil, nil
		},
	})
	env.registerTool(t, &sdk.ToolDefinition{
		Name:         "reserve",
		Handler:      func(context.Context, map[string]interface{}) (interface{}, error) { return "held", nil },
		Compensation: &sdk.CompensationSpec{Action: "undo-reserve"},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("hold", models.NodeTypeTool, map[string]interface{}{"toolName": "reserve"}),
			node("gate", models.NodeTypeApproval, map[string]interface{}{"message": "ok?"}),
		},
		[]models.Edge{edge("in", "hold"), edge("hold", "gate")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunSuspended {
		t.Fatalf("status = %s, want suspended", outcome.Status)
	}

	if !env.engine.Cancel(run.ID) {
		t.Fatal("Cancel should find the parked run")
	}
	waitTerminal(t, env, run.ID)

	final := env.runs.current()
	if final.Status != models.RunCancelled {
		t.Fatalf("final status = %s, want cancelled", final.Status)
	}
	if final.Error == nil || final.Error.Code != "cancelled" {
		t.Errorf("error = %+v, want code cancelled", final.Error)
	}

	// Cancellation still unwinds completed side effects.
	if got := undo.list(); len(got) != 1 || got[0] != "undo-reserve" {
		t.Errorf("undo calls = %v, want [undo-reserve]", got)
	}
	if env.approvals.PendingCount() != 0 {
		t.Errorf("pending approvals = %d, want 0", env.approvals.PendingCount())
	}
}

func TestExecute_NodeTimeout(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "stuck",
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeTool, map[string]interface{}{"toolName": "stuck"}),
		},
		[]models.Edge{edge("in", "work")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{NodeTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	final := env.runs.current()
	if final.Error == nil || final.Error.Code != string(apperr.KindInternal) {
		t.Errorf("error = %+v, want internal timeout error", final.Error)
	}
}

func TestExecute_MissingHandlerFailsRun(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeAIStep, map[string]interface{}{"prompt": "hi"}),
		},
		[]models.Edge{edge("in", "work")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	final := env.runs.current()
	if final.Error == nil || final.Error.Code != string(apperr.KindValidation) {
		t.Errorf("error = %+v, want validation error for missing handler", final.Error)
	}
}

func TestExecute_DuplicateRunConflicts(t *testing.T) {
	run := newRun(1)
	run.Input = map[string]interface{}{"subject": "x"}
	env := newTestEnv(t, run)
	env.clock.blockAfter = time.Minute

	plan := approvalPlan(t)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunSuspended {
		t.Fatalf("status = %s, want suspended", outcome.Status)
	}

	_, err = env.engine.Execute(context.Background(), plan, run, Options{})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("second Execute err = %v, want conflict", err)
	}

	env.engine.Cancel(run.ID)
	waitTerminal(t, env, run.ID)
}

func TestExecute_PersistFailureCompensates(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)

	undo := &callLog{}
	env.registerTool(t, &sdk.ToolDefinition{
		Name: "undo-reserve",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			undo.add("undo-reserve")
			return nil, nil
		},
	})
	env.registerTool(t, &sdk.ToolDefinition{
		Name:         "reserve",
		Handler:      func(context.Context, map[string]interface{}) (interface{}, error) { return "held", nil },
		Compensation: &sdk.CompensationSpec{Action: "undo-reserve"},
	})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("hold", models.NodeTypeTool, map[string]interface{}{"toolName": "reserve"}),
			node("gate", models.NodeTypeApproval, map[string]interface{}{"message": "ok?"}),
		},
		[]models.Edge{edge("in", "hold"), edge("hold", "gate")},
	)

	// The suspension snapshot write fails, so the run cannot park safely.
	env.runs.failOn[models.RunSuspended] = errors.New("connection reset")

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	if got := undo.list(); len(got) != 1 {
		t.Errorf("undo calls = %v, want the reserve rolled back", got)
	}
	if env.approvals.PendingCount() != 0 {
		t.Errorf("pending approvals = %d, want 0", env.approvals.PendingCount())
	}
}

func TestExecute_RunOutputFallsBackToLastNode(t *testing.T) {
	run := newRun(1)
	env := newTestEnv(t, run)
	env.recordingTool(t, "last", map[string]interface{}{"done": true})

	plan := mustCompile(t,
		[]models.Node{
			node("in", models.NodeTypeInput, nil),
			node("work", models.NodeTypeTool, map[string]interface{}{"toolName": "last"}),
		},
		[]models.Edge{edge("in", "work")},
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed", outcome.Status)
	}
	out, ok := outcome.Output.(map[string]interface{})
	if !ok || out["done"] != true {
		t.Errorf("output = %#v, want the tool result", outcome.Output)
	}
}

func TestExecute_MintsRunID(t *testing.T) {
	run := newRun(1)
	run.ID = uuid.Nil
	env := newTestEnv(t, run)

	plan := mustCompile(t,
		[]models.Node{node("in", models.NodeTypeInput, nil)},
		nil,
	)

	outcome, err := env.engine.Execute(context.Background(), plan, run, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.RunID == uuid.Nil {
		t.Error("engine should mint a run id")
	}
	if outcome.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed", outcome.Status)
	}
}

func TestWatch_InactiveRun(t *testing.T) {
	env := newTestEnv(t, newRun(1))
	_, err := env.engine.Watch(context.Background(), uuid.New())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("err = %v, want not-found", err)
	}
}
