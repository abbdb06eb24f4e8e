package operators

import (
	"context"
	"reflect"
	"sync"

	"github.com/weftlabs/weft/cmd/orchestrator/condition"
	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

const (
	defaultIterationVariable = "item"
	defaultIndexVariable     = "index"

	// ExecutionModeSequential runs iterations one after another.
	ExecutionModeSequential = "sequential"
	// ExecutionModeParallel runs iterations concurrently with isolated
	// sub-contexts; results aggregate in input order.
	ExecutionModeParallel = "parallel"
)

// LoopHandler iterates body nodes over a resolved array. Each iteration
// binds the iteration and index variables into a fresh sub-context layered
// over the outer step results; body outputs from prior iterations are not
// visible.
type LoopHandler struct {
	evaluator *condition.Evaluator
	resolver  *resolver.Resolver
	logger    sdk.Logger
}

// NewLoopHandler creates the loop node handler
func NewLoopHandler(evaluator *condition.Evaluator, res *resolver.Resolver, logger sdk.Logger) *LoopHandler {
	return &LoopHandler{
		evaluator: evaluator,
		resolver:  res,
		logger:    logger,
	}
}

func (h *LoopHandler) Type() string {
	return models.NodeTypeLoop
}

type loopConfig struct {
	IteratorExpression string `mapstructure:"iteratorExpression"`
	IterationVariable  string `mapstructure:"iterationVariable"`
	IndexVariable      string `mapstructure:"indexVariable"`
	ExecutionMode      string `mapstructure:"executionMode"`
	BreakCondition     string `mapstructure:"breakCondition"`
	MaxIterations      int    `mapstructure:"maxIterations"`
}

func (h *LoopHandler) Execute(ctx context.Context, ec *worker.ExecutionContext) (*worker.Result, error) {
	var cfg loopConfig
	if err := worker.DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid loop node config", err)
	}
	if cfg.IteratorExpression == "" {
		return nil, apperr.New(apperr.KindValidation, "loop node requires an iteratorExpression")
	}
	if cfg.IterationVariable == "" {
		cfg.IterationVariable = defaultIterationVariable
	}
	if cfg.IndexVariable == "" {
		cfg.IndexVariable = defaultIndexVariable
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = ExecutionModeSequential
	}
	if cfg.ExecutionMode != ExecutionModeSequential && cfg.ExecutionMode != ExecutionModeParallel {
		return nil, apperr.Newf(apperr.KindValidation, "unknown loop executionMode: %s", cfg.ExecutionMode)
	}
	if ec.Body == nil {
		return nil, apperr.New(apperr.KindInternal, "loop node requires a body executor")
	}

	items, ok := asArray(h.resolver.Resolve(cfg.IteratorExpression, ec.Results))
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "loop iterator %s must resolve to an array", cfg.IteratorExpression)
	}
	if cfg.MaxIterations > 0 && len(items) > cfg.MaxIterations {
		items = items[:cfg.MaxIterations]
	}

	var (
		iterations     []interface{}
		breakTriggered bool
		err            error
	)
	if cfg.ExecutionMode == ExecutionModeParallel {
		iterations, breakTriggered, err = h.runParallel(ctx, ec, cfg, items)
	} else {
		iterations, breakTriggered, err = h.runSequential(ctx, ec, cfg, items)
	}
	if err != nil {
		return nil, err
	}

	h.logger.Debug("loop completed",
		"run_id", ec.RunID,
		"node_id", ec.Node.ID,
		"iterations", len(iterations),
		"break_triggered", breakTriggered)

	return &worker.Result{Output: map[string]interface{}{
		"iterations":      iterations,
		"totalIterations": len(iterations),
		"breakTriggered":  breakTriggered,
		"executionMode":   cfg.ExecutionMode,
	}}, nil
}

func (h *LoopHandler) runSequential(ctx context.Context, ec *worker.ExecutionContext, cfg loopConfig, items []interface{}) ([]interface{}, bool, error) {
	iterations := make([]interface{}, 0, len(items))
	for i, item := range items {
		scope := iterationScope(ec.Results, cfg, item, i)

		// The break condition sees the upcoming bindings, so a loop can
		// stop before executing any body node
		if cfg.BreakCondition != "" {
			met, err := h.evaluator.Evaluate(cfg.BreakCondition, scope)
			if err != nil {
				return nil, false, apperr.Wrap(apperr.KindValidation, "invalid loop breakCondition", err)
			}
			if met {
				return iterations, true, nil
			}
		}

		results, err := h.runBody(ctx, ec, scope)
		if err != nil {
			return nil, false, err
		}
		iterations = append(iterations, iterationRecord(i, item, results))
	}
	return iterations, false, nil
}

// runParallel launches the surviving iterations concurrently. The break
// condition is pure predicate evaluation, so it is applied up front to
// pick the prefix of items that would have run sequentially; results keep
// input order.
func (h *LoopHandler) runParallel(ctx context.Context, ec *worker.ExecutionContext, cfg loopConfig, items []interface{}) ([]interface{}, bool, error) {
	breakTriggered := false
	if cfg.BreakCondition != "" {
		cut := len(items)
		for i, item := range items {
			scope := iterationScope(ec.Results, cfg, item, i)
			met, err := h.evaluator.Evaluate(cfg.BreakCondition, scope)
			if err != nil {
				return nil, false, apperr.Wrap(apperr.KindValidation, "invalid loop breakCondition", err)
			}
			if met {
				breakTriggered = true
				cut = i
				break
			}
		}
		items = items[:cut]
	}

	iterations := make([]interface{}, len(items))
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item interface{}) {
			defer wg.Done()
			scope := iterationScope(ec.Results, cfg, item, i)
			results, err := h.runBody(ctx, ec, scope)
			if err != nil {
				errs[i] = err
				return
			}
			iterations[i] = iterationRecord(i, item, results)
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, false, err
		}
	}
	return iterations, breakTriggered, nil
}

// runBody executes the body nodes in order against scope. Outputs land in
// the scope as they complete so later body nodes can reference earlier
// ones within the same iteration.
func (h *LoopHandler) runBody(ctx context.Context, ec *worker.ExecutionContext, scope map[string]interface{}) (map[string]interface{}, error) {
	order := ec.Body.BodyOrder(ec.Node.ID)
	results := make(map[string]interface{}, len(order))
	for _, nodeID := range order {
		out, err := ec.Body.RunBodyNode(ctx, nodeID, scope)
		if err != nil {
			return nil, err
		}
		scope[nodeID] = out
		results[nodeID] = out
	}
	return results, nil
}

func iterationScope(results map[string]interface{}, cfg loopConfig, item interface{}, index int) map[string]interface{} {
	scope := forkScope(results)
	scope[cfg.IterationVariable] = item
	scope[cfg.IndexVariable] = index
	return scope
}

func iterationRecord(index int, item interface{}, results map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"index":   index,
		"item":    item,
		"results": results,
	}
}

// forkScope copies the outer results so concurrent bodies and iterations
// never share mutable state.
func forkScope(base map[string]interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(base)+2)
	for k, v := range base {
		scope[k] = v
	}
	return scope
}

// asArray accepts the JSON-shaped slice plus any other Go slice a tool
// may have produced.
func asArray(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []interface{}:
		return v, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
