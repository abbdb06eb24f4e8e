package operators

import (
	"context"
	"errors"
	"sync"

	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// ParallelHandler fans its body nodes out concurrently and gathers their
// outputs into an object keyed by body node id. Each body runs against
// its own copy of the step results.
type ParallelHandler struct {
	logger sdk.Logger
}

// NewParallelHandler creates the parallel node handler
func NewParallelHandler(logger sdk.Logger) *ParallelHandler {
	return &ParallelHandler{logger: logger}
}

func (h *ParallelHandler) Type() string {
	return models.NodeTypeParallel
}

type parallelConfig struct {
	FailFast bool `mapstructure:"failFast"`
}

func (h *ParallelHandler) Execute(ctx context.Context, ec *worker.ExecutionContext) (*worker.Result, error) {
	var cfg parallelConfig
	if err := worker.DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid parallel node config", err)
	}
	if ec.Body == nil {
		return nil, apperr.New(apperr.KindInternal, "parallel node requires a body executor")
	}

	order := ec.Body.BodyOrder(ec.Node.ID)
	if len(order) == 0 {
		return nil, apperr.New(apperr.KindValidation, "parallel node requires body nodes")
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.FailFast {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	outputs := make([]interface{}, len(order))
	errs := make([]error, len(order))
	var wg sync.WaitGroup
	for i, nodeID := range order {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			out, err := ec.Body.RunBodyNode(runCtx, nodeID, forkScope(ec.Results))
			if err != nil {
				errs[i] = err
				if cfg.FailFast {
					cancel()
				}
				return
			}
			outputs[i] = out
		}(i, nodeID)
	}
	wg.Wait()

	// Under failFast the causal failure fails the node; cancellation
	// errors from siblings torn down by it are only a fallback. Without
	// failFast, failures become per-body error records and the node
	// completes with partial results.
	if cfg.FailFast {
		var firstErr error
		for _, err := range errs {
			if err == nil {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			if !apperr.IsKind(err, apperr.KindCancelled) && !errors.Is(err, context.Canceled) {
				return nil, err
			}
		}
		if firstErr != nil {
			return nil, firstErr
		}
	}

	result := make(map[string]interface{}, len(order))
	failed := 0
	for i, nodeID := range order {
		if errs[i] != nil {
			result[nodeID] = map[string]interface{}{"error": errs[i].Error()}
			failed++
			continue
		}
		result[nodeID] = outputs[i]
	}

	h.logger.Debug("parallel bodies completed",
		"run_id", ec.RunID,
		"node_id", ec.Node.ID,
		"bodies", len(order),
		"failed", failed)

	return &worker.Result{Output: result}, nil
}
