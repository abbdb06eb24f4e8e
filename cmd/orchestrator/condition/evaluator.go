package condition

import (
	"fmt"
	"sync"

	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
)

// Evaluator evaluates boolean predicates for condition branching and loop
// break checks. Parsed predicates are cached by expression string.
type Evaluator struct {
	resolver *resolver.Resolver
	cache    map[string]*predicate
	mu       sync.RWMutex
}

// NewEvaluator creates a new predicate evaluator with caching
func NewEvaluator(res *resolver.Resolver) *Evaluator {
	return &Evaluator{
		resolver: res,
		cache:    make(map[string]*predicate),
	}
}

// Evaluate parses expr (or fetches a cached parse) and evaluates it against
// the run's step results. A malformed expression is an error; the caller
// decides whether that is fatal for the node.
func (e *Evaluator) Evaluate(expr string, results map[string]interface{}) (bool, error) {
	if expr == "" {
		return false, fmt.Errorf("empty expression")
	}

	// Check cache first
	e.mu.RLock()
	pred, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		pred, err = parse(expr)
		if err != nil {
			return false, fmt.Errorf("failed to parse expression %q: %w", expr, err)
		}

		e.mu.Lock()
		e.cache[expr] = pred
		e.mu.Unlock()
	}

	return pred.eval(func(path string) (interface{}, bool) {
		return e.resolver.Lookup(path, results)
	})
}

// ClearCache clears the parsed expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*predicate)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
