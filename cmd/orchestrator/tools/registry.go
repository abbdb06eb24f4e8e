package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/sdk"
)

// Registry is the mutex-guarded catalog of executable tools. It satisfies
// sdk.ToolExecutor for the tool node handler and the compensation engine.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*sdk.ToolDefinition
	logger sdk.Logger
}

// NewRegistry creates an empty tool registry
func NewRegistry(logger sdk.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*sdk.ToolDefinition),
		logger: logger,
	}
}

// Register adds a tool to the catalog. Re-registering a name replaces the
// previous definition.
func (r *Registry) Register(def *sdk.ToolDefinition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
	return nil
}

// Definition returns the registered definition for a tool name.
func (r *Registry) Definition(name string) (*sdk.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns the sorted catalog of registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a registered tool. An unknown name is a tool-failure so the
// caller's retry policy applies uniformly to tool problems.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	def, ok := r.Definition(name)
	if !ok {
		return nil, apperr.Newf(apperr.KindToolFailure, "unknown tool: %s", name)
	}

	result, err := def.Handler(ctx, args)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindToolFailure, fmt.Sprintf("tool %s failed", name), err)
	}

	return result, nil
}
