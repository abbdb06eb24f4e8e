package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/weftlabs/weft/common/sdk"
)

// refPattern matches a single {{path}} reference inside a template string.
var refPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// wholeRefPattern matches a string that is exactly one reference and nothing
// else. Such bindings keep the referenced value's type instead of
// stringifying it.
var wholeRefPattern = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)

// Resolver substitutes {{nodeId.path}} references in node bindings with
// values from prior step results. The first path segment names a completed
// node (or the reserved "input" key); the remainder indexes into that node's
// output using gjson path semantics.
type Resolver struct {
	logger sdk.Logger
}

// NewResolver creates a new binding resolver
func NewResolver(logger sdk.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Interpolate replaces every {{path}} occurrence in template with the string
// form of the dereferenced value. Missing paths resolve to the empty string;
// a template without references is returned unchanged.
func (r *Resolver) Interpolate(template string, results map[string]interface{}) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	return refPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])

		value, ok := r.Lookup(path, results)
		if !ok {
			r.logger.Debug("reference not found, substituting empty string", "path", path)
			return ""
		}

		return stringify(value)
	})
}

// Lookup dereferences a dot-separated path against step results. The first
// segment selects a node's output; the rest is evaluated as a gjson path
// (numeric segments index arrays). Returns false when the node has no
// recorded output or the path does not exist in it.
func (r *Resolver) Lookup(path string, results map[string]interface{}) (interface{}, bool) {
	parts := strings.SplitN(path, ".", 2)
	nodeID := parts[0]

	output, ok := results[nodeID]
	if !ok {
		return nil, false
	}

	// No field path: the entire node output
	if len(parts) == 1 {
		return output, true
	}

	outputJSON, err := json.Marshal(output)
	if err != nil {
		r.logger.Error("failed to marshal node output for lookup", "node_id", nodeID, "error", err)
		return nil, false
	}

	result := gjson.GetBytes(outputJSON, parts[1])
	if !result.Exists() {
		return nil, false
	}

	return result.Value(), true
}

// Resolve deep-resolves a binding value. Strings that are exactly one
// reference keep the referenced value's type; strings with embedded
// references are interpolated; maps and arrays are resolved element-wise;
// other primitives pass through.
func (r *Resolver) Resolve(value interface{}, results map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return r.resolveString(v, results)
	case map[string]interface{}:
		resolved := make(map[string]interface{}, len(v))
		for key, item := range v {
			resolved[key] = r.Resolve(item, results)
		}
		return resolved
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, item := range v {
			resolved[i] = r.Resolve(item, results)
		}
		return resolved
	default:
		return value
	}
}

// ResolveMap resolves every value of a node's bindings map.
func (r *Resolver) ResolveMap(bindings map[string]interface{}, results map[string]interface{}) map[string]interface{} {
	if bindings == nil {
		return nil
	}
	resolved := make(map[string]interface{}, len(bindings))
	for key, value := range bindings {
		resolved[key] = r.Resolve(value, results)
	}
	return resolved
}

func (r *Resolver) resolveString(str string, results map[string]interface{}) interface{} {
	// Exact single reference: "{{fetch.items}}" binds the raw value
	if match := wholeRefPattern.FindStringSubmatch(str); match != nil {
		value, ok := r.Lookup(strings.TrimSpace(match[1]), results)
		if !ok {
			r.logger.Debug("reference not found, binding nil", "path", match[1])
			return nil
		}
		return value
	}

	// Embedded references: interpolate into a string
	if strings.Contains(str, "{{") {
		return r.Interpolate(str, results)
	}

	return str
}

// stringify renders a resolved value for interpolation. Strings pass through
// verbatim, null becomes the empty string, everything else marshals to
// compact JSON (numbers and booleans keep their textual form).
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(jsonBytes)
}
