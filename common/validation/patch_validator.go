package validation

import (
	"fmt"

	"github.com/weftlabs/weft/common/models"
)

// maxAIStepsPerPatch caps how many model-calling nodes a single patch
// may add. Larger rewrites go through a full definition update.
const maxAIStepsPerPatch = 5

// addNodePath is the pointer under which patches append workflow nodes.
const addNodePath = "/nodes/-"

// PatchValidator screens JSON Patch operations before they touch a
// draft definition. It checks shape only; the patched graph is
// recompiled and fully validated after the operations apply.
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateOperations checks every operation and the patch-wide budget
// of added ai-step nodes.
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	aiSteps := 0
	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}
		if addsAIStep(op) {
			aiSteps++
		}
	}

	if aiSteps > maxAIStepsPerPatch {
		return fmt.Errorf("cannot add more than %d ai-step nodes per patch (attempted: %d)", maxAIStepsPerPatch, aiSteps)
	}
	return nil
}

func addsAIStep(op map[string]interface{}) bool {
	if op["op"] != "add" || op["path"] != addNodePath {
		return false
	}
	value, ok := op["value"].(map[string]interface{})
	if !ok {
		return false
	}
	nodeType, _ := value["type"].(string)
	return nodeType == models.NodeTypeAIStep
}

func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}
	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	switch opType {
	case "remove":
		return nil
	case "add", "replace":
		value, ok := op["value"]
		if !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}
		if path == addNodePath {
			return v.validateNode(value, index)
		}
		return nil
	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}
}

// validateNode checks the shape of a node being appended, catching the
// common designer mistakes before the decoder produces a confusing
// error deeper in.
func (v *PatchValidator) validateNode(value interface{}, opIndex int) error {
	node, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: node value must be an object, got %T", opIndex, value)
	}

	if _, ok := node["id"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'id' field (string)", opIndex)
	}
	if _, ok := node["type"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'type' field (string)", opIndex)
	}

	if data, exists := node["data"]; exists {
		if _, ok := data.(map[string]interface{}); !ok {
			return fmt.Errorf("operation %d: node 'data' must be an object, got %T (hint: use {\"key\": \"value\"}, not [\"key\"])", opIndex, data)
		}
	}
	return nil
}
