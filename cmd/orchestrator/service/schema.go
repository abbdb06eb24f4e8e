package service

import (
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/weftlabs/weft/common/apperr"
)

// compileInputSchema compiles a definition's optional input schema.
// An empty schema means no constraint.
func compileInputSchema(schema map[string]interface{}) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("input.json", schema); err != nil {
		return nil, err
	}
	return compiler.Compile("input.json")
}

// validateRunInput checks a run's input against the workflow's input
// schema. Runs without input validate as an empty object so optional
// fields stay optional.
func validateRunInput(schema map[string]interface{}, input map[string]interface{}) error {
	compiled, err := compileInputSchema(schema)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "workflow input schema is invalid", err)
	}
	if compiled == nil {
		return nil
	}
	doc := input
	if doc == nil {
		doc = map[string]interface{}{}
	}
	if err := compiled.Validate(doc); err != nil {
		return apperr.Wrap(apperr.KindValidation, "run input does not match the workflow input schema", err)
	}
	return nil
}
