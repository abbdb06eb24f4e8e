package condition

import (
	"testing"

	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(resolver.NewResolver(nopLogger{}))
}

func conditionResults() map[string]interface{} {
	return map[string]interface{}{
		"score": map[string]interface{}{
			"value":  float64(0.82),
			"label":  "relevant",
			"passed": true,
			"tags":   []interface{}{"ai", "golang"},
		},
		"input": map[string]interface{}{
			"threshold": float64(0.5),
			"name":      "weft",
		},
	}
}

func TestEvaluate(t *testing.T) {
	e := newTestEvaluator()
	results := conditionResults()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"number equality", "{{score.value}} == 0.82", true},
		{"number inequality", "{{score.value}} != 0.82", false},
		{"numeric greater than", "{{score.value}} > 0.5", true},
		{"numeric less or equal", "{{score.value}} <= 0.5", false},
		{"reference against reference", "{{score.value}} >= {{input.threshold}}", true},
		{"string equality", `{{score.label}} == "relevant"`, true},
		{"single quoted string", "{{score.label}} == 'relevant'", true},
		{"string ordering is lexicographic", `"apple" < "banana"`, true},
		{"boolean literal", "{{score.passed}} == true", true},
		{"string contains substring", `{{score.label}} contains "lev"`, true},
		{"array contains element", `{{score.tags}} contains "golang"`, true},
		{"array does not contain element", `{{score.tags}} contains "rust"`, false},
		{"startsWith", `{{input.name}} startsWith "we"`, true},
		{"endsWith", `{{score.label}} endsWith "ant"`, true},
		{"and combines comparisons", `{{score.passed}} == true && {{score.value}} > 0.8`, true},
		{"and short circuits false", `{{score.passed}} == false && {{score.value}} > 0.8`, false},
		{"or recovers false left", `{{score.passed}} == false || {{score.value}} > 0.8`, true},
		{"and binds tighter than or", `{{score.value}} > 0.9 || {{score.passed}} == true && {{input.name}} == "weft"`, true},
		{"missing reference compares as null", "{{gone.field}} == 1", false},
		{"missing reference not equal", "{{gone.field}} != 1", true},
		{"negative number literal", "{{input.threshold}} > -1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, results)
			if err != nil {
				t.Fatalf("Evaluate(%q) returned error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateMalformed(t *testing.T) {
	e := newTestEvaluator()
	results := conditionResults()

	tests := []struct {
		name string
		expr string
	}{
		{"empty expression", ""},
		{"missing operator", `{{score.value}} 0.5`},
		{"missing right operand", "{{score.value}} >"},
		{"trailing tokens", "{{score.value}} > 0.5 0.9"},
		{"unterminated string", `{{score.label}} == "relev`},
		{"unterminated reference", "{{score.value > 0.5"},
		{"unknown word", "{{score.value}} above 0.5"},
		{"bare operand", "{{score.passed}}"},
		{"ordering type mismatch", `{{score.passed}} > 0.5`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Evaluate(tt.expr, results); err == nil {
				t.Errorf("Evaluate(%q) expected error, got nil", tt.expr)
			}
		})
	}
}

func TestEvaluateCaching(t *testing.T) {
	e := newTestEvaluator()
	results := conditionResults()

	expr := "{{score.value}} > 0.5"
	if _, err := e.Evaluate(expr, results); err != nil {
		t.Fatalf("first Evaluate failed: %v", err)
	}
	if e.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", e.CacheSize())
	}

	// Second evaluation hits the cache and stays deterministic
	first, _ := e.Evaluate(expr, results)
	second, _ := e.Evaluate(expr, results)
	if first != second {
		t.Errorf("repeated evaluation diverged: %v then %v", first, second)
	}
	if e.CacheSize() != 1 {
		t.Errorf("CacheSize() after repeat = %d, want 1", e.CacheSize())
	}

	e.ClearCache()
	if e.CacheSize() != 0 {
		t.Errorf("CacheSize() after ClearCache = %d, want 0", e.CacheSize())
	}
}
