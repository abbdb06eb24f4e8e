package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// lookupFunc dereferences a {{path}} operand against step results.
type lookupFunc func(path string) (interface{}, bool)

type operand struct {
	isRef bool
	ref   string
	value interface{} // literal: float64, string, or bool
}

type comparison struct {
	left  operand
	op    string
	right operand
}

// predicate is the parsed form of an expression: a disjunction of
// conjunctions. The grammar has no parentheses, so || of && clauses covers
// every well-formed input.
type predicate struct {
	clauses [][]comparison
}

type parser struct {
	tokens []token
	pos    int
}

// parse compiles an expression string into a predicate.
func parse(expr string) (*predicate, error) {
	tokens, err := newLexer(expr).tokens()
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected token at position %d", tok.pos)
	}
	return pred, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) parseOr() (*predicate, error) {
	clause, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	clauses := [][]comparison{clause}
	for p.peek().kind == tokenOr {
		p.pos++
		clause, err = p.parseAnd()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return &predicate{clauses: clauses}, nil
}

func (p *parser) parseAnd() ([]comparison, error) {
	cmp, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	clause := []comparison{cmp}
	for p.peek().kind == tokenAnd {
		p.pos++
		cmp, err = p.parseComparison()
		if err != nil {
			return nil, err
		}
		clause = append(clause, cmp)
	}
	return clause, nil
}

func (p *parser) parseComparison() (comparison, error) {
	left, err := p.parseOperand()
	if err != nil {
		return comparison{}, err
	}

	op := p.peek()
	if op.kind != tokenCompare {
		return comparison{}, fmt.Errorf("expected comparison operator at position %d", op.pos)
	}
	p.pos++

	right, err := p.parseOperand()
	if err != nil {
		return comparison{}, err
	}

	return comparison{left: left, op: op.text, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenRef:
		p.pos++
		return operand{isRef: true, ref: tok.text}, nil
	case tokenNumber:
		p.pos++
		return operand{value: tok.num}, nil
	case tokenString:
		p.pos++
		return operand{value: tok.str}, nil
	case tokenBool:
		p.pos++
		return operand{value: tok.b}, nil
	default:
		return operand{}, fmt.Errorf("expected operand at position %d", tok.pos)
	}
}

func (p *predicate) eval(lookup lookupFunc) (bool, error) {
	for _, clause := range p.clauses {
		matched := true
		for _, cmp := range clause {
			ok, err := cmp.eval(lookup)
			if err != nil {
				return false, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func (o operand) resolve(lookup lookupFunc) interface{} {
	if !o.isRef {
		return o.value
	}
	value, ok := lookup(o.ref)
	if !ok {
		return nil
	}
	return value
}

func (c comparison) eval(lookup lookupFunc) (bool, error) {
	left := c.left.resolve(lookup)
	right := c.right.resolve(lookup)

	switch c.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return order(c.op, left, right)
	case "contains":
		return contains(left, right)
	case "startsWith":
		return strings.HasPrefix(operandString(left), operandString(right)), nil
	case "endsWith":
		return strings.HasSuffix(operandString(left), operandString(right)), nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.op)
	}
}

// looseEqual compares operands the way JSON values compare: numbers by
// magnitude regardless of Go type, everything else structurally.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := asNumber(a); ok {
		if bf, ok := asNumber(b); ok {
			return af == bf
		}
		return false
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return reflect.DeepEqual(a, b)
}

func order(op string, a, b interface{}) (bool, error) {
	if af, ok := asNumber(a); ok {
		if bf, ok := asNumber(b); ok {
			switch op {
			case "<":
				return af < bf, nil
			case "<=":
				return af <= bf, nil
			case ">":
				return af > bf, nil
			case ">=":
				return af >= bf, nil
			}
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			cmp := strings.Compare(as, bs)
			switch op {
			case "<":
				return cmp < 0, nil
			case "<=":
				return cmp <= 0, nil
			case ">":
				return cmp > 0, nil
			case ">=":
				return cmp >= 0, nil
			}
		}
	}
	return false, fmt.Errorf("cannot order %T against %T", a, b)
}

func contains(haystack, needle interface{}) (bool, error) {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, operandString(needle)), nil
	case []interface{}:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("contains requires a string or array operand, got %T", haystack)
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func operandString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(jsonBytes)
}
