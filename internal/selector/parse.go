package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ballotdesk/internal/value"
)

// ErrMalformed is wrapped by every Parse error.
var ErrMalformed = errors.New("malformed selector")

// Operator names accepted inside a field's operator object.
const (
	OpNe     = "$ne"
	OpExists = "$exists"
	OpRegex  = "$regex"
	OpOr     = "$or"
)

// Parse converts a selector object into a Selector tree.
//
// On malformed input Parse returns a Never node and an error wrapping
// ErrMalformed. The returned Selector is always safe to evaluate.
//
// Field keys are visited in canonical order so that the resulting tree (and
// therefore Render output and cache keys) is independent of map iteration.
func Parse(raw value.Object) (Selector, error) {
	sel, err := parseObject(raw)
	if err != nil {
		return Never{Reason: err.Error()}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return sel, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or with literal selectors known to be valid.
func MustParse(raw value.Object) Selector {
	sel, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return sel
}

func parseObject(raw value.Object) (Selector, error) {
	terms := make([]Selector, 0, len(raw))
	for _, key := range raw.SortedKeys() {
		operand := raw[key]

		if strings.HasPrefix(key, "$") {
			if key != OpOr {
				return nil, fmt.Errorf("unsupported top-level operator %q", key)
			}
			or, err := parseOr(operand)
			if err != nil {
				return nil, err
			}
			terms = append(terms, or)
			continue
		}

		if key == "" {
			return nil, fmt.Errorf("empty field name")
		}

		fieldTerms, err := parseField(key, operand)
		if err != nil {
			return nil, err
		}
		terms = append(terms, fieldTerms...)
	}

	if len(terms) == 1 {
		return terms[0], nil
	}
	return And{Terms: terms}, nil
}

func parseOr(operand value.Value) (Selector, error) {
	branches, ok := operand.(value.Array)
	if !ok {
		return nil, fmt.Errorf("$or expects an array, got %s", value.KindOf(operand))
	}
	if len(branches) == 0 {
		return nil, fmt.Errorf("$or expects at least one branch")
	}

	or := Or{Branches: make([]Selector, 0, len(branches))}
	for i, b := range branches {
		obj, ok := b.(value.Object)
		if !ok {
			return nil, fmt.Errorf("$or[%d] expects an object, got %s", i, value.KindOf(b))
		}
		branch, err := parseObject(obj)
		if err != nil {
			return nil, fmt.Errorf("$or[%d]: %w", i, err)
		}
		or.Branches = append(or.Branches, branch)
	}
	return or, nil
}

// parseField handles {field: operand}. An object operand whose keys are all
// operators is an operator object; an object with no operator keys is a
// literal for equality; mixing the two is malformed.
func parseField(field string, operand value.Value) ([]Selector, error) {
	ops, ok := operand.(value.Object)
	if !ok || !hasOperatorKey(ops) {
		return []Selector{Eq{Field: field, Value: operand}}, nil
	}

	terms := make([]Selector, 0, len(ops))
	for _, op := range ops.SortedKeys() {
		arg := ops[op]
		switch op {
		case OpNe:
			terms = append(terms, Ne{Field: field, Value: arg})
		case OpExists:
			want, ok := arg.(value.Bool)
			if !ok {
				return nil, fmt.Errorf("%s on %q expects a bool, got %s", op, field, value.KindOf(arg))
			}
			terms = append(terms, Exists{Field: field, Want: bool(want)})
		case OpRegex:
			pattern, ok := arg.(value.String)
			if !ok {
				return nil, fmt.Errorf("%s on %q expects a string, got %s", op, field, value.KindOf(arg))
			}
			re, err := NewRegex(field, string(pattern))
			if err != nil {
				return nil, fmt.Errorf("%s on %q: %v", op, field, err)
			}
			terms = append(terms, re)
		default:
			if strings.HasPrefix(op, "$") {
				return nil, fmt.Errorf("unsupported operator %q on %q", op, field)
			}
			return nil, fmt.Errorf("field %q mixes operators with literal key %q", field, op)
		}
	}
	return terms, nil
}

func hasOperatorKey(obj value.Object) bool {
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}
