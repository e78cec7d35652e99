// Package expr implements the restricted arithmetic expression language
// used by pricing rules: decimal literals, named parameters, the four
// binary operators with standard precedence, unary minus, and parentheses.
// Evaluation is a pure function of (expression, bindings), so parsed
// expressions are cached and shared freely across goroutines.
package expr

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Evaluator parses and evaluates rule expressions. The zero value is not
// usable; construct with New. Safe for concurrent use.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]node
}

// New creates an Evaluator with an empty parse cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]node)}
}

func (e *Evaluator) parse(expression string) (node, error) {
	e.mu.RLock()
	root, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return root, nil
	}

	root, err := parse(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = root
	e.mu.Unlock()
	return root, nil
}

// Validate parses the expression without evaluating it. It fails with a
// SyntaxError on malformed input and with an UnknownParameterError if an
// identifier is not among the declared parameter names.
func (e *Evaluator) Validate(expression string, declared map[string]struct{}) error {
	root, err := e.parse(expression)
	if err != nil {
		return err
	}
	idents := make(map[string]struct{})
	root.identifiers(idents)
	for _, name := range sortedNames(idents) {
		if _, ok := declared[name]; !ok {
			return &UnknownParameterError{Name: name}
		}
	}
	return nil
}

// Evaluate parses (or reuses a cached parse of) the expression and
// evaluates it against the bindings. Referencing an unbound identifier
// yields an UnknownParameterError; a zero divisor yields a
// DivisionByZeroError. Negative results are legal here; non-negativity is
// enforced only at the Money boundary.
func (e *Evaluator) Evaluate(expression string, bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	root, err := e.parse(expression)
	if err != nil {
		return decimal.Zero, err
	}
	return root.eval(bindings)
}

// Identifiers returns the sorted set of parameter names referenced by the
// expression. Used by authoring tools to report what a rule depends on.
func (e *Evaluator) Identifiers(expression string) ([]string, error) {
	root, err := e.parse(expression)
	if err != nil {
		return nil, err
	}
	idents := make(map[string]struct{})
	root.identifiers(idents)
	return sortedNames(idents), nil
}

// DeclaredSet is a convenience for building the declared-parameter set
// passed to Validate.
func DeclaredSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
