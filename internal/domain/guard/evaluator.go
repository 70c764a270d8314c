// Package guard evaluates transition guard expressions.
//
// The language is a closed grammar: property access, comparison and equality
// operators, && and ||, unary ! and -, numeric/string/boolean/null literals, and
// calls to a fixed function library. Expressions can read only two bindings,
// entity and context.
package guard

import (
	"fmt"
	"strings"
	"sync"
)

// Result is the outcome of a guard evaluation
type Result struct {
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// Program is a parsed guard expression, safe for concurrent use
type Program struct {
	source string
	root   node
}

// Source returns the expression text
func (p *Program) Source() string {
	return p.source
}

// Compile parses a guard expression
func Compile(expr string) (*Program, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse guard %q: %w", expr, err)
	}
	return &Program{source: expr, root: root}, nil
}

// Run evaluates the program and returns its truthiness
func (p *Program) Run(entity, context map[string]any) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			err = fmt.Errorf("guard evaluation panicked: %v", r)
		}
	}()

	s := make(scope, len(library)+2)
	for name, fn := range library {
		s[name] = fn
	}
	s["entity"] = ensureMap(entity)
	s["context"] = ensureMap(context)

	v, err := eval(p.root, s)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Evaluator compiles guard expressions once and caches the programs
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*Program
}

// NewEvaluator creates a new guard evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		programs: make(map[string]*Program),
	}
}

// Evaluate never returns an error: parse and runtime failures yield Passed=false
// with the failure message. An empty guard passes.
func (e *Evaluator) Evaluate(expr string, entity, context map[string]any) Result {
	if strings.TrimSpace(expr) == "" {
		return Result{Passed: true}
	}

	prog, err := e.program(expr)
	if err != nil {
		return Result{Passed: false, Error: err.Error()}
	}

	passed, err := prog.Run(entity, context)
	if err != nil {
		return Result{Passed: false, Error: err.Error()}
	}
	return Result{Passed: passed}
}

func (e *Evaluator) program(expr string) (*Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := Compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expr] = prog
	e.mu.Unlock()
	return prog, nil
}

func ensureMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
