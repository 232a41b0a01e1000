// Package expression evaluates the boolean condition expressions used by
// the workflow engine's `logic` step type (§4.8.2), grounded on the teacher's pkg/workflow/expression package,
// which wraps expr-lang/expr with a compiled-program cache and a pair of
// collection helpers the underlying language doesn't provide.
package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/forge/pkg/ferrors"
)

// Evaluator evaluates condition expressions against a workflow context,
// caching compiled programs keyed by source text.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New constructs an Evaluator with an empty compile cache.
func New() *Evaluator {
	return &Evaluator{cache: map[string]*vm.Program{}}
}

// Evaluate runs expression against ctx, which carries "steps" and "inputs"
// maps mirroring the template token namespaces of §4.8.4. An empty
// expression defaults to true (an unconditional logic step).
func (e *Evaluator) Evaluate(expression string, ctx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &ferrors.InvalidArgumentError{Field: "expression", Message: fmt.Sprintf("failed to compile expression: %s", err)}
	}

	evalCtx := make(map[string]interface{}, len(ctx)+3)
	for k, v := range ctx {
		evalCtx[k] = v
	}
	evalCtx["has"] = containsFunc
	evalCtx["includes"] = containsFunc
	evalCtx["length"] = lenFunc

	result, err := expr.Run(program, evalCtx)
	if err != nil {
		return false, &ferrors.InvalidArgumentError{Field: "expression", Message: fmt.Sprintf("expression evaluation failed: %s", err)}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &ferrors.InvalidArgumentError{Field: "expression", Message: fmt.Sprintf("expression must return boolean, got %T (%v)", result, result)}
	}
	return boolResult, nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]interface{}{
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
	}
	prog, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}
