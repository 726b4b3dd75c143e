package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// ConditionEvaluator compiles and caches expr-lang expressions used as the
// fallback for conditional-step predicates that are not a named Go
// function (§4.1 "evaluate a named predicate against state"; the source
// workflow format in §6 allows any pure expression of state).
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConditionEvaluator creates an evaluator with an empty compile cache.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]*vm.Program)}
}

// CanCompile reports whether expression is syntactically valid, without
// evaluating it; used at workflow-definition load time.
func (ce *ConditionEvaluator) CanCompile(expression string) bool {
	_, err := expr.Compile(expression, expr.AsBool())
	return err == nil
}

// Evaluate compiles (or reuses a cached compile of) expression and runs it
// against the given state, converted to a plain map for the expr VM.
func (ce *ConditionEvaluator) Evaluate(expression string, state *domain.WorkflowState) (bool, error) {
	program, err := ce.getCompiled(expression)
	if err != nil {
		return false, apperr.Validation("", fmt.Sprintf("predicate %q failed to compile", expression), err)
	}

	vars, err := stateToVars(state)
	if err != nil {
		return false, apperr.Internal("failed to project state for predicate evaluation", err)
	}

	result, err := expr.Run(program, vars)
	if err != nil {
		return false, apperr.Validation("", fmt.Sprintf("predicate %q failed to evaluate", expression), err)
	}

	asBool, ok := result.(bool)
	if !ok {
		return false, apperr.Validation("", fmt.Sprintf("predicate %q did not evaluate to a boolean", expression), nil)
	}
	return asBool, nil
}

func (ce *ConditionEvaluator) getCompiled(expression string) (*vm.Program, error) {
	ce.mu.RLock()
	program, ok := ce.cache[expression]
	ce.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, err
	}

	ce.mu.Lock()
	ce.cache[expression] = program
	ce.mu.Unlock()
	return program, nil
}

// stateToVars projects WorkflowState into the plain map expr expects,
// round-tripping through JSON the way the rest of this codebase converts
// between typed structs and loosely-typed configuration.
func stateToVars(state *domain.WorkflowState) (map[string]any, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, err
	}
	return vars, nil
}
