// Package workflowdef loads and validates declarative workflow definitions:
// ordered trees of steps that the engine walks against a WorkflowState.
package workflowdef

import (
	"fmt"

	"github.com/slidecraft/orchestrator/internal/domain"
)

// Definition is a named, versioned workflow: an ordered list of top-level
// steps (§3 Workflow Definition).
type Definition struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Steps   []Step `yaml:"steps" json:"steps"`
}

// Step is one node in the declared step tree (§3, §4.1).
type Step struct {
	ID         string         `yaml:"id" json:"id"`
	Kind       domain.StepKind `yaml:"kind" json:"kind"`
	WorkerName string         `yaml:"worker,omitempty" json:"worker,omitempty"`

	// InputMapping names a registered pure function of state (+ optional
	// item) that produces the worker's JSON input.
	InputMapping string `yaml:"input,omitempty" json:"input,omitempty"`

	// Mutation names a registered (state, result, inputs, item) -> state
	// function applied after a worker step succeeds.
	Mutation string `yaml:"mutation,omitempty" json:"mutation,omitempty"`

	OnFailure   domain.OnFailure `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
	CancelScope string           `yaml:"cancel_scope,omitempty" json:"cancel_scope,omitempty"`

	// parallel: static child steps run concurrently, barrier-committed in
	// declaration order.
	Children []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	// foreach: items_path resolves a sequence in state; Child runs once
	// per item, up to Concurrency in flight, barrier-committed in
	// item-declaration order.
	ItemsPath   string `yaml:"items_path,omitempty" json:"items_path,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Child       *Step  `yaml:"step,omitempty" json:"step,omitempty"`

	// conditional: Predicate names a registered bool-returning function
	// of state, or is an expr expression evaluated against state fields.
	Predicate string `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	Then      *Step  `yaml:"then,omitempty" json:"then,omitempty"`
	Else      *Step  `yaml:"else,omitempty" json:"else,omitempty"`
}

const defaultForeachConcurrency = 4

// ValidationError reports a structural problem with a Definition, raised at
// load time rather than discovered mid-run (§9 Design Notes: "an unknown id
// at load time is a fatal config error").
type ValidationError struct {
	StepID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("workflow definition: %s", e.Reason)
	}
	return fmt.Sprintf("workflow definition: step %q: %s", e.StepID, e.Reason)
}

// MutationExists and PredicateExists abstract the closed registries the
// engine owns, so Validate can reject unknown names before any step runs.
type MutationExists func(name string) bool
type PredicateExists func(name string) bool

// Validate checks structural well-formedness and, when the registries are
// supplied, that every referenced mutation/predicate name resolves against
// the engine's closed registry. Input-mapping names are not checked here.
func Validate(def *Definition, mutationExists MutationExists, predicateExists PredicateExists) error {
	if def.Name == "" {
		return &ValidationError{Reason: "name is required"}
	}
	if len(def.Steps) == 0 {
		return &ValidationError{Reason: "at least one step is required"}
	}

	seen := make(map[string]struct{})
	var walk func(step Step, inForeachItem bool) error
	walk = func(step Step, inForeachItem bool) error {
		if step.ID == "" {
			return &ValidationError{Reason: "step id is required"}
		}
		if _, dup := seen[step.ID]; dup {
			return &ValidationError{StepID: step.ID, Reason: "duplicate step id"}
		}
		seen[step.ID] = struct{}{}

		if !step.Kind.IsValid() {
			return &ValidationError{StepID: step.ID, Reason: fmt.Sprintf("unknown step kind %q", step.Kind)}
		}
		if !step.OnFailure.IsValid() {
			return &ValidationError{StepID: step.ID, Reason: fmt.Sprintf("unknown on_failure %q", step.OnFailure)}
		}

		switch step.Kind {
		case domain.StepWorker:
			if step.WorkerName == "" {
				return &ValidationError{StepID: step.ID, Reason: "worker step requires worker_name"}
			}
			if step.Mutation != "" && mutationExists != nil && !mutationExists(step.Mutation) {
				return &ValidationError{StepID: step.ID, Reason: fmt.Sprintf("unknown mutation %q", step.Mutation)}
			}
		case domain.StepParallel:
			if len(step.Children) == 0 {
				return &ValidationError{StepID: step.ID, Reason: "parallel step requires at least one child"}
			}
			for i := range step.Children {
				if err := walk(step.Children[i], inForeachItem); err != nil {
					return err
				}
			}
		case domain.StepForeach:
			if step.ItemsPath == "" {
				return &ValidationError{StepID: step.ID, Reason: "foreach step requires items_path"}
			}
			if step.Child == nil {
				return &ValidationError{StepID: step.ID, Reason: "foreach step requires a child step"}
			}
			if step.Concurrency < 0 {
				return &ValidationError{StepID: step.ID, Reason: "concurrency must be >= 0"}
			}
			if err := walk(*step.Child, true); err != nil {
				return err
			}
		case domain.StepConditional:
			if step.Predicate == "" {
				return &ValidationError{StepID: step.ID, Reason: "conditional step requires a predicate"}
			}
			if predicateExists != nil && !predicateExists(step.Predicate) {
				return &ValidationError{StepID: step.ID, Reason: fmt.Sprintf("unknown predicate %q", step.Predicate)}
			}
			if step.Then == nil {
				return &ValidationError{StepID: step.ID, Reason: "conditional step requires a then branch"}
			}
			if err := walk(*step.Then, inForeachItem); err != nil {
				return err
			}
			if step.Else != nil {
				if err := walk(*step.Else, inForeachItem); err != nil {
					return err
				}
			}
		case domain.StepNoop:
			// no further constraints
		}
		return nil
	}

	for i := range def.Steps {
		if err := walk(def.Steps[i], false); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveConcurrency returns the step's configured foreach concurrency,
// or the documented default of 4 when unset (§4.1: "default 4, min 1").
func (s Step) EffectiveConcurrency() int {
	if s.Concurrency <= 0 {
		return defaultForeachConcurrency
	}
	return s.Concurrency
}
