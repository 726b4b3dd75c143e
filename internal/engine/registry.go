package engine

import (
	"fmt"

	"github.com/slidecraft/orchestrator/internal/domain"
)

// MutationFunc is a named pure state transition (§3, §4.1): it receives
// the worker result, the rendered worker input, and (inside a foreach) the
// current item, and applies its effect to state in place. The engine is
// the only caller; nothing else writes to WorkflowState directly.
type MutationFunc func(state *domain.WorkflowState, result any, inputs any, item any) error

// InputMappingFunc is a named pure function of state (+ optional foreach
// item) that produces a worker's JSON-shaped input (§3, §4.1).
type InputMappingFunc func(state *domain.WorkflowState, item any) (any, error)

// PredicateFunc is a named pure boolean function of state used by
// conditional steps (§4.1).
type PredicateFunc func(state *domain.WorkflowState) (bool, error)

// Registry is the closed set of mutation/input-mapping/predicate
// functions a Definition may reference by name (§9 Design Notes: "expose a
// statically known registry... so that an unknown id at load time is a
// fatal config error rather than a runtime surprise").
type Registry struct {
	mutations     map[string]MutationFunc
	inputMappings map[string]InputMappingFunc
	predicates    map[string]PredicateFunc
}

// NewRegistry builds the registry with every statically known function
// wired in. There is no dynamic registration path at runtime.
func NewRegistry() *Registry {
	r := &Registry{
		mutations:     make(map[string]MutationFunc),
		inputMappings: make(map[string]InputMappingFunc),
		predicates:    make(map[string]PredicateFunc),
	}
	registerMutations(r)
	registerInputMappings(r)
	registerPredicates(r)
	return r
}

func (r *Registry) addMutation(name string, fn MutationFunc) {
	if _, exists := r.mutations[name]; exists {
		panic(fmt.Sprintf("engine: duplicate mutation registration %q", name))
	}
	r.mutations[name] = fn
}

func (r *Registry) addInputMapping(name string, fn InputMappingFunc) {
	if _, exists := r.inputMappings[name]; exists {
		panic(fmt.Sprintf("engine: duplicate input mapping registration %q", name))
	}
	r.inputMappings[name] = fn
}

func (r *Registry) addPredicate(name string, fn PredicateFunc) {
	if _, exists := r.predicates[name]; exists {
		panic(fmt.Sprintf("engine: duplicate predicate registration %q", name))
	}
	r.predicates[name] = fn
}

// MutationExists reports whether name resolves in the closed registry;
// satisfies workflowdef.MutationExists for load-time validation.
func (r *Registry) MutationExists(name string) bool {
	_, ok := r.mutations[name]
	return ok
}

// PredicateExists reports whether name resolves to a registered named
// predicate function. Expression-style predicates (arbitrary expr syntax)
// are validated separately by the ConditionEvaluator; callers building the
// workflowdef.PredicateExists check should OR the two together.
func (r *Registry) PredicateExists(name string) bool {
	_, ok := r.predicates[name]
	return ok
}

func (r *Registry) mutation(name string) (MutationFunc, bool) {
	fn, ok := r.mutations[name]
	return fn, ok
}

func (r *Registry) inputMapping(name string) (InputMappingFunc, bool) {
	fn, ok := r.inputMappings[name]
	return fn, ok
}

func (r *Registry) predicate(name string) (PredicateFunc, bool) {
	fn, ok := r.predicates[name]
	return fn, ok
}
