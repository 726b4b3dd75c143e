package engine

import "github.com/slidecraft/orchestrator/internal/domain"

// registerPredicates wires the small set of named conditional-step
// predicates that show up often enough to deserve a Go implementation
// instead of an expr expression (§4.1). Anything else is evaluated by
// ConditionEvaluator against a plain-map projection of state.
func registerPredicates(r *Registry) {
	r.addPredicate("clarify_finished", clarifyFinished)
	r.addPredicate("has_outline", hasOutline)
	r.addPredicate("manual_review_required", manualReviewRequired)
}

func clarifyFinished(state *domain.WorkflowState) (bool, error) {
	return state.Clarify.Finished, nil
}

func hasOutline(state *domain.WorkflowState) (bool, error) {
	return len(state.Outline.Sections) > 0, nil
}

func manualReviewRequired(state *domain.WorkflowState) (bool, error) {
	return state.Quality.ManualReviewRequired, nil
}
