package quality

import (
	"context"
	"fmt"

	"github.com/slidecraft/orchestrator/internal/domain"
	"github.com/slidecraft/orchestrator/internal/worker"
)

// GateTransport adapts the deterministic Gate onto the worker.Transport
// interface so the "quality-gate" step can be declared in the step tree
// like any other worker call, flowing through the same timeout/retry
// envelope (§4.2, §4.5). Assess writes per-slide QualityMetrics and
// state.Quality directly; the map it returns here is round-tripped
// through store_quality_summary for consistency with every other worker
// result, not because the gate needs a second write.
type GateTransport struct {
	gate *Gate
}

// NewGateTransport wraps gate for use as a worker.Transport.
func NewGateTransport(gate *Gate) *GateTransport {
	return &GateTransport{gate: gate}
}

func (t *GateTransport) Call(ctx context.Context, workerName string, input any, meta worker.CallMeta) (worker.Result, error) {
	state, ok := input.(*domain.WorkflowState)
	if !ok {
		return worker.Result{}, worker.NewCallError(worker.ErrBadRequest, fmt.Sprintf("%s: expected *domain.WorkflowState input, got %T", workerName, input))
	}

	summary, err := t.gate.Assess(ctx, state)
	if err != nil {
		return worker.Result{}, worker.NewCallError(worker.ErrInternal, err.Error())
	}

	failures := make([]any, 0, len(summary.GateFailures))
	for _, f := range summary.GateFailures {
		reasons := make([]any, 0, len(f.Reasons))
		for _, r := range f.Reasons {
			reasons = append(reasons, r)
		}
		failures = append(failures, map[string]any{"slide_id": f.SlideID, "reasons": reasons})
	}
	fixes := make([]any, 0, len(summary.FixesApplied))
	for _, f := range summary.FixesApplied {
		fixes = append(fixes, f)
	}

	return worker.Result{
		Result: map[string]any{
			"overall_presentation_score": float64(summary.OverallPresentationScore),
			"manual_review_required":    summary.ManualReviewRequired,
			"gate_failures":             failures,
			"fixes_applied":             fixes,
		},
	}, nil
}
