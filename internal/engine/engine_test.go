package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
	"github.com/slidecraft/orchestrator/internal/worker"
	"github.com/slidecraft/orchestrator/internal/workflowdef"
)

// fakeTransport is a worker.Transport stand-in with per-worker canned
// results/errors and an optional delay, used to control completion order
// without a real remote call.
type fakeTransport struct {
	calls   int32
	delay   map[string]time.Duration
	result  map[string]any
	failErr map[string]error
}

func (t *fakeTransport) Call(ctx context.Context, workerName string, input any, meta worker.CallMeta) (worker.Result, error) {
	atomic.AddInt32(&t.calls, 1)
	if d, ok := t.delay[workerName]; ok && d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return worker.Result{}, worker.NewCallError(worker.ErrTimeout, "context done during delay")
		}
	}
	if err, ok := t.failErr[workerName]; ok {
		return worker.Result{}, err
	}
	return worker.Result{Result: t.result[workerName]}, nil
}

func newTestEngine(t *testing.T, transports map[string]worker.Transport) *Engine {
	t.Helper()
	client := worker.NewClient(transports, worker.DefaultCircuitBreakerConfig(), worker.RetryPolicy{MaxAttempts: 1}, zerolog.Nop())
	return New(client, nil, zerolog.Nop())
}

func newTestSession(t *testing.T) (*domain.Session, context.Context) {
	t.Helper()
	budget := domain.NewBudget(1_000_000, time.Minute, 10)
	sess, ctx := domain.NewSession(context.Background(), "sess-1", "pres-1", time.Now().Add(time.Minute), budget)
	return sess, ctx
}

// Two parallel children register their mutations against the same
// read-only snapshot; the slower one (by wall-clock completion) is
// declared first, so a correct barrier commit applies its mutation before
// the faster sibling's regardless of which goroutine actually finishes
// first.
func TestRunParallelCommitsMutationsInDeclarationOrder(t *testing.T) {
	transport := &fakeTransport{
		delay: map[string]time.Duration{"slow": 40 * time.Millisecond, "fast": 0},
		result: map[string]any{
			"slow": map[string]any{"findings": []any{map[string]any{"topic": "first"}}},
			"fast": map[string]any{"findings": []any{map[string]any{"topic": "second"}}},
		},
	}
	eng := newTestEngine(t, map[string]worker.Transport{"slow": transport, "fast": transport})

	def := &workflowdef.Definition{
		Name:    "test",
		Version: "1",
		Steps: []workflowdef.Step{
			{
				ID:   "fan-out",
				Kind: domain.StepParallel,
				Children: []workflowdef.Step{
					{ID: "child-slow", Kind: domain.StepWorker, WorkerName: "slow", InputMapping: "research_input", Mutation: "append_research_finding"},
					{ID: "child-fast", Kind: domain.StepWorker, WorkerName: "fast", InputMapping: "research_input", Mutation: "append_research_finding"},
				},
			},
		},
	}

	state := domain.NewWorkflowState("pres-1")
	sess, ctx := newTestSession(t)

	final, err := eng.Run(ctx, def, state, sess)
	require.NoError(t, err)
	require.Len(t, final.Research.Findings, 2)
	assert.Equal(t, "first", final.Research.Findings[0].Topic)
	assert.Equal(t, "second", final.Research.Findings[1].Topic)
}

// Run bumps state.Version exactly once per top-level step, regardless of
// step kind, and never out of order with the step loop.
func TestRunBumpsVersionOncePerTopLevelStep(t *testing.T) {
	eng := newTestEngine(t, nil)
	def := &workflowdef.Definition{
		Name:    "test",
		Version: "1",
		Steps: []workflowdef.Step{
			{ID: "a", Kind: domain.StepNoop},
			{ID: "b", Kind: domain.StepNoop},
			{ID: "c", Kind: domain.StepNoop},
		},
	}
	state := domain.NewWorkflowState("pres-1")
	sess, ctx := newTestSession(t)

	final, err := eng.Run(ctx, def, state, sess)
	require.NoError(t, err)
	assert.EqualValues(t, 3, final.Version)
}

// A failing foreach item (non-retryable worker error) cancels the batch
// context; subsequent items must never reach the transport at all, not
// merely finish without effect.
func TestRunForeachStopsStartingItemsAfterCancellation(t *testing.T) {
	transport := &fakeTransport{
		failErr: map[string]error{"flaky": worker.NewCallError(worker.ErrBadRequest, "always fails")},
	}
	eng := newTestEngine(t, map[string]worker.Transport{"flaky": transport})

	def := &workflowdef.Definition{
		Name:    "test",
		Version: "1",
		Steps: []workflowdef.Step{
			{
				ID:          "per-section",
				Kind:        domain.StepForeach,
				ItemsPath:   "state.outline.sections",
				Concurrency: 1,
				Child: &workflowdef.Step{
					ID:           "write",
					Kind:         domain.StepWorker,
					WorkerName:   "flaky",
					InputMapping: "write_slide_input",
					Mutation:     "upsert_slide",
				},
			},
		},
	}

	state := domain.NewWorkflowState("pres-1")
	state.Outline = domain.Outline{Sections: []domain.OutlineSection{
		{ID: "s1", Title: "One", Bullets: []string{"a"}},
		{ID: "s2", Title: "Two", Bullets: []string{"b"}},
		{ID: "s3", Title: "Three", Bullets: []string{"c"}},
		{ID: "s4", Title: "Four", Bullets: []string{"d"}},
		{ID: "s5", Title: "Five", Bullets: []string{"e"}},
	}}
	sess, ctx := newTestSession(t)

	_, err := eng.Run(ctx, def, state, sess)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.EqualValues(t, 1, atomic.LoadInt32(&transport.calls),
		"concurrency=1 foreach must stop issuing new item calls once the batch is cancelled")
}

// Cancelling the outer context before a top-level step starts must be
// observed immediately, without invoking the step at all.
func TestRunObservesContextCancellationBeforeStep(t *testing.T) {
	eng := newTestEngine(t, nil)
	def := &workflowdef.Definition{
		Name:    "test",
		Version: "1",
		Steps:   []workflowdef.Step{{ID: "a", Kind: domain.StepNoop}},
	}
	state := domain.NewWorkflowState("pres-1")
	sess, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Run(ctx, def, state, sess)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCancelled))
}
