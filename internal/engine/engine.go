// Package engine implements the declarative workflow executor (§4.1): it
// walks a workflowdef.Definition against a domain.WorkflowState, calling
// out to the Worker Client and applying named mutations at barrier
// commits so that parallel and foreach steps stay deterministic.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
	"github.com/slidecraft/orchestrator/internal/telemetry"
	"github.com/slidecraft/orchestrator/internal/worker"
	"github.com/slidecraft/orchestrator/internal/workflowdef"
)

// Engine executes workflow definitions. It owns no workflow-specific
// state; every run is independent (§5 "different workflow runs are fully
// independent").
type Engine struct {
	registry   *Registry
	conditions *ConditionEvaluator
	workers    *worker.Client
	sink       telemetry.Sink
	tracer     *telemetry.Tracer
	log        zerolog.Logger
}

// New builds an Engine with the closed mutation/input-mapping/predicate
// registry wired in. Every step additionally opens an OTel span via a
// Tracer scoped to this package, so a configured exporter sees one span
// per step without the engine depending on whether one is registered.
func New(workers *worker.Client, sink telemetry.Sink, log zerolog.Logger) *Engine {
	return &Engine{
		registry:   NewRegistry(),
		conditions: NewConditionEvaluator(),
		workers:    workers,
		sink:       sink,
		tracer:     telemetry.NewTracer("presentation-orchestrator/engine"),
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Registry exposes the closed mutation/predicate registry so callers can
// build the workflowdef.Validate closures.
func (e *Engine) Registry() *Registry { return e.registry }

// MutationExists adapts the registry for workflowdef.Validate.
func (e *Engine) MutationExists(name string) bool { return e.registry.MutationExists(name) }

// PredicateExists adapts the registry plus the expression evaluator for
// workflowdef.Validate: a predicate name is valid if it is either a
// registered Go function or a syntactically valid expr expression.
func (e *Engine) PredicateExists(name string) bool {
	return e.registry.PredicateExists(name) || e.conditions.CanCompile(name)
}

// Validate type-checks a definition's structure against this engine's
// closed registries, per §9 Design Notes.
func (e *Engine) Validate(def *workflowdef.Definition) error {
	return workflowdef.Validate(def, e.MutationExists, e.PredicateExists)
}

// pendingMutation is a deferred state write, computed against a read-only
// snapshot and applied only once its containing step's barrier commits
// (§4.1, §5).
type pendingMutation struct {
	stepID string
	apply  func(state *domain.WorkflowState) error
}

// runContext carries the values every recursive step call needs, without
// growing Engine's own method signatures unboundedly.
type runContext struct {
	traceID string
	session *domain.Session
}

// Run executes definition against initial_state and returns the final
// state (§4.1 "run(definition, initial_state, context) → {final_state,
// trace}"; trace is recorded to the Engine's telemetry.Sink as it
// happens, and can additionally be read back from a telemetry.Log).
func (e *Engine) Run(ctx context.Context, def *workflowdef.Definition, state *domain.WorkflowState, sess *domain.Session) (*domain.WorkflowState, error) {
	rc := &runContext{traceID: sess.SessionID, session: sess}

	for _, step := range def.Steps {
		select {
		case <-ctx.Done():
			return state, apperr.Cancelled(step.ID, "cancelled before step started")
		default:
		}

		sess.SetActiveStep(step.ID)
		pending, err := e.executeStep(ctx, rc, step, state, nil)
		if err != nil {
			return state, err
		}
		if err := applyPending(state, pending); err != nil {
			return state, apperr.Internal(fmt.Sprintf("applying mutations for step %s", step.ID), err)
		}
		state.BumpVersion()
	}
	return state, nil
}

func applyPending(state *domain.WorkflowState, pending []pendingMutation) error {
	for _, p := range pending {
		if err := p.apply(state); err != nil {
			return fmt.Errorf("mutation for step %s: %w", p.stepID, err)
		}
	}
	return nil
}

// executeStep computes (but for worker/parallel/foreach does not apply)
// the mutations a step produces, then folds in the step's own on_failure
// policy.
func (e *Engine) executeStep(ctx context.Context, rc *runContext, step workflowdef.Step, state *domain.WorkflowState, item any) ([]pendingMutation, error) {
	spanCtx, span := e.tracer.StartStep(ctx, step.ID, string(step.Kind), step.WorkerName)
	pending, err := e.runKind(spanCtx, rc, step, state, item)
	span.End()
	return applyFailurePolicy(step, pending, err, e.log)
}

func applyFailurePolicy(step workflowdef.Step, pending []pendingMutation, err error, log zerolog.Logger) ([]pendingMutation, error) {
	if err == nil {
		return pending, nil
	}
	if apperr.IsKind(err, apperr.KindCancelled) {
		return nil, err
	}
	switch step.OnFailure {
	case domain.OnFailureContinue:
		log.Warn().Str("step_id", step.ID).Err(err).Msg("step failed, continuing per on_failure=continue")
		return nil, nil
	default:
		return nil, err
	}
}

func (e *Engine) runKind(ctx context.Context, rc *runContext, step workflowdef.Step, state *domain.WorkflowState, item any) ([]pendingMutation, error) {
	switch step.Kind {
	case domain.StepNoop:
		return nil, nil

	case domain.StepWorker:
		pm, err := e.runWorkerStep(ctx, rc, step, state, item)
		if err != nil {
			return nil, err
		}
		return []pendingMutation{pm}, nil

	case domain.StepParallel:
		return e.runParallel(ctx, rc, step, state)

	case domain.StepForeach:
		return e.runForeach(ctx, rc, step, state)

	case domain.StepConditional:
		return e.runConditional(ctx, rc, step, state, item)

	default:
		return nil, apperr.Internal(fmt.Sprintf("unhandled step kind %q", step.Kind), nil)
	}
}

func (e *Engine) runWorkerStep(ctx context.Context, rc *runContext, step workflowdef.Step, state *domain.WorkflowState, item any) (pendingMutation, error) {
	mapping, ok := e.registry.inputMapping(step.InputMapping)
	if !ok {
		return pendingMutation{}, apperr.Internal(fmt.Sprintf("no input mapping registered for %q", step.InputMapping), nil)
	}
	input, err := mapping(state, item)
	if err != nil {
		return pendingMutation{}, apperr.Validation(step.ID, "input mapping failed", err)
	}

	meta := worker.CallMeta{TraceID: rc.traceID, StepID: step.ID, PresentationID: state.PresentationID}
	budget := rc.session.Budget()

	started := time.Now()
	result, callErr := e.workers.Invoke(ctx, step.WorkerName, input, meta, budget)

	if callErr != nil && step.OnFailure == domain.OnFailureRetry && budget.UseRetry() {
		e.log.Info().Str("step_id", step.ID).Msg("worker call exhausted retries, consuming session retry budget for one more attempt")
		result, callErr = e.workers.Invoke(ctx, step.WorkerName, input, meta, budget)
	}

	if callErr != nil {
		e.emit(rc, telemetry.Event{
			TraceID: rc.traceID, StepID: step.ID, Worker: step.WorkerName,
			StartedAt: started, DurationMS: time.Since(started).Milliseconds(),
			Status: telemetry.StatusFailed, Error: callErr.Error(),
		})
		return pendingMutation{}, callErr
	}

	e.emit(rc, telemetry.Event{
		TraceID: rc.traceID, StepID: step.ID, Worker: step.WorkerName,
		StartedAt: started, DurationMS: result.DurationMS,
		PromptTokens: result.Usage.PromptTokens, CompletionTokens: result.Usage.CompletionTokens,
		Cost: result.Usage.Cost, Status: telemetry.StatusSucceeded, Attempts: result.Attempts,
	})

	if step.Mutation == "" {
		return pendingMutation{stepID: step.ID, apply: func(*domain.WorkflowState) error { return nil }}, nil
	}
	mutationFn, ok := e.registry.mutation(step.Mutation)
	if !ok {
		return pendingMutation{}, apperr.Internal(fmt.Sprintf("no mutation registered for %q", step.Mutation), nil)
	}

	return pendingMutation{
		stepID: step.ID,
		apply: func(s *domain.WorkflowState) error {
			return mutationFn(s, result.Result, input, item)
		},
	}, nil
}

func (e *Engine) emit(rc *runContext, ev telemetry.Event) {
	if e.sink == nil {
		return
	}
	ev.TraceID = rc.traceID
	e.sink.Record(ev)
}

// runParallel fans out the step's static children against the same
// read-only snapshot, waits for all of them (barrier), and returns their
// pending mutations concatenated in declaration order regardless of
// completion order (§4.1, §5, §8 property 1).
func (e *Engine) runParallel(ctx context.Context, rc *runContext, step workflowdef.Step, state *domain.WorkflowState) ([]pendingMutation, error) {
	snapshot := state.Clone()
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]pendingMutation, len(step.Children))
	errs := make([]error, len(step.Children))

	var wg sync.WaitGroup
	for i, child := range step.Children {
		wg.Add(1)
		go func(i int, child workflowdef.Step) {
			defer wg.Done()
			pending, err := e.executeStep(batchCtx, rc, child, snapshot, nil)
			results[i] = pending
			errs[i] = err
			if err != nil {
				cancel()
			}
		}(i, child)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var out []pendingMutation
	for _, pending := range results {
		out = append(out, pending...)
	}
	return out, nil
}

// runForeach resolves items_path, runs the child step once per item with
// at most EffectiveConcurrency in flight, and barrier-commits in
// item-declaration order (§4.1, §5, §8 property 1).
func (e *Engine) runForeach(ctx context.Context, rc *runContext, step workflowdef.Step, state *domain.WorkflowState) ([]pendingMutation, error) {
	items, err := resolveItemsPath(state, step.ItemsPath)
	if err != nil {
		return nil, apperr.Validation(step.ID, "failed to resolve items_path", err)
	}

	snapshot := state.Clone()
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]pendingMutation, len(items))
	errs := make([]error, len(items))

	sem := make(chan struct{}, step.EffectiveConcurrency())
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-batchCtx.Done():
			// Cancellation observed: items beyond this point are not
			// started at all (§5 S5 scenario).
			errs[i] = apperr.Cancelled(step.ID, "cancelled before item started")
			continue
		case sem <- struct{}{}:
		}
		if batchCtx.Err() != nil {
			// select picks at random when both cases are ready; recheck so a
			// freed slot never starts an item after cancellation.
			<-sem
			errs[i] = apperr.Cancelled(step.ID, "cancelled before item started")
			continue
		}

		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			defer func() { <-sem }()
			pending, err := e.executeStep(batchCtx, rc, *step.Child, snapshot, item)
			results[i] = pending
			errs[i] = err
			if err != nil && !apperr.IsKind(err, apperr.KindCancelled) {
				cancel()
			}
		}(i, item)
	}
	wg.Wait()

	var out []pendingMutation
	for i := range items {
		if errs[i] != nil {
			if apperr.IsKind(errs[i], apperr.KindCancelled) {
				continue
			}
			return nil, errs[i]
		}
		out = append(out, results[i]...)
	}
	return out, nil
}

func (e *Engine) runConditional(ctx context.Context, rc *runContext, step workflowdef.Step, state *domain.WorkflowState, item any) ([]pendingMutation, error) {
	take, err := e.evaluatePredicate(step.Predicate, state)
	if err != nil {
		return nil, apperr.Validation(step.ID, "predicate evaluation failed", err)
	}

	var branch *workflowdef.Step
	if take {
		branch = step.Then
	} else {
		branch = step.Else
	}
	if branch == nil {
		return nil, nil
	}
	return e.executeStep(ctx, rc, *branch, state, item)
}

func (e *Engine) evaluatePredicate(name string, state *domain.WorkflowState) (bool, error) {
	if fn, ok := e.registry.predicate(name); ok {
		return fn(state)
	}
	return e.conditions.Evaluate(name, state)
}

// resolveItemsPath implements the closed set of foreach sources a
// workflow definition may declare (§3 "foreach steps carry an items_path
// resolving to a sequence in state").
func resolveItemsPath(state *domain.WorkflowState, path string) ([]any, error) {
	switch path {
	case "state.outline.sections":
		items := make([]any, len(state.Outline.Sections))
		for i, s := range state.Outline.Sections {
			items[i] = s
		}
		return items, nil
	case "state.slides":
		items := make([]any, len(state.Slides))
		for i, s := range state.Slides {
			items[i] = s
		}
		return items, nil
	case "state.research.findings":
		items := make([]any, len(state.Research.Findings))
		for i, f := range state.Research.Findings {
			items[i] = f
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unknown items_path %q", path)
	}
}
