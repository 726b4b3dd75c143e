// Package apperr defines the error taxonomy propagated out of the workflow
// engine, worker client, session manager and quality gate (see §7 of the
// specification). Every error carries a Kind so callers can branch on it
// instead of matching strings; BudgetExceeded, QualityGateFailed and
// Conflict return wrapper types with extra fields that errors.As recovers.
package apperr

import (
	"fmt"
	"time"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindWorkerUnavailable Kind = "worker_unavailable"
	KindWorkerTransient  Kind = "worker_transient"
	KindBudgetExceeded   Kind = "budget_exceeded"
	KindCancelled        Kind = "cancelled"
	KindQualityGateFailed Kind = "quality_gate_failed"
	KindConflict         Kind = "conflict"
	KindInternal         Kind = "internal"
)

// Error is the common shape for every taxonomy member. StepID/Worker
// are empty when the error did not originate inside a step.
type Error struct {
	Kind      Kind
	Message   string
	StepID    string
	Worker    string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step %s): %s", e.Kind, e.Worker, e.StepID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apperr.KindX) work by comparing on Kind alone
// is not idiomatic for sentinel errors, so instead expose a helper.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return IsKind(unwrapper.Unwrap(), kind)
	} else {
		return false
	}
	return e.Kind == kind
}

func Validation(stepID, message string, cause error) *Error {
	return &Error{Kind: KindValidation, StepID: stepID, Message: message, Cause: cause}
}

func WorkerUnavailable(worker, stepID, message string, cause error) *Error {
	return &Error{Kind: KindWorkerUnavailable, Worker: worker, StepID: stepID, Message: message, Cause: cause, Retryable: false}
}

func WorkerTransient(worker, stepID, message string, cause error) *Error {
	return &Error{Kind: KindWorkerTransient, Worker: worker, StepID: stepID, Message: message, Cause: cause, Retryable: true}
}

// taxonomyError is embedded by the wrapper types below; embedding Error
// under its own name would make the field hide the Error() method.
type taxonomyError = Error

// BudgetError carries the accounting that tripped the budget cap, used by
// callers that want to report remaining/required amounts.
type BudgetError struct {
	taxonomyError
	Remaining int64
	Required  int64
	Dimension string // "tokens" or "wall_clock_ms"
}

func BudgetExceeded(stepID, dimension string, remaining, required int64) *BudgetError {
	return &BudgetError{
		taxonomyError: Error{
			Kind:    KindBudgetExceeded,
			StepID:  stepID,
			Message: fmt.Sprintf("%s budget exceeded: remaining=%d required=%d", dimension, remaining, required),
		},
		Remaining: remaining,
		Required:  required,
		Dimension: dimension,
	}
}

func Cancelled(stepID, message string) *Error {
	return &Error{Kind: KindCancelled, StepID: stepID, Message: message}
}

// QualityGateError reports the offending slides when a gate fails with no
// auto-fix path (§4.5). Non-fatal: the engine does not block advancement
// on this error, the caller decides.
type QualityGateError struct {
	taxonomyError
	Score        int
	Threshold    int
	OffendingIDs []string
}

func QualityGateFailed(score, threshold int, offendingIDs []string) *QualityGateError {
	return &QualityGateError{
		taxonomyError: Error{
			Kind:    KindQualityGateFailed,
			Message: fmt.Sprintf("aggregate score %d below threshold %d", score, threshold),
		},
		Score:        score,
		Threshold:    threshold,
		OffendingIDs: offendingIDs,
	}
}

// ConflictError reports an optimistic-concurrency mismatch on state commit.
type ConflictError struct {
	taxonomyError
	ExpectedVersion int64
	ActualVersion   int64
}

func Conflict(presentationID string, expected, actual int64) *ConflictError {
	return &ConflictError{
		taxonomyError: Error{
			Kind:    KindConflict,
			Message: fmt.Sprintf("presentation %s: expected version %d, found %d", presentationID, expected, actual),
		},
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// CircuitOpenError is returned by the worker client when a circuit is open
// and the call was rejected without touching the transport (§4.2, §8.6).
type CircuitOpenError struct {
	Worker   string
	OpenedAt time.Time
	Timeout  time.Duration
}

func (e *CircuitOpenError) Error() string {
	remaining := e.Timeout - time.Since(e.OpenedAt)
	return fmt.Sprintf("circuit for worker %q is open, retry in %v", e.Worker, remaining)
}

// AsAppError returns the taxonomy Error embedded in err, if any.
func AsAppError(err error) (*Error, bool) {
	switch v := err.(type) {
	case *Error:
		return v, true
	case *BudgetError:
		return &v.taxonomyError, true
	case *QualityGateError:
		return &v.taxonomyError, true
	case *ConflictError:
		return &v.taxonomyError, true
	}
	return nil, false
}
