package domain

import (
	"context"
	"sync"
	"time"
)

// Session is the transient runtime context binding a workflow run to a
// presentation (§3, §4.4). It is bounded by the outermost workflow run and
// discarded on completion or timeout — it is never persisted.
type Session struct {
	SessionID      string
	PresentationID string
	Deadline       time.Time
	ActiveStepID   string

	budget *Budget

	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
}

// Budget tracks the remaining token and wall-clock allowance for one trace
// (§4.4 Budget allocation).
type Budget struct {
	mu                sync.Mutex
	maxTokens         int64
	tokensUsed        int64
	maxWallClock      time.Duration
	wallClockStart    time.Time
	totalRetriesUsed  int
	maxTotalRetries   int
}

// NewBudget creates a budget with the given per-trace caps.
func NewBudget(maxTokens int64, maxWallClock time.Duration, maxTotalRetries int) *Budget {
	return &Budget{
		maxTokens:       maxTokens,
		maxWallClock:    maxWallClock,
		wallClockStart:  time.Now(),
		maxTotalRetries: maxTotalRetries,
	}
}

// TokensRemaining returns the unspent token allowance.
func (b *Budget) TokensRemaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.maxTokens - b.tokensUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReserveTokens subtracts projected tokens from the budget, returning false
// (and leaving the budget untouched) if the projection would exceed it
// (§4.2 Budget: "check session.budget_remaining; subtract projected
// tokens; reject with budget_exceeded if insufficient").
func (b *Budget) ReserveTokens(projected int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokensUsed+projected > b.maxTokens {
		return false
	}
	b.tokensUsed += projected
	return true
}

// RecordActualTokens reconciles a reservation with the usage the worker
// actually reported, never going negative.
func (b *Budget) RecordActualTokens(projected, actual int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokensUsed += actual - projected
	if b.tokensUsed < 0 {
		b.tokensUsed = 0
	}
}

// WallClockExceeded reports whether the trace has run past its time cap.
func (b *Budget) WallClockExceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.wallClockStart) > b.maxWallClock
}

// UseRetry consumes one unit of the session-wide retry budget (distinct
// from a single step's own retry policy), returning false once exhausted.
func (b *Budget) UseRetry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.totalRetriesUsed >= b.maxTotalRetries {
		return false
	}
	b.totalRetriesUsed++
	return true
}

// NewSession opens a session bound to ctx with the given deadline. Callers
// get a child context whose cancellation is the session's single
// cancellation signal (§4.4, §5 Cancellation: "a single cancellation
// signal per session; any blocking call observes it").
func NewSession(ctx context.Context, sessionID, presentationID string, deadline time.Time, budget *Budget) (*Session, context.Context) {
	childCtx, cancel := context.WithDeadline(ctx, deadline)
	s := &Session{
		SessionID:      sessionID,
		PresentationID: presentationID,
		Deadline:       deadline,
		budget:         budget,
		cancel:         cancel,
		ctx:            childCtx,
	}
	return s, childCtx
}

// Budget returns the session's token/time/retry budget.
func (s *Session) Budget() *Budget { return s.budget }

// Cancel signals cancellation; every blocking call in the engine and
// worker client observes ctx.Done() and returns "cancelled" (§5).
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// SetActiveStep records which step is currently in flight, for
// cancellation/telemetry reporting.
func (s *Session) SetActiveStep(stepID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveStepID = stepID
}
