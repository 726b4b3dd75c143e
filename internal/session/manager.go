// Package session implements the Session Manager (§4.4): opening a
// working session against a presentation's state, budget allocation,
// and committing mutated state back with conflict detection.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// StateStore is the persistence dependency the Session Manager commits
// through — satisfied by *storage.StateStore in production.
type StateStore interface {
	Get(ctx context.Context, presentationID string) (*domain.WorkflowState, error)
	Commit(ctx context.Context, state *domain.WorkflowState, expectedVersion int64) error
}

// BudgetDefaults are the session-wide caps applied when a request doesn't
// override them (§4.4, §6 MAX_TOKENS_PER_TRACE / MAX_MS_PER_TRACE).
type BudgetDefaults struct {
	MaxTokens       int64
	MaxWallClock    time.Duration
	MaxTotalRetries int
}

const defaultMaxTotalRetries = 20

// OpenRequest is the caller-supplied input to Open.
type OpenRequest struct {
	PresentationID string
	Deadline       time.Time
	MaxTokens      int64         // 0 uses BudgetDefaults.MaxTokens
	MaxWallClock   time.Duration // 0 uses BudgetDefaults.MaxWallClock
}

// Manager opens, commits and closes sessions against a StateStore. It
// also tracks which presentation_ids currently have an open session, so
// a second concurrent Open on the same presentation is rejected up
// front rather than racing to commit (§4.4 conflict detection).
type Manager struct {
	store    StateStore
	defaults BudgetDefaults

	mu   sync.Mutex
	open map[string]struct{}
}

// NewManager builds a Manager against store with the given session-wide
// budget defaults.
func NewManager(store StateStore, defaults BudgetDefaults) *Manager {
	if defaults.MaxTotalRetries == 0 {
		defaults.MaxTotalRetries = defaultMaxTotalRetries
	}
	return &Manager{store: store, defaults: defaults, open: make(map[string]struct{})}
}

// Opened is what Open hands back: the live domain.Session plus the
// state snapshot loaded from storage and the version it was read at,
// which Commit uses for optimistic concurrency.
type Opened struct {
	Session    *domain.Session
	Ctx        context.Context
	State      *domain.WorkflowState
	ReadVersion int64
}

// Open loads the presentation's current state, allocates a budget, and
// marks the presentation_id busy (§4.4). Returns a conflict error if a
// session is already open for this presentation_id.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Opened, error) {
	m.mu.Lock()
	if _, busy := m.open[req.PresentationID]; busy {
		m.mu.Unlock()
		return nil, apperr.Conflict(req.PresentationID, -1, -1)
	}
	m.open[req.PresentationID] = struct{}{}
	m.mu.Unlock()

	state, err := m.store.Get(ctx, req.PresentationID)
	if err != nil {
		m.release(req.PresentationID)
		return nil, fmt.Errorf("session: open: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = m.defaults.MaxTokens
	}
	maxWallClock := req.MaxWallClock
	if maxWallClock == 0 {
		maxWallClock = m.defaults.MaxWallClock
	}
	budget := domain.NewBudget(maxTokens, maxWallClock, m.defaults.MaxTotalRetries)

	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(maxWallClock)
	}

	sess, sessCtx := domain.NewSession(ctx, req.PresentationID+"-"+sessionSuffix(), req.PresentationID, deadline, budget)

	return &Opened{Session: sess, Ctx: sessCtx, State: state, ReadVersion: state.Version}, nil
}

// Commit writes state back through the StateStore using the version the
// session originally read at, then releases the presentation_id. A
// conflict from the store is returned unwrapped so callers can branch on
// *apperr.ConflictError.
func (m *Manager) Commit(ctx context.Context, opened *Opened) error {
	defer m.release(opened.Session.PresentationID)
	return m.store.Commit(ctx, opened.State, opened.ReadVersion)
}

// Close releases the presentation_id and cancels the session's context
// without committing — used on abandonment or a fatal error path.
func (m *Manager) Close(opened *Opened) {
	opened.Session.Cancel()
	m.release(opened.Session.PresentationID)
}

func (m *Manager) release(presentationID string) {
	m.mu.Lock()
	delete(m.open, presentationID)
	m.mu.Unlock()
}

var suffixCounter sessionCounter

func sessionSuffix() string {
	return suffixCounter.next()
}

// sessionCounter generates a monotonic per-process suffix for session
// ids without reaching for time.Now()/crypto-random (both injected
// elsewhere); it only needs to be unique among concurrently open
// sessions on this process, not globally.
type sessionCounter struct {
	mu sync.Mutex
	n  int64
}

func (c *sessionCounter) next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("sess-%d", c.n)
}
