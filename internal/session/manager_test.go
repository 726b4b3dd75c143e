package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// fakeStore is an in-memory stand-in for *storage.StateStore.
type fakeStore struct {
	states map[string]*domain.WorkflowState
	commitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]*domain.WorkflowState)}
}

func (f *fakeStore) Get(ctx context.Context, presentationID string) (*domain.WorkflowState, error) {
	if s, ok := f.states[presentationID]; ok {
		return s, nil
	}
	return domain.NewWorkflowState(presentationID), nil
}

func (f *fakeStore) Commit(ctx context.Context, state *domain.WorkflowState, expectedVersion int64) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.states[state.PresentationID] = state
	return nil
}

func defaults() BudgetDefaults {
	return BudgetDefaults{MaxTokens: 180_000, MaxWallClock: 3 * time.Minute}
}

func TestOpenAllocatesBudgetFromDefaults(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, defaults())

	opened, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(180_000), opened.Session.Budget().TokensRemaining())
	assert.Equal(t, "pres-1", opened.State.PresentationID)
	assert.Zero(t, opened.ReadVersion)
}

func TestOpenRejectsConcurrentSessionOnSamePresentation(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, defaults())

	_, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)

	_, err = mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.Error(t, err)
	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCommitReleasesPresentationForReopen(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, defaults())

	opened, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)
	opened.State.Script = "draft"
	opened.State.BumpVersion()

	require.NoError(t, mgr.Commit(context.Background(), opened))

	reopened, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)
	assert.Equal(t, "draft", reopened.State.Script)
	assert.Equal(t, int64(1), reopened.ReadVersion)
}

func TestCloseReleasesWithoutCommitting(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, defaults())

	opened, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)
	opened.State.Script = "discarded"

	mgr.Close(opened)

	reopened, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)
	assert.Empty(t, reopened.State.Script)
}

func TestCommitPropagatesStoreConflict(t *testing.T) {
	store := newFakeStore()
	store.commitErr = apperr.Conflict("pres-1", 1, 2)
	mgr := NewManager(store, defaults())

	opened, err := mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)

	err = mgr.Commit(context.Background(), opened)
	require.Error(t, err)
	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Commit releases the presentation_id even on failure so a retry can reopen.
	_, err = mgr.Open(context.Background(), OpenRequest{PresentationID: "pres-1"})
	require.NoError(t, err)
}
