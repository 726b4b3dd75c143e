package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	"github.com/slidecraft/orchestrator/internal/apperr"
)

func newTestStateStore(t *testing.T) *StateStore {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())
	store := NewStateStoreWithDB(db)
	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func TestGetUnknownPresentationReturnsFreshState(t *testing.T) {
	store := newTestStateStore(t)
	state, err := store.Get(context.Background(), "pres-new")
	require.NoError(t, err)
	require.Equal(t, "pres-new", state.PresentationID)
	require.Zero(t, state.Version)
}

func TestCommitThenGetRoundTrips(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()

	state, err := store.Get(ctx, "pres-1")
	require.NoError(t, err)
	state.Script = "draft script"
	state.BumpVersion()

	require.NoError(t, store.Commit(ctx, state, 0))

	reloaded, err := store.Get(ctx, "pres-1")
	require.NoError(t, err)
	require.Equal(t, "draft script", reloaded.Script)
	require.Equal(t, int64(1), reloaded.Version)
}

func TestCommitConflictOnStaleVersion(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()

	state, err := store.Get(ctx, "pres-1")
	require.NoError(t, err)
	state.BumpVersion()
	require.NoError(t, store.Commit(ctx, state, 0))

	// Someone else commits again, advancing the stored version to 2.
	state.BumpVersion()
	require.NoError(t, store.Commit(ctx, state, 1))

	// Now attempt a commit still believing the version is 1 (stale read).
	stale, err := store.Get(ctx, "pres-1")
	require.NoError(t, err)
	stale.Version = 1
	stale.BumpVersion()

	err = store.Commit(ctx, stale, 1)
	require.Error(t, err)

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, int64(1), conflict.ExpectedVersion)
	require.Equal(t, int64(2), conflict.ActualVersion)
}
