package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdash/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestDraftRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	draft := &core.Draft{
		ID:     core.NewID(),
		TaskID: "t1",
		Values: core.FormValues{Name: "Ping", Headers: []core.HeaderRow{{Key: "A", Value: "B"}}},
		Chains: core.ChainRules{{StatusCode: 200, NextTaskID: "t2", NextTaskName: "Notify"}},
		Catalog: []core.CatalogEntry{
			{ID: "t2", Name: "Notify", Status: core.TaskStatusActive},
		},
		CatalogLoaded: true,
	}
	require.NoError(t, s.InsertDraft(ctx, draft))
	assert.False(t, draft.CreatedAt.IsZero())

	got, err := s.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, draft.Values, got.Values)
	assert.Equal(t, draft.Chains, got.Chains)
	assert.Equal(t, draft.Catalog, got.Catalog)
	assert.True(t, got.CatalogLoaded)
	assert.True(t, got.Editing())

	got.Chains = nil
	got.CatalogError = "Failed to load available tasks. Please try again."
	require.NoError(t, s.UpdateDraft(ctx, got))

	again, err := s.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Chains)
	assert.Equal(t, got.CatalogError, again.CatalogError)
}

func TestNewTaskDraftHasNoTaskID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	draft := &core.Draft{ID: core.NewID()}
	require.NoError(t, s.InsertDraft(ctx, draft))

	got, err := s.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, got.Editing())
}

func TestDraftNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetDraft(ctx, "missing")
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.ErrorIs(t, s.UpdateDraft(ctx, &core.Draft{ID: "missing"}), ErrDraftNotFound)
	assert.ErrorIs(t, s.DeleteDraft(ctx, "missing"), ErrDraftNotFound)
}

func TestDeleteDraft(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	draft := &core.Draft{ID: core.NewID()}
	require.NoError(t, s.InsertDraft(ctx, draft))
	require.NoError(t, s.DeleteDraft(ctx, draft.ID))

	_, err := s.GetDraft(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestPruneDrafts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	old := &core.Draft{ID: "old"}
	require.NoError(t, s.InsertDraft(ctx, old))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := &core.Draft{ID: "fresh"}
	require.NoError(t, s.InsertDraft(ctx, fresh))

	n, err := s.PruneDrafts(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.GetDraft(ctx, "old")
	assert.ErrorIs(t, err, ErrDraftNotFound)
	_, err = s.GetDraft(ctx, "fresh")
	assert.NoError(t, err)
}
