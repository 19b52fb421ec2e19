package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bountyboard/internal/domain"
)

func TestInsert_StoresDocumentAndChange(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	b := createTestBounty("b-1", "guild", testEpoch)

	id, err := s.Insert(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "b-1", id)

	got, err := s.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, b.Title, got.Title)
	assert.Equal(t, domain.StatusDraft, got.Status)

	changes, err := s.ChangesFor(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.OpInsert, changes[0].Operation)
	require.NotNil(t, changes[0].FullDocument)
	assert.Equal(t, "b-1", changes[0].FullDocument.ID)
	assert.Contains(t, changes[0].ChangedFields, "activityHistory")
	assert.Equal(t, testEpoch, changes[0].RecordedAt)
}

func TestInsert_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, createTestBounty("b-1", "guild", testEpoch))
	require.NoError(t, err)

	_, err = s.Insert(ctx, createTestBounty("b-1", "guild", testEpoch))
	assert.True(t, errors.Is(err, ErrDuplicateID))

	changes, err := s.ChangesFor(ctx, "b-1")
	require.NoError(t, err)
	assert.Len(t, changes, 1, "failed insert must not append a change")
}

func TestConditionalUpdate_AppliesWhenSnapshotMatches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, createTestBounty("b-1", "guild", testEpoch))
	require.NoError(t, err)

	prev, err := s.Get(ctx, "b-1")
	require.NoError(t, err)
	next := prev.Clone()
	next.SetStatus(domain.StatusOpen, testEpoch.Add(time.Minute))
	next.Record(domain.ActivityEntry{Activity: domain.ActivityPublish, At: testEpoch.Add(time.Minute), Origin: domain.OriginInternal})

	n, err := s.ConditionalUpdate(ctx, prev, next)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)

	changes, err := s.ChangesFor(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, domain.OpUpdate, changes[1].Operation)
	assert.Equal(t, []string{"activityHistory", "status", "statusHistory"}, changes[1].ChangedFields)
}

func TestConditionalUpdate_StaleSnapshotModifiesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, createTestBounty("b-1", "guild", testEpoch))
	require.NoError(t, err)

	stale, err := s.Get(ctx, "b-1")
	require.NoError(t, err)

	// Another writer gets there first.
	first := stale.Clone()
	first.Tags = []string{"urgent"}
	n, err := s.ConditionalUpdate(ctx, stale, first)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	second := stale.Clone()
	second.SetStatus(domain.StatusOpen, testEpoch)
	n, err = s.ConditionalUpdate(ctx, stale, second)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Equal(t, []string{"urgent"}, got.Tags)

	changes, err := s.ChangesFor(ctx, "b-1")
	require.NoError(t, err)
	assert.Len(t, changes, 2, "lost race must not append a change")
}

func TestConditionalUpdate_UnknownID(t *testing.T) {
	s := createTestStore(t)
	b := createTestBounty("ghost", "guild", testEpoch)

	n, err := s.ConditionalUpdate(context.Background(), b, b.Clone())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPurge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, createTestBounty("b-1", "guild", testEpoch))
	require.NoError(t, err)

	require.NoError(t, s.Purge(ctx, "b-1"))

	_, err = s.Get(ctx, "b-1")
	assert.True(t, domain.IsNotFound(err))

	changes, err := s.ChangesFor(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, domain.OpDelete, changes[1].Operation)
	assert.Nil(t, changes[1].FullDocument)

	assert.True(t, domain.IsNotFound(s.Purge(ctx, "b-1")))
}

func TestClaimSideEffect_OncePerEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.ClaimSideEffect(ctx, "b-1", 2, domain.ActivityClaim, domain.OriginExternal)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.ClaimSideEffect(ctx, "b-1", 2, domain.ActivityClaim, domain.OriginExternal)
	require.NoError(t, err)
	assert.False(t, inserted, "second claim of the same entry must lose")

	inserted, err = s.ClaimSideEffect(ctx, "b-1", 3, domain.ActivitySubmit, domain.OriginExternal)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestReleaseSideEffect(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.ClaimSideEffect(ctx, "b-1", 0, domain.ActivityCreate, domain.OriginInternal)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseSideEffect(ctx, "b-1", 0))

	claimed, err := s.SideEffectClaimed(ctx, "b-1", 0)
	require.NoError(t, err)
	assert.False(t, claimed)

	inserted, err := s.ClaimSideEffect(ctx, "b-1", 0, domain.ActivityCreate, domain.OriginInternal)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSaveCursor_NeverMovesBackwards(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCursor(ctx, "reconciler", 10))
	require.NoError(t, s.SaveCursor(ctx, "reconciler", 4))

	seq, err := s.Cursor(ctx, "reconciler")
	require.NoError(t, err)
	assert.Equal(t, int64(10), seq)

	seq, err = s.Cursor(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}
