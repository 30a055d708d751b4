package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/domain"
)

func newTestRepo(t *testing.T) *CallRepository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newDirectCall(t *testing.T, repo *CallRepository, roomName string, initiator, recipient int64) *domain.Call {
	t.Helper()
	call := &domain.Call{
		LivekitRoomName: roomName,
		Type:            domain.MediaTypeVideo,
		CallType:        domain.CallTypeDirect,
		InitiatorID:     initiator,
		RecipientID:     &recipient,
		Status:          domain.CallStatusInitiated,
	}
	require.NoError(t, repo.Create(context.Background(), call))
	return call
}

func TestCallRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	call := newDirectCall(t, repo, "call-01", 1, 2)
	assert.NotZero(t, call.ID)
	assert.False(t, call.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "call-01", got.LivekitRoomName)
	assert.Equal(t, domain.MediaTypeVideo, got.Type)
	assert.Equal(t, domain.CallTypeDirect, got.CallType)
	assert.Equal(t, domain.CallStatusInitiated, got.Status)
	require.NotNil(t, got.RecipientID)
	assert.Equal(t, int64(2), *got.RecipientID)
	assert.Nil(t, got.GroupChatID)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.EndedAt)

	byName, err := repo.GetByRoomName(ctx, "call-01")
	require.NoError(t, err)
	assert.Equal(t, call.ID, byName.ID)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrCallNotFound)

	_, err = repo.GetByRoomName(ctx, "call-missing")
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
}

func TestCallRepository_RoomNameIsUnique(t *testing.T) {
	repo := newTestRepo(t)

	newDirectCall(t, repo, "call-dup", 1, 2)
	dup := &domain.Call{
		LivekitRoomName: "call-dup",
		Type:            domain.MediaTypeAudio,
		CallType:        domain.CallTypeDirect,
		InitiatorID:     3,
		Status:          domain.CallStatusInitiated,
	}
	assert.Error(t, repo.Create(context.Background(), dup))
}

func TestCallRepository_MarkOngoingStampsOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	call := newDirectCall(t, repo, "call-02", 1, 2)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	changed, err := repo.MarkOngoing(ctx, call.ID, t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkOngoing(ctx, call.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusOngoing, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, t0.Equal(*got.StartedAt))
}

func TestCallRepository_FinalizeIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	call := newDirectCall(t, repo, "call-03", 1, 2)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(95 * time.Second)

	_, err := repo.MarkOngoing(ctx, call.ID, t0)
	require.NoError(t, err)

	changed, err := repo.Finalize(ctx, call.ID, t1, 95)
	require.NoError(t, err)
	assert.True(t, changed)

	// A late webhook must not overwrite the first end.
	_, err = repo.Finalize(ctx, call.ID, t1.Add(time.Hour), 3695)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, got.Status)
	assert.Equal(t, 95, got.Duration)
	require.NotNil(t, got.EndedAt)
	assert.True(t, t1.Equal(*got.EndedAt))

	// Ended calls never go back to ongoing.
	changed, err = repo.MarkOngoing(ctx, call.ID, t1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCallRepository_RejectOnlyWhileInitiated(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pending := newDirectCall(t, repo, "call-04", 1, 2)
	changed, err := repo.MarkRejected(ctx, pending.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	// Finalize leaves a rejected call alone.
	changed, err = repo.Finalize(ctx, pending.ID, time.Now(), 0)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRejected, got.Status)

	active := newDirectCall(t, repo, "call-05", 1, 2)
	_, err = repo.MarkOngoing(ctx, active.ID, time.Now())
	require.NoError(t, err)
	changed, err = repo.MarkRejected(ctx, active.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCallRepository_Participants(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	call := newDirectCall(t, repo, "call-06", 1, 2)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertParticipant(ctx, call.ID, 1, t0))
	require.NoError(t, repo.UpsertParticipant(ctx, call.ID, 2, t0.Add(time.Second)))

	require.NoError(t, repo.MarkParticipantLeft(ctx, call.ID, 2, t0.Add(time.Minute)))
	// Rejoining revives the row instead of adding one.
	require.NoError(t, repo.UpsertParticipant(ctx, call.ID, 2, t0.Add(2*time.Minute)))

	participants, err := repo.GetParticipants(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	for _, p := range participants {
		assert.Equal(t, domain.ParticipantJoined, p.Status)
		assert.Nil(t, p.LeftAt)
	}

	n, err := repo.MarkAllParticipantsLeft(ctx, call.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.MarkAllParticipantsLeft(ctx, call.ID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	participants, err = repo.GetParticipants(ctx, call.ID)
	require.NoError(t, err)
	for _, p := range participants {
		assert.Equal(t, domain.ParticipantLeft, p.Status)
		require.NotNil(t, p.LeftAt)
		assert.True(t, t0.Add(time.Hour).Equal(*p.LeftAt))
	}

	// Leaving without a row is a no-op.
	assert.NoError(t, repo.MarkParticipantLeft(ctx, call.ID, 42, t0))
}

func TestCallRepository_MarkParticipantRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	call := newDirectCall(t, repo, "call-07", 1, 2)

	require.NoError(t, repo.MarkParticipantRejected(ctx, call.ID, 2, time.Now()))

	participants, err := repo.GetParticipants(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, int64(2), participants[0].UserID)
	assert.Equal(t, domain.ParticipantRejected, participants[0].Status)
}

func TestCallRepository_GetUserCalls(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newDirectCall(t, repo, "call-h1", 1, 2)
	second := newDirectCall(t, repo, "call-h2", 3, 1)
	third := newDirectCall(t, repo, "call-h3", 3, 4)
	require.NoError(t, repo.UpsertParticipant(ctx, third.ID, 1, time.Now()))
	newDirectCall(t, repo, "call-h4", 5, 6)

	calls, err := repo.GetUserCalls(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, []int64{third.ID, second.ID, first.ID}, []int64{calls[0].ID, calls[1].ID, calls[2].ID})

	page, err := repo.GetUserCalls(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	none, err := repo.GetUserCalls(ctx, 99, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
