package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"learnhub-backend/pkg/database"
)

func TestWebhookLedger_DegradedStillProcesses(t *testing.T) {
	ledger := NewWebhookLedger(nil, 0)

	first, err := ledger.Claim(context.Background(), "EV_1")
	assert.True(t, first, "events are processed when the ledger is unavailable")
	assert.ErrorIs(t, err, database.ErrRedisDegraded)

	assert.ErrorIs(t, ledger.Release(context.Background(), "EV_1"), database.ErrRedisDegraded)
}

func TestWebhookLedger_EmptyIDIsAlwaysFirst(t *testing.T) {
	ledger := NewWebhookLedger(nil, 0)

	first, err := ledger.Claim(context.Background(), "")
	assert.True(t, first)
	assert.NoError(t, err)
	assert.NoError(t, ledger.Release(context.Background(), ""))
}

func TestPresenceRepository_Degraded(t *testing.T) {
	repo := NewPresenceRepository(nil, 0)
	ctx := context.Background()

	assert.True(t, repo.IsDegraded())
	assert.ErrorIs(t, repo.SessionOpened(ctx, "chat", "general", 1), database.ErrRedisDegraded)
	assert.ErrorIs(t, repo.SessionClosed(ctx, "chat", "general", 1), database.ErrRedisDegraded)
	assert.ErrorIs(t, repo.Clear(ctx, "chat", "general"), database.ErrRedisDegraded)

	members, err := repo.Members(ctx, "chat", "general")
	assert.ErrorIs(t, err, database.ErrRedisDegraded)
	assert.Nil(t, members)
}

func TestMembersKey(t *testing.T) {
	assert.Equal(t, "room:call:42:members", membersKey("call", "42"))
	assert.Equal(t, "webhook:livekit:EV_9", ledgerKey("EV_9"))
}
