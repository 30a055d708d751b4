package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/database"
)

// WebhookLedger remembers processed webhook event ids so that redelivered
// events are applied at most once
type WebhookLedger struct {
	db  *database.RedisDB
	ttl time.Duration
}

// NewWebhookLedger creates a new ledger. db may be nil when Redis is disabled.
func NewWebhookLedger(db *database.RedisDB, ttl time.Duration) *WebhookLedger {
	if ttl <= 0 {
		ttl = constants.WebhookLedgerTTL
	}
	return &WebhookLedger{db: db, ttl: ttl}
}

func ledgerKey(eventID string) string {
	return fmt.Sprintf("webhook:livekit:%s", eventID)
}

// Claim records eventID and reports whether this is its first delivery.
// When Redis is unavailable it reports true alongside the error, so callers
// keep processing events rather than dropping them.
func (l *WebhookLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}

	first, err := l.db.SafeSetNX(ctx, ledgerKey(eventID), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		if errors.Is(err, database.ErrRedisDegraded) {
			return true, err
		}
		return true, fmt.Errorf("failed to claim webhook event: %w", err)
	}

	return first, nil
}

// Release forgets eventID so a redelivery is processed again. Used when
// processing a claimed event failed.
func (l *WebhookLedger) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := l.db.SafeDel(ctx, ledgerKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	return nil
}
