package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/database"
)

// PresenceRepository mirrors room membership into Redis so that processes
// without the room actors can read who is connected. Each room is a hash of
// userId -> open session count.
type PresenceRepository struct {
	db  *database.RedisDB
	ttl time.Duration
}

// NewPresenceRepository creates a new PresenceRepository. db may be nil when
// Redis is disabled; every write then reports ErrRedisDegraded.
func NewPresenceRepository(db *database.RedisDB, ttl time.Duration) *PresenceRepository {
	if ttl <= 0 {
		ttl = constants.PresenceTTL
	}
	return &PresenceRepository{db: db, ttl: ttl}
}

func membersKey(kind, roomID string) string {
	return fmt.Sprintf("room:%s:%s:members", kind, roomID)
}

// SessionOpened counts one more session for userID in the room
func (r *PresenceRepository) SessionOpened(ctx context.Context, kind, roomID string, userID int64) error {
	key := membersKey(kind, roomID)

	if err := r.db.SafeHIncrBy(ctx, key, strconv.FormatInt(userID, 10), 1).Err(); err != nil {
		return fmt.Errorf("failed to mirror session open: %w", err)
	}

	// Expire the mirror if this process dies without cleaning up
	if err := r.db.SafeExpire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence ttl: %w", err)
	}

	return nil
}

// SessionClosed counts one session less for userID and drops the user once
// none remain
func (r *PresenceRepository) SessionClosed(ctx context.Context, kind, roomID string, userID int64) error {
	key := membersKey(kind, roomID)
	field := strconv.FormatInt(userID, 10)

	remaining, err := r.db.SafeHIncrBy(ctx, key, field, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to mirror session close: %w", err)
	}

	if remaining <= 0 {
		if err := r.db.SafeHDel(ctx, key, field).Err(); err != nil {
			return fmt.Errorf("failed to remove presence: %w", err)
		}
	}

	return nil
}

// Members returns the user ids with at least one open session in the room
func (r *PresenceRepository) Members(ctx context.Context, kind, roomID string) ([]int64, error) {
	counts, err := r.db.SafeHGetAll(ctx, membersKey(kind, roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room members: %w", err)
	}

	members := make([]int64, 0, len(counts))
	for field, count := range counts {
		n, err := strconv.Atoi(count)
		if err != nil || n <= 0 {
			continue
		}
		userID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue // Skip malformed fields
		}
		members = append(members, userID)
	}

	return members, nil
}

// Clear removes the mirror of a room
func (r *PresenceRepository) Clear(ctx context.Context, kind, roomID string) error {
	if err := r.db.SafeDel(ctx, membersKey(kind, roomID)).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.db.IsDegraded()
}
