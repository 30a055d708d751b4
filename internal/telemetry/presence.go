package telemetry

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/database"
	"learnhub-backend/pkg/logger"
)

// PresenceStore is where room membership is mirrored
type PresenceStore interface {
	SessionOpened(ctx context.Context, kind, roomID string, userID int64) error
	SessionClosed(ctx context.Context, kind, roomID string, userID int64) error
	Clear(ctx context.Context, kind, roomID string) error
}

// PresenceMirror copies session open/close notifications into a PresenceStore.
// Writes run on worker pools so the room actor never waits on Redis. Each
// room hashes to one single-worker pool, which keeps its writes in order.
type PresenceMirror struct {
	room.NopObserver

	store   PresenceStore
	pools   []*workerpool.WorkerPool
	timeout time.Duration
	log     *zap.Logger
}

// NewPresenceMirror starts the workers. Call Stop to drain them.
func NewPresenceMirror(store PresenceStore, workers int) *PresenceMirror {
	if workers <= 0 {
		workers = constants.PresenceWorkers
	}
	pools := make([]*workerpool.WorkerPool, workers)
	for i := range pools {
		pools[i] = workerpool.New(1)
	}
	return &PresenceMirror{
		store:   store,
		pools:   pools,
		timeout: constants.DefaultTimeout,
		log:     logger.Named("presence"),
	}
}

// RoomCreated drops whatever a previous process left behind for this room
func (p *PresenceMirror) RoomCreated(kind room.Kind, roomID string) {
	p.submit("clear", kind, roomID, 0, func(ctx context.Context) error {
		return p.store.Clear(ctx, string(kind), roomID)
	})
}

func (p *PresenceMirror) SessionOpened(kind room.Kind, roomID string, id room.Identity) {
	p.submit("open", kind, roomID, id.ParticipantID, func(ctx context.Context) error {
		return p.store.SessionOpened(ctx, string(kind), roomID, id.ParticipantID)
	})
}

func (p *PresenceMirror) SessionClosed(kind room.Kind, roomID string, id room.Identity, _ string) {
	p.submit("close", kind, roomID, id.ParticipantID, func(ctx context.Context) error {
		return p.store.SessionClosed(ctx, string(kind), roomID, id.ParticipantID)
	})
}

// Stop waits for queued writes and stops the workers
func (p *PresenceMirror) Stop() {
	for _, pool := range p.pools {
		pool.StopWait()
	}
}

func (p *PresenceMirror) poolFor(kind room.Kind, roomID string) *workerpool.WorkerPool {
	h := fnv.New32a()
	h.Write([]byte(kind))
	h.Write([]byte(roomID))
	return p.pools[h.Sum32()%uint32(len(p.pools))]
}

func (p *PresenceMirror) submit(op string, kind room.Kind, roomID string, userID int64, fn func(ctx context.Context) error) {
	pool := p.poolFor(kind, roomID)
	if pool.Stopped() {
		return
	}
	pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		err := fn(ctx)
		if err == nil || errors.Is(err, database.ErrRedisDegraded) {
			return
		}
		p.log.Warn("Presence mirror write failed",
			zap.String("op", op),
			zap.String("room_kind", string(kind)),
			zap.String("room_id", roomID),
			zap.Int64("user_id", userID),
			zap.Error(err))
	})
}
