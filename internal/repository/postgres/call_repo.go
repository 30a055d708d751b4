package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"learnhub-backend/internal/domain"
)

// CallRepository handles call and participant rows in Postgres or CockroachDB
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		id BIGSERIAL PRIMARY KEY,
		livekit_room_name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		call_type TEXT NOT NULL,
		initiator_id BIGINT NOT NULL,
		recipient_id BIGINT,
		group_chat_id BIGINT,
		status TEXT NOT NULL DEFAULT 'initiated',
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		duration INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_initiator ON calls (initiator_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_recipient ON calls (recipient_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS call_participants (
		call_id BIGINT NOT NULL REFERENCES calls (id),
		user_id BIGINT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		left_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'joined',
		PRIMARY KEY (call_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_participants_user ON call_participants (user_id)`,
}

// EnsureSchema creates the call tables if they do not exist
func (r *CallRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

const callColumns = `id, livekit_room_name, type, call_type, initiator_id, recipient_id, group_chat_id,
	status, started_at, ended_at, duration, created_at`

// Create inserts a new call and fills in its id and creation time
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			livekit_room_name, type, call_type, initiator_id, recipient_id, group_chat_id, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		call.LivekitRoomName,
		string(call.Type),
		string(call.CallType),
		call.InitiatorID,
		call.RecipientID,
		call.GroupChatID,
		string(call.Status),
	).Scan(&call.ID, &call.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by id
func (r *CallRepository) GetByID(ctx context.Context, callID int64) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return r.getOne(ctx, query, callID)
}

// GetByRoomName retrieves a call by its external room name
func (r *CallRepository) GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE livekit_room_name = $1`
	return r.getOne(ctx, query, roomName)
}

func (r *CallRepository) getOne(ctx context.Context, query string, arg any) (*domain.Call, error) {
	call, err := scanCall(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// MarkOngoing moves an initiated call to ongoing and stamps started_at once.
// It reports whether a row changed.
func (r *CallRepository) MarkOngoing(ctx context.Context, callID int64, startedAt time.Time) (bool, error) {
	query := `
		UPDATE calls
		SET status = 'ongoing',
		    started_at = COALESCE(started_at, $2)
		WHERE id = $1 AND status = 'initiated'
	`

	tag, err := r.pool.Exec(ctx, query, callID, startedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark call ongoing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize marks a call ended. ended_at and duration are written only by the
// first end, so concurrent end paths converge on the same values. Rejected
// and missed calls keep their status.
func (r *CallRepository) Finalize(ctx context.Context, callID int64, endedAt time.Time, duration int) (bool, error) {
	query := `
		UPDATE calls
		SET status = 'ended',
		    duration = CASE WHEN ended_at IS NULL THEN $3 ELSE duration END,
		    ended_at = COALESCE(ended_at, $2)
		WHERE id = $1 AND status IN ('initiated', 'ongoing', 'ended')
	`

	tag, err := r.pool.Exec(ctx, query, callID, endedAt, duration)
	if err != nil {
		return false, fmt.Errorf("failed to finalize call: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRejected moves a call that nobody joined to rejected
func (r *CallRepository) MarkRejected(ctx context.Context, callID int64, endedAt time.Time) (bool, error) {
	query := `
		UPDATE calls
		SET status = 'rejected',
		    ended_at = COALESCE(ended_at, $2)
		WHERE id = $1 AND status = 'initiated'
	`

	tag, err := r.pool.Exec(ctx, query, callID, endedAt)
	if err != nil {
		return false, fmt.Errorf("failed to reject call: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertParticipant records that a user joined, reviving a previous row
func (r *CallRepository) UpsertParticipant(ctx context.Context, callID, userID int64, joinedAt time.Time) error {
	query := `
		INSERT INTO call_participants (call_id, user_id, joined_at, status)
		VALUES ($1, $2, $3, 'joined')
		ON CONFLICT (call_id, user_id) DO UPDATE
		SET status = 'joined',
		    joined_at = excluded.joined_at,
		    left_at = NULL
	`

	if _, err := r.pool.Exec(ctx, query, callID, userID, joinedAt); err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// MarkParticipantLeft stamps left_at on a joined participant. Missing rows
// are ignored.
func (r *CallRepository) MarkParticipantLeft(ctx context.Context, callID, userID int64, leftAt time.Time) error {
	query := `
		UPDATE call_participants
		SET status = 'left', left_at = $3
		WHERE call_id = $1 AND user_id = $2 AND status = 'joined'
	`

	if _, err := r.pool.Exec(ctx, query, callID, userID, leftAt); err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}
	return nil
}

// MarkParticipantRejected records that a user declined the call
func (r *CallRepository) MarkParticipantRejected(ctx context.Context, callID, userID int64, at time.Time) error {
	query := `
		INSERT INTO call_participants (call_id, user_id, joined_at, left_at, status)
		VALUES ($1, $2, $3, $3, 'rejected')
		ON CONFLICT (call_id, user_id) DO UPDATE
		SET status = 'rejected',
		    left_at = excluded.left_at
		WHERE call_participants.status <> 'left'
	`

	if _, err := r.pool.Exec(ctx, query, callID, userID, at); err != nil {
		return fmt.Errorf("failed to mark participant rejected: %w", err)
	}
	return nil
}

// MarkAllParticipantsLeft stamps every still-joined participant as left
func (r *CallRepository) MarkAllParticipantsLeft(ctx context.Context, callID int64, leftAt time.Time) (int64, error) {
	query := `
		UPDATE call_participants
		SET status = 'left', left_at = $2
		WHERE call_id = $1 AND status = 'joined'
	`

	tag, err := r.pool.Exec(ctx, query, callID, leftAt)
	if err != nil {
		return 0, fmt.Errorf("failed to mark participants left: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetParticipants retrieves all participant rows of a call
func (r *CallRepository) GetParticipants(ctx context.Context, callID int64) ([]*domain.CallParticipant, error) {
	query := `
		SELECT call_id, user_id, joined_at, left_at, status
		FROM call_participants
		WHERE call_id = $1
		ORDER BY joined_at
	`

	rows, err := r.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.CallParticipant
	for rows.Next() {
		p := &domain.CallParticipant{}
		var status string
		if err := rows.Scan(&p.CallID, &p.UserID, &p.JoinedAt, &p.LeftAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Status = domain.ParticipantStatus(status)
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// GetUserCalls retrieves the calls a user initiated, received or joined,
// newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID int64, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls c
		WHERE c.initiator_id = $1
		   OR c.recipient_id = $1
		   OR EXISTS (
		       SELECT 1 FROM call_participants cp
		       WHERE cp.call_id = c.id AND cp.user_id = $1
		   )
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	var mediaType, callType, status string

	err := row.Scan(
		&call.ID,
		&call.LivekitRoomName,
		&mediaType,
		&callType,
		&call.InitiatorID,
		&call.RecipientID,
		&call.GroupChatID,
		&status,
		&call.StartedAt,
		&call.EndedAt,
		&call.Duration,
		&call.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	call.Type = domain.MediaType(mediaType)
	call.CallType = domain.CallType(callType)
	call.Status = domain.CallStatus(status)
	return call, nil
}
