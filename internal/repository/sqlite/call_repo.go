package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"learnhub-backend/internal/domain"
)

// CallRepository stores calls in an embedded SQLite database. It backs
// single-node and development deployments.
type CallRepository struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string) (*CallRepository, error) {
	if path == "" {
		path = "./data/learnhub.db"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	r := &CallRepository{db: db}
	if err := r.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return r, nil
}

// EnsureSchema creates the call tables if they do not exist
func (r *CallRepository) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		livekit_room_name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		call_type TEXT NOT NULL,
		initiator_id INTEGER NOT NULL,
		recipient_id INTEGER,
		group_chat_id INTEGER,
		status TEXT NOT NULL DEFAULT 'initiated',
		started_at DATETIME,
		ended_at DATETIME,
		duration INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS call_participants (
		call_id INTEGER NOT NULL REFERENCES calls(id),
		user_id INTEGER NOT NULL,
		joined_at DATETIME NOT NULL,
		left_at DATETIME,
		status TEXT NOT NULL DEFAULT 'joined',
		PRIMARY KEY (call_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_calls_initiator ON calls(initiator_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_calls_recipient ON calls(recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_call_participants_user ON call_participants(user_id);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *CallRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *CallRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const callColumns = `id, livekit_room_name, type, call_type, initiator_id, recipient_id, group_chat_id,
	status, started_at, ended_at, duration, created_at`

// Create inserts a new call and fills in its id and creation time
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	createdAt := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO calls (
			livekit_room_name, type, call_type, initiator_id, recipient_id, group_chat_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		call.LivekitRoomName,
		string(call.Type),
		string(call.CallType),
		call.InitiatorID,
		nullInt64(call.RecipientID),
		nullInt64(call.GroupChatID),
		string(call.Status),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read call id: %w", err)
	}

	call.ID = id
	call.CreatedAt = createdAt
	return nil
}

// GetByID retrieves a call by id
func (r *CallRepository) GetByID(ctx context.Context, callID int64) (*domain.Call, error) {
	return r.getOne(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, callID)
}

// GetByRoomName retrieves a call by its external room name
func (r *CallRepository) GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error) {
	return r.getOne(ctx, `SELECT `+callColumns+` FROM calls WHERE livekit_room_name = ?`, roomName)
}

func (r *CallRepository) getOne(ctx context.Context, query string, arg any) (*domain.Call, error) {
	call, err := scanCall(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// MarkOngoing moves an initiated call to ongoing and stamps started_at once
func (r *CallRepository) MarkOngoing(ctx context.Context, callID int64, startedAt time.Time) (bool, error) {
	return r.update(ctx, "mark call ongoing", `
		UPDATE calls
		SET status = 'ongoing',
		    started_at = COALESCE(started_at, ?)
		WHERE id = ? AND status = 'initiated'
	`, startedAt.UTC(), callID)
}

// Finalize marks a call ended, writing ended_at and duration only once
func (r *CallRepository) Finalize(ctx context.Context, callID int64, endedAt time.Time, duration int) (bool, error) {
	return r.update(ctx, "finalize call", `
		UPDATE calls
		SET status = 'ended',
		    duration = CASE WHEN ended_at IS NULL THEN ? ELSE duration END,
		    ended_at = COALESCE(ended_at, ?)
		WHERE id = ? AND status IN ('initiated', 'ongoing', 'ended')
	`, duration, endedAt.UTC(), callID)
}

// MarkRejected moves a call that nobody joined to rejected
func (r *CallRepository) MarkRejected(ctx context.Context, callID int64, endedAt time.Time) (bool, error) {
	return r.update(ctx, "reject call", `
		UPDATE calls
		SET status = 'rejected',
		    ended_at = COALESCE(ended_at, ?)
		WHERE id = ? AND status = 'initiated'
	`, endedAt.UTC(), callID)
}

func (r *CallRepository) update(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return n > 0, nil
}

// UpsertParticipant records that a user joined, reviving a previous row
func (r *CallRepository) UpsertParticipant(ctx context.Context, callID, userID int64, joinedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_participants (call_id, user_id, joined_at, status)
		VALUES (?, ?, ?, 'joined')
		ON CONFLICT (call_id, user_id) DO UPDATE
		SET status = 'joined',
		    joined_at = excluded.joined_at,
		    left_at = NULL
	`, callID, userID, joinedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// MarkParticipantLeft stamps left_at on a joined participant
func (r *CallRepository) MarkParticipantLeft(ctx context.Context, callID, userID int64, leftAt time.Time) error {
	_, err := r.update(ctx, "mark participant left", `
		UPDATE call_participants
		SET status = 'left', left_at = ?
		WHERE call_id = ? AND user_id = ? AND status = 'joined'
	`, leftAt.UTC(), callID, userID)
	return err
}

// MarkParticipantRejected records that a user declined the call
func (r *CallRepository) MarkParticipantRejected(ctx context.Context, callID, userID int64, at time.Time) error {
	at = at.UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_participants (call_id, user_id, joined_at, left_at, status)
		VALUES (?, ?, ?, ?, 'rejected')
		ON CONFLICT (call_id, user_id) DO UPDATE
		SET status = 'rejected',
		    left_at = excluded.left_at
		WHERE call_participants.status <> 'left'
	`, callID, userID, at, at)
	if err != nil {
		return fmt.Errorf("failed to mark participant rejected: %w", err)
	}
	return nil
}

// MarkAllParticipantsLeft stamps every still-joined participant as left
func (r *CallRepository) MarkAllParticipantsLeft(ctx context.Context, callID int64, leftAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE call_participants
		SET status = 'left', left_at = ?
		WHERE call_id = ? AND status = 'joined'
	`, leftAt.UTC(), callID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark participants left: %w", err)
	}
	return res.RowsAffected()
}

// GetParticipants retrieves all participant rows of a call
func (r *CallRepository) GetParticipants(ctx context.Context, callID int64) ([]*domain.CallParticipant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT call_id, user_id, joined_at, left_at, status
		FROM call_participants
		WHERE call_id = ?
		ORDER BY joined_at
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.CallParticipant
	for rows.Next() {
		p := &domain.CallParticipant{}
		var (
			leftAt sql.NullTime
			status string
		)
		if err := rows.Scan(&p.CallID, &p.UserID, &p.JoinedAt, &leftAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.LeftAt = timePtr(leftAt)
		p.Status = domain.ParticipantStatus(status)
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// GetUserCalls retrieves the calls a user initiated, received or joined,
// newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID int64, limit, offset int) ([]*domain.Call, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+callColumns+`
		FROM calls c
		WHERE c.initiator_id = ?1
		   OR c.recipient_id = ?1
		   OR EXISTS (
		       SELECT 1 FROM call_participants cp
		       WHERE cp.call_id = c.id AND cp.user_id = ?1
		   )
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT ?2 OFFSET ?3
	`, userID, limit, offset)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*domain.Call, error) {
	call := &domain.Call{}
	var (
		mediaType, callType, status string
		recipientID, groupChatID    sql.NullInt64
		startedAt, endedAt          sql.NullTime
	)

	err := row.Scan(
		&call.ID,
		&call.LivekitRoomName,
		&mediaType,
		&callType,
		&call.InitiatorID,
		&recipientID,
		&groupChatID,
		&status,
		&startedAt,
		&endedAt,
		&call.Duration,
		&call.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	call.Type = domain.MediaType(mediaType)
	call.CallType = domain.CallType(callType)
	call.Status = domain.CallStatus(status)
	call.RecipientID = int64Ptr(recipientID)
	call.GroupChatID = int64Ptr(groupChatID)
	call.StartedAt = timePtr(startedAt)
	call.EndedAt = timePtr(endedAt)
	return call, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
