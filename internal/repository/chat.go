package repository

import (
	"context"
	"errors"
	"fmt"

	"trilex-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

const roomColumns = `id, booking_id, is_active, created_at, updated_at`

func scanRoom(row pgx.Row) (*model.Room, error) {
	room := &model.Room{}
	if err := row.Scan(&room.ID, &room.BookingID, &room.IsActive, &room.CreatedAt, &room.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return room, nil
}

func (r *ChatRepository) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, roomID))
}

func (r *ChatRepository) GetRoomByBooking(ctx context.Context, bookingID string) (*model.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE booking_id = $1`, bookingID))
}

// CreateRoom inserts the room for a booking together with its founding
// participants. When a room already exists for the booking it is returned
// unchanged with created=false.
func (r *ChatRepository) CreateRoom(ctx context.Context, bookingID string, founders []model.NewParticipant) (*model.Room, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	room, err := scanRoom(tx.QueryRow(ctx, `
		INSERT INTO chat_rooms (booking_id) VALUES ($1)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING `+roomColumns, bookingID))
	if errors.Is(err, ErrNotFound) {
		existing, err := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE booking_id = $1`, bookingID))
		if err != nil {
			return nil, false, err
		}
		return existing, false, tx.Commit(ctx)
	}
	if err != nil {
		return nil, false, err
	}

	for _, p := range founders {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_participants (room_id, user_id, is_admin) VALUES ($1, $2, $3)
			ON CONFLICT (room_id, user_id) DO NOTHING
		`, room.ID, p.UserID, p.IsAdmin); err != nil {
			return nil, false, fmt.Errorf("add founder %s: %w", p.UserID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return room, true, nil
}

func (r *ChatRepository) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_rooms SET is_active = $2, updated_at = NOW() WHERE id = $1
	`, roomID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const participantSelect = `
	SELECT p.id, p.room_id, p.user_id, u.email, p.is_admin, p.joined_at
	FROM chat_participants p JOIN users u ON u.id = p.user_id`

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	p := &model.Participant{}
	if err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Email, &p.IsAdmin, &p.JoinedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ChatRepository) GetParticipant(ctx context.Context, roomID, userID string) (*model.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, participantSelect+` WHERE p.room_id = $1 AND p.user_id = $2`, roomID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *ChatRepository) ListParticipants(ctx context.Context, roomID string) ([]*model.Participant, error) {
	rows, err := r.pool.Query(ctx, participantSelect+` WHERE p.room_id = $1 ORDER BY p.joined_at, p.id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddParticipant reports whether a new membership row was written.
func (r *ChatRepository) AddParticipant(ctx context.Context, roomID, userID string, isAdmin bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO chat_participants (room_id, user_id, is_admin) VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, roomID, userID, isAdmin)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ChatRepository) RemoveParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListRoomsForUser returns one page of the user's rooms, most recently active first,
// and the total number of rooms the user belongs to.
func (r *ChatRepository) ListRoomsForUser(ctx context.Context, userID string, limit, offset int) ([]*model.Room, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_participants WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.booking_id, r.is_active, r.created_at, r.updated_at
		FROM chat_rooms r JOIN chat_participants p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.updated_at DESC, r.id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}
	return rooms, total, rows.Err()
}

// InsertMessage appends a message and bumps the room's activity timestamp.
func (r *ChatRepository) InsertMessage(ctx context.Context, roomID, senderID, text string) (*model.Message, error) {
	m := &model.Message{}
	err := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO chat_messages (room_id, sender_id, message)
			VALUES ($1, $2, $3)
			RETURNING id, room_id, sender_id, message, created_at
		), touched AS (
			UPDATE chat_rooms SET updated_at = NOW() WHERE id = $1
		)
		SELECT i.id, i.room_id, i.sender_id, u.email, i.message, i.created_at
		FROM inserted i JOIN users u ON u.id = i.sender_id
	`, roomID, senderID, text).Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderEmail, &m.Text, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

const messageSelect = `
	SELECT m.id, m.room_id, m.sender_id, u.email, m.message, m.created_at
	FROM chat_messages m JOIN users u ON u.id = m.sender_id`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderEmail, &m.Text, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns one page of a room's history, oldest first.
func (r *ChatRepository) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*model.Message, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages WHERE room_id = $1`, roomID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, messageSelect+`
		WHERE m.room_id = $1
		ORDER BY m.created_at, m.seq
		LIMIT $2 OFFSET $3
	`, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, m)
	}
	return msgs, total, rows.Err()
}

// LastMessage returns nil without error for an empty room.
func (r *ChatRepository) LastMessage(ctx context.Context, roomID string) (*model.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, messageSelect+`
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT 1
	`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// MarkRoomRead receipts every message in the room the user did not send and
// has not read yet. Returns the number of receipts created.
func (r *ChatRepository) MarkRoomRead(ctx context.Context, roomID, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO chat_message_reads (message_id, user_id)
		SELECT m.id, $2 FROM chat_messages m
		WHERE m.room_id = $1 AND m.sender_id <> $2
		  AND NOT EXISTS (
			SELECT 1 FROM chat_message_reads r WHERE r.message_id = m.id AND r.user_id = $2
		  )
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, roomID, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChatRepository) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_messages m
		WHERE m.room_id = $1 AND m.sender_id <> $2
		  AND NOT EXISTS (
			SELECT 1 FROM chat_message_reads r WHERE r.message_id = m.id AND r.user_id = $2
		  )
	`, roomID, userID).Scan(&n)
	return n, err
}
