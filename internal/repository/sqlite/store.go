// Package sqlite is a single-file store used by tests and single-node
// development deployments. It implements the same contracts as the
// Postgres repositories.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trilex-backend/internal/model"
	"trilex-backend/internal/repository"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB

	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timestamp returns a strictly increasing UTC time so rows written in the
// same clock tick keep their insertion order.
func (s *Store) timestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// --- accounts (seeded by tests and dev tooling) ---

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, role, display_name) VALUES (?, ?, ?, ?)
	`, u.ID, u.Email, string(u.Role), u.DisplayName)
	return err
}

func (s *Store) CreateBooking(ctx context.Context, clientID, providerID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, created_by, created_to) VALUES (?, ?, ?)
	`, id, clientID, providerID)
	return id, err
}

func (s *Store) AddFirmMember(ctx context.Context, firmUserID, memberUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO firm_members (firm_user_id, member_user_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, firmUserID, memberUserID)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, display_name FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &role, &u.DisplayName)
	if err != nil {
		return nil, notFound(err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (s *Store) GetTransaction(ctx context.Context, bookingID string) (*model.Transaction, error) {
	var (
		t    model.Transaction
		role string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.created_by, b.created_to, u.role
		FROM bookings b JOIN users u ON u.id = b.created_to
		WHERE b.id = ?
	`, bookingID).Scan(&t.ID, &t.ClientID, &t.ProviderID, &role)
	if err != nil {
		return nil, notFound(err)
	}
	t.ProviderRole = model.Role(role)
	return &t, nil
}

func (s *Store) IsAffiliated(ctx context.Context, firmUserID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM firm_members WHERE firm_user_id = ? AND member_user_id = ?
	`, firmUserID, userID).Scan(&n)
	return n > 0, err
}

// --- rooms ---

type scanner interface {
	Scan(dest ...any) error
}

const roomColumns = `id, booking_id, is_active, created_at, updated_at`

func scanRoom(row scanner) (*model.Room, error) {
	var (
		room             model.Room
		created, updated string
	)
	if err := row.Scan(&room.ID, &room.BookingID, &room.IsActive, &created, &updated); err != nil {
		return nil, notFound(err)
	}
	var err error
	if room.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if room.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = ?`, roomID))
}

func (s *Store) GetRoomByBooking(ctx context.Context, bookingID string) (*model.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE booking_id = ?`, bookingID))
}

func (s *Store) CreateRoom(ctx context.Context, bookingID string, founders []model.NewParticipant) (*model.Room, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := formatTime(s.timestamp())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, booking_id, is_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (booking_id) DO NOTHING
	`, uuid.NewString(), bookingID, now, now)
	if err != nil {
		return nil, false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	room, err := scanRoom(tx.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE booking_id = ?`, bookingID))
	if err != nil {
		return nil, false, err
	}
	if inserted == 0 {
		return room, false, tx.Commit()
	}

	for _, p := range founders {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_participants (id, room_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (room_id, user_id) DO NOTHING
		`, uuid.NewString(), room.ID, p.UserID, p.IsAdmin, now); err != nil {
			return nil, false, fmt.Errorf("add founder %s: %w", p.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return room, true, nil
}

func (s *Store) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_rooms SET is_active = ?, updated_at = ? WHERE id = ?
	`, active, formatTime(s.timestamp()), roomID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ListRoomsForUser(ctx context.Context, userID string, limit, offset int) ([]*model.Room, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_participants WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.booking_id, r.is_active, r.created_at, r.updated_at
		FROM chat_rooms r JOIN chat_participants p ON p.room_id = r.id
		WHERE p.user_id = ?
		ORDER BY r.updated_at DESC, r.id
		LIMIT ? OFFSET ?
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

// --- participants ---

const participantSelect = `
	SELECT p.id, p.room_id, p.user_id, u.email, p.is_admin, p.joined_at
	FROM chat_participants p JOIN users u ON u.id = p.user_id`

func scanParticipant(row scanner) (*model.Participant, error) {
	var (
		p      model.Participant
		joined string
	)
	if err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Email, &p.IsAdmin, &joined); err != nil {
		return nil, notFound(err)
	}
	var err error
	if p.JoinedAt, err = parseTime(joined); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetParticipant(ctx context.Context, roomID, userID string) (*model.Participant, error) {
	return scanParticipant(s.db.QueryRowContext(ctx, participantSelect+` WHERE p.room_id = ? AND p.user_id = ?`, roomID, userID))
}

func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]*model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, participantSelect+` WHERE p.room_id = ? ORDER BY p.joined_at, p.id`, roomID)
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

func (s *Store) AddParticipant(ctx context.Context, roomID, userID string, isAdmin bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_participants (id, room_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, uuid.NewString(), roomID, userID, isAdmin, formatTime(s.timestamp()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) RemoveParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_participants WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- messages ---

func (s *Store) InsertMessage(ctx context.Context, roomID, senderID, text string) (*model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	created := s.timestamp()
	m := &model.Message{ID: uuid.NewString(), RoomID: roomID, SenderID: senderID, Text: text, CreatedAt: created}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, message, created_at) VALUES (?, ?, ?, ?, ?)
	`, m.ID, roomID, senderID, text, formatTime(created)); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET updated_at = ? WHERE id = ?`, formatTime(created), roomID); err != nil {
		return nil, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, senderID).Scan(&m.SenderEmail); err != nil {
		return nil, notFound(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

const messageSelect = `
	SELECT m.id, m.room_id, m.sender_id, u.email, m.message, m.created_at
	FROM chat_messages m JOIN users u ON u.id = m.sender_id`

func scanMessage(row scanner) (*model.Message, error) {
	var (
		m       model.Message
		created string
	)
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderEmail, &m.Text, &created); err != nil {
		return nil, err
	}
	var err error
	if m.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*model.Message, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE room_id = ?`, roomID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, messageSelect+`
		WHERE m.room_id = ?
		ORDER BY m.created_at, m.seq
		LIMIT ? OFFSET ?
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

func (s *Store) LastMessage(ctx context.Context, roomID string) (*model.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+`
		WHERE m.room_id = ?
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT 1
	`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// --- read receipts ---

func (s *Store) MarkRoomRead(ctx context.Context, roomID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_message_reads (id, message_id, user_id, read_at)
		SELECT lower(hex(randomblob(16))), m.id, ?2, ?3 FROM chat_messages m
		WHERE m.room_id = ?1 AND m.sender_id <> ?2
		  AND NOT EXISTS (
			SELECT 1 FROM chat_message_reads r WHERE r.message_id = m.id AND r.user_id = ?2
		  )
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, roomID, userID, formatTime(s.timestamp()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages m
		WHERE m.room_id = ?1 AND m.sender_id <> ?2
		  AND NOT EXISTS (
			SELECT 1 FROM chat_message_reads r WHERE r.message_id = m.id AND r.user_id = ?2
		  )
	`, roomID, userID).Scan(&n)
	return n, err
}

// --- notifications ---

func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	var entityType *string
	if n.EntityType != nil {
		et := string(*n.EntityType)
		entityType = &et
	}

	n.ID = uuid.NewString()
	n.CreatedAt = s.timestamp()
	n.IsRead = false
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, type, title, message, entity_type, entity_id, metadata, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, n.ID, n.RecipientID, n.ActorID, string(n.Type), n.Title, n.Message, entityType, n.EntityID, string(raw), formatTime(n.CreatedAt))
	return err
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = ?`, recipientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.recipient_id, n.actor_id, n.type, n.title, n.message, n.entity_type, n.entity_id,
		       n.metadata, n.is_read, n.created_at, a.email, a.role, a.display_name
		FROM notifications n LEFT JOIN users a ON a.id = n.actor_id
		WHERE n.recipient_id = ?
		ORDER BY n.created_at DESC, n.id
		LIMIT ? OFFSET ?
	`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var (
			n                                model.Notification
			typ, metadata, created           string
			actorID, entityType, entityID    sql.NullString
			actorEmail, actorRole, actorName sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &actorID, &typ, &n.Title, &n.Message, &entityType, &entityID,
			&metadata, &n.IsRead, &created, &actorEmail, &actorRole, &actorName); err != nil {
			return nil, 0, err
		}
		n.Type = model.NotificationType(typ)
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return nil, 0, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
		}
		if entityType.Valid {
			et := model.EntityType(entityType.String)
			n.EntityType = &et
		}
		if entityID.Valid {
			n.EntityID = &entityID.String
		}
		if actorID.Valid {
			n.ActorID = &actorID.String
			if actorEmail.Valid {
				u := &model.User{ID: actorID.String, Email: actorEmail.String, Role: model.Role(actorRole.String), DisplayName: actorName.String}
				n.Actor = u.Actor()
			}
		}
		out = append(out, &n)
	}
	return out, total, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string) (bool, error) {
	var isRead bool
	err := s.db.QueryRowContext(ctx, `
		SELECT is_read FROM notifications WHERE id = ? AND recipient_id = ?
	`, id, recipientID).Scan(&isRead)
	if err != nil {
		return false, notFound(err)
	}
	if isRead {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ? AND is_read = 0
	`, id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0
	`, recipientID).Scan(&n)
	return n, err
}
