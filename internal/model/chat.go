package model

import "time"

// Room is the conversation opened for one booking.
type Room struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant links a user to a room. Rows are created or deleted, never updated.
type Participant struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewParticipant is a founding membership row written together with its room.
type NewParticipant struct {
	UserID  string
	IsAdmin bool
}

// Message is an append-only chat message.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderEmail string    `json:"sender_email"`
	Text        string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReadReceipt marks that a user read a message they did not send.
type ReadReceipt struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessagePreview is the compact form used in room lists and room_updated events.
type MessagePreview struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender is the display identity attached to broadcast messages.
type Sender struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (m *Message) Preview() *MessagePreview {
	if m == nil {
		return nil
	}
	return &MessagePreview{
		ID:        m.ID,
		Sender:    Sender{ID: m.SenderID, Email: m.SenderEmail},
		Message:   m.Text,
		CreatedAt: m.CreatedAt,
	}
}

// RoomSummary is one entry of the "my rooms" listing.
type RoomSummary struct {
	ID           string          `json:"id"`
	BookingID    string          `json:"booking_id"`
	IsActive     bool            `json:"is_active"`
	Participants []*Participant  `json:"participants"`
	LastMessage  *MessagePreview `json:"last_message"`
	UnreadCount  int             `json:"unread_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AddMemberRequest is the body of the admin add-member endpoint.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}
