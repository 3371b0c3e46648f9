package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound socket actions.
const (
	ActionJoinRoom    = "join_room"
	ActionLeaveRoom   = "leave_room"
	ActionSendMessage = "send_message"
	ActionMarkRead    = "mark_read"
)

// WSFrame is a client to server frame.
type WSFrame struct {
	Action       string `json:"action"`
	RoomID       string `json:"room_id"`
	Message      string `json:"message,omitempty"`
	ClientTempID string `json:"client_temp_id,omitempty"`
}

// Event is a server to client frame. The set is closed: only types in this
// package implement it.
type Event interface {
	eventType() string
}

// EncodeEvent renders an event as a JSON object with its "type" discriminator first.
func EncodeEvent(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.eventType(), err)
	}
	head := fmt.Sprintf(`{"type":%q`, e.eventType())
	if len(body) <= 2 {
		return []byte(head + "}"), nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// EventType returns the wire discriminator of e.
func EventType(e Event) string {
	return e.eventType()
}

type RoomJoinedEvent struct {
	RoomID string `json:"room_id"`
}

type RoomLeftEvent struct {
	RoomID string `json:"room_id"`
}

type MessageSentEvent struct {
	ClientTempID string    `json:"client_temp_id"`
	MessageID    string    `json:"message_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChatMessageEvent struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	Message   string    `json:"message"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomUpdatedEvent struct {
	RoomID      string          `json:"room_id"`
	LastMessage *MessagePreview `json:"last_message"`
}

type MessageDeliveredEvent struct {
	RoomID      string `json:"room_id"`
	MessageID   string `json:"message_id"`
	DeliveredTo string `json:"delivered_to"`
}

type MessageReadEvent struct {
	RoomID   string `json:"room_id"`
	ReaderID string `json:"reader_id"`
}

type NotificationEvent struct {
	Notification *Notification `json:"notification"`
}

type UnreadCountEvent struct {
	Count int `json:"count"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

func (RoomJoinedEvent) eventType() string       { return "room_joined" }
func (RoomLeftEvent) eventType() string         { return "room_left" }
func (MessageSentEvent) eventType() string      { return "message_sent" }
func (ChatMessageEvent) eventType() string      { return "chat_message" }
func (RoomUpdatedEvent) eventType() string      { return "room_updated" }
func (MessageDeliveredEvent) eventType() string { return "message_delivered" }
func (MessageReadEvent) eventType() string      { return "message_read" }
func (NotificationEvent) eventType() string     { return "notification" }
func (UnreadCountEvent) eventType() string      { return "unread_count" }
func (ErrorEvent) eventType() string            { return "error" }

func NewChatMessageEvent(m *Message) ChatMessageEvent {
	return ChatMessageEvent{
		RoomID:    m.RoomID,
		MessageID: m.ID,
		Message:   m.Text,
		Sender:    Sender{ID: m.SenderID, Email: m.SenderEmail},
		CreatedAt: m.CreatedAt,
	}
}
