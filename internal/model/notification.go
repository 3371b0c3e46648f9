package model

import "time"

type NotificationType string

const (
	NotificationBookingCreated         NotificationType = "booking_created"
	NotificationBookingAccepted        NotificationType = "booking_accepted"
	NotificationBookingRejected        NotificationType = "booking_rejected"
	NotificationFirmInvitationReceived NotificationType = "firm_invitation_received"
	NotificationFirmInvitationAccepted NotificationType = "firm_invitation_accepted"
	NotificationFirmInvitationRejected NotificationType = "firm_invitation_rejected"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationBookingCreated, NotificationBookingAccepted, NotificationBookingRejected,
		NotificationFirmInvitationReceived, NotificationFirmInvitationAccepted, NotificationFirmInvitationRejected:
		return true
	}
	return false
}

// EntityType tags the opaque entity a notification points at.
// The UI interprets it; the core never resolves it.
type EntityType string

const (
	EntityBooking        EntityType = "booking"
	EntityFirmInvitation EntityType = "firm_invitation"
	EntityChatRoom       EntityType = "chat_room"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityBooking, EntityFirmInvitation, EntityChatRoom:
		return true
	}
	return false
}

type EntityRef struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"-"`
	ActorID     *string          `json:"-"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	EntityType  *EntityType      `json:"entity_type"`
	EntityID    *string          `json:"entity_id"`
	Metadata    map[string]any   `json:"metadata"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
	Actor       *Actor           `json:"actor"`
}

// NotifyRequest is the input of the fan-out. It is also the JSON body accepted
// by the intake adapters.
type NotifyRequest struct {
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Entity      *EntityRef       `json:"entity,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	ActorID     *string          `json:"actor_id,omitempty"`
}
