package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trilex-backend/internal/model"
)

// Notifier is the notification fan-out entry point shared by every intake.
type Notifier interface {
	Notify(ctx context.Context, req model.NotifyRequest) (*model.Notification, error)
}

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event")
)

// Routing keys of the domain events turned into notifications.
const (
	KeyBookingCreated         = "booking.created"
	KeyBookingAccepted        = "booking.accepted"
	KeyBookingRejected        = "booking.rejected"
	KeyFirmInvitationReceived = "firm_invitation.received"
	KeyFirmInvitationAccepted = "firm_invitation.accepted"
	KeyFirmInvitationRejected = "firm_invitation.rejected"
)

// RoutingKeys lists every key the consumer binds.
var RoutingKeys = []string{
	KeyBookingCreated,
	KeyBookingAccepted,
	KeyBookingRejected,
	KeyFirmInvitationReceived,
	KeyFirmInvitationAccepted,
	KeyFirmInvitationRejected,
}

type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
}

// Envelope wraps every domain event on the exchange.
type Envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type BookingEvent struct {
	BookingID    string `json:"booking_id"`
	ClientID     string `json:"client_id"`
	ProviderID   string `json:"provider_id"`
	ClientName   string `json:"client_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type InvitationEvent struct {
	InvitationID string `json:"invitation_id"`
	FirmID       string `json:"firm_id"`
	LawyerID     string `json:"lawyer_id"`
	FirmName     string `json:"firm_name,omitempty"`
	LawyerName   string `json:"lawyer_name,omitempty"`
}

// MapEvent turns a routing key and envelope body into a notification request.
func MapEvent(routingKey string, body []byte) (model.NotifyRequest, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.NotifyRequest{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if len(env.Data) == 0 {
		return model.NotifyRequest{}, fmt.Errorf("%w: empty data", ErrMalformedEvent)
	}

	switch routingKey {
	case KeyBookingCreated, KeyBookingAccepted, KeyBookingRejected:
		var ev BookingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return model.NotifyRequest{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return bookingNotice(routingKey, ev, env.Meta), nil
	case KeyFirmInvitationReceived, KeyFirmInvitationAccepted, KeyFirmInvitationRejected:
		var ev InvitationEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return model.NotifyRequest{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return invitationNotice(routingKey, ev, env.Meta), nil
	}
	return model.NotifyRequest{}, fmt.Errorf("%w: %s", ErrUnknownEvent, routingKey)
}

func bookingNotice(key string, ev BookingEvent, meta Meta) model.NotifyRequest {
	req := model.NotifyRequest{
		Entity:   &model.EntityRef{Type: model.EntityBooking, ID: ev.BookingID},
		Metadata: eventMetadata(meta),
	}
	switch key {
	case KeyBookingCreated:
		req.RecipientID = ev.ProviderID
		req.ActorID = optional(ev.ClientID)
		req.Type = model.NotificationBookingCreated
		req.Title = "New booking request"
		req.Message = fmt.Sprintf("%s requested a booking with you.", nameOr(ev.ClientName, "A client"))
	case KeyBookingAccepted:
		req.RecipientID = ev.ClientID
		req.ActorID = optional(ev.ProviderID)
		req.Type = model.NotificationBookingAccepted
		req.Title = "Booking accepted"
		req.Message = fmt.Sprintf("%s accepted your booking.", nameOr(ev.ProviderName, "Your lawyer"))
	case KeyBookingRejected:
		req.RecipientID = ev.ClientID
		req.ActorID = optional(ev.ProviderID)
		req.Type = model.NotificationBookingRejected
		req.Title = "Booking rejected"
		req.Message = fmt.Sprintf("%s declined your booking.", nameOr(ev.ProviderName, "Your lawyer"))
		if ev.Reason != "" {
			req.Metadata["reason"] = ev.Reason
		}
	}
	return req
}

func invitationNotice(key string, ev InvitationEvent, meta Meta) model.NotifyRequest {
	req := model.NotifyRequest{
		Entity:   &model.EntityRef{Type: model.EntityFirmInvitation, ID: ev.InvitationID},
		Metadata: eventMetadata(meta),
	}
	switch key {
	case KeyFirmInvitationReceived:
		req.RecipientID = ev.LawyerID
		req.ActorID = optional(ev.FirmID)
		req.Type = model.NotificationFirmInvitationReceived
		req.Title = "Firm invitation"
		req.Message = fmt.Sprintf("%s invited you to join their firm.", nameOr(ev.FirmName, "A firm"))
	case KeyFirmInvitationAccepted:
		req.RecipientID = ev.FirmID
		req.ActorID = optional(ev.LawyerID)
		req.Type = model.NotificationFirmInvitationAccepted
		req.Title = "Invitation accepted"
		req.Message = fmt.Sprintf("%s joined your firm.", nameOr(ev.LawyerName, "A lawyer"))
	case KeyFirmInvitationRejected:
		req.RecipientID = ev.FirmID
		req.ActorID = optional(ev.LawyerID)
		req.Type = model.NotificationFirmInvitationRejected
		req.Title = "Invitation declined"
		req.Message = fmt.Sprintf("%s declined your invitation.", nameOr(ev.LawyerName, "A lawyer"))
	}
	return req
}

func eventMetadata(meta Meta) map[string]any {
	md := map[string]any{}
	if meta.ID != "" {
		md["event_id"] = meta.ID
	}
	if meta.CorrelationID != nil {
		md["correlation_id"] = *meta.CorrelationID
	}
	return md
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
