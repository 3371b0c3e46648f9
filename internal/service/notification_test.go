package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"trilex-backend/internal/model"
)

func bookingNotice(recipientID string) model.NotifyRequest {
	return model.NotifyRequest{
		RecipientID: recipientID,
		Type:        model.NotificationBookingAccepted,
		Title:       "Booking accepted",
		Message:     "Your booking was accepted",
		Entity:      &model.EntityRef{Type: model.EntityBooking, ID: uuid.NewString()},
	}
}

func TestNotifyOnlineRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)

	inbox := newFakeSub("c1", client.ID)
	h.hub.Subscribe(UserTopic(client.ID), inbox)

	req := bookingNotice(client.ID)
	req.ActorID = &lawyer.ID
	n, err := h.notify.Notify(ctx, req)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	frames := inbox.decoded()
	if len(frames) != 2 || frames[0]["type"] != "notification" || frames[1]["type"] != "unread_count" {
		t.Fatalf("expected notification then unread_count, got %v", inbox.types())
	}
	payload, _ := frames[0]["notification"].(map[string]any)
	if payload["id"] != n.ID || payload["entity_type"] != "booking" || payload["is_read"] != false {
		t.Errorf("unexpected payload %v", payload)
	}
	actor, _ := payload["actor"].(map[string]any)
	if actor["email"] != lawyer.Email || actor["role"] != "lawyer" || actor["name"] != lawyer.Email {
		t.Errorf("unexpected actor %v", actor)
	}
	if frames[1]["count"] != float64(1) {
		t.Errorf("expected count 1, got %v", frames[1]["count"])
	}
	if len(h.sink.got) != 1 || h.sink.got[0].ID != n.ID {
		t.Errorf("sink expected the notification, got %d", len(h.sink.got))
	}
}

func TestNotifyOfflineRecipientPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)

	if _, err := h.notify.Notify(ctx, bookingNotice(client.ID)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n, _ := h.notify.UnreadCount(ctx, client.ID); n != 1 {
		t.Errorf("expected 1 unread, got %d", n)
	}
	list, total, err := h.notify.List(ctx, client.ID, NewPage(1, 20))
	if err != nil || total != 1 || list[0].Actor != nil {
		t.Errorf("unexpected list %+v total=%d err=%v", list, total, err)
	}
}

func TestNotifyValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)

	cases := map[string]func(*model.NotifyRequest){
		"unknown type":        func(r *model.NotifyRequest) { r.Type = "booking_exploded" },
		"blank title":         func(r *model.NotifyRequest) { r.Title = " " },
		"unknown entity type": func(r *model.NotifyRequest) { r.Entity.Type = "invoice" },
		"missing entity id":   func(r *model.NotifyRequest) { r.Entity.ID = "" },
		"bad recipient":       func(r *model.NotifyRequest) { r.RecipientID = "nobody" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := bookingNotice(client.ID)
			mutate(&req)
			var verr *ValidationError
			if _, err := h.notify.Notify(ctx, req); !errors.As(err, &verr) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := h.notify.Notify(ctx, bookingNotice(uuid.NewString())); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if n, _ := h.notify.UnreadCount(ctx, client.ID); n != 0 {
		t.Errorf("rejected requests must not persist, got %d", n)
	}
}

func TestNotificationMarkRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	other := h.user(t, "other@example.com", model.RoleClient)

	first, _ := h.notify.Notify(ctx, bookingNotice(client.ID))
	h.notify.Notify(ctx, bookingNotice(client.ID))

	inbox := newFakeSub("c1", client.ID)
	h.hub.Subscribe(UserTopic(client.ID), inbox)

	if err := h.notify.MarkRead(ctx, other.ID, first.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("foreign mark: expected ErrNotificationNotFound, got %v", err)
	}
	if err := h.notify.MarkRead(ctx, client.ID, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.notify.MarkRead(ctx, client.ID, first.ID); err != nil {
		t.Fatal(err)
	}
	frames := inbox.decoded()
	if len(frames) != 1 || frames[0]["count"] != float64(1) {
		t.Fatalf("expected a single unread_count{1}, got %v", frames)
	}

	updated, err := h.notify.MarkAllRead(ctx, client.ID)
	if err != nil || updated != 1 {
		t.Fatalf("mark all: %d (%v)", updated, err)
	}
	h.notify.MarkAllRead(ctx, client.ID)
	frames = inbox.decoded()
	if len(frames) != 3 || frames[1]["count"] != float64(0) || frames[2]["count"] != float64(0) {
		t.Errorf("mark all must always push the count, got %v", frames)
	}
}
