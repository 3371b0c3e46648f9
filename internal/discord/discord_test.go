package discord

import (
	"context"
	"testing"
	"time"

	"trilex-backend/internal/model"
)

func TestCommandHandler(t *testing.T) {
	h := NewCommandHandler(func() Stats {
		return Stats{Sessions: 3, Subscribers: 7, Topics: 4, UsersOnline: 2}
	})

	status := h.Handle("!STATUS please")
	if status == nil || len(status.Fields) != 4 {
		t.Fatalf("unexpected status embed %+v", status)
	}
	if status.Fields[0].Value != "3" || status.Fields[1].Value != "2" {
		t.Errorf("unexpected counters %s / %s", status.Fields[0].Value, status.Fields[1].Value)
	}
	if h.Handle("!help") == nil {
		t.Error("help must answer")
	}
	for _, in := range []string{"", "   ", "!kick someone", "hello"} {
		if h.Handle(in) != nil {
			t.Errorf("%q must be ignored", in)
		}
	}
}

func TestNotificationEmbed(t *testing.T) {
	entityType, entityID := model.EntityBooking, "b-1"
	n := &model.Notification{
		ID:          "n-1",
		RecipientID: "u-1",
		Type:        model.NotificationBookingRejected,
		Title:       "Booking rejected",
		Message:     "contains personal details",
		EntityType:  &entityType,
		EntityID:    &entityID,
		Actor:       &model.Actor{ID: "u-2", Email: "lawyer@example.com", Role: model.RoleLawyer},
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	e := notificationEmbed(n)
	if e.Title != "Booking rejected" || e.Color != 0xE74C3C || e.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected embed header %+v", e)
	}
	if len(e.Fields) != 4 || e.Fields[3].Value != "booking/b-1" || e.Fields[2].Value != "u-2 (lawyer)" {
		t.Errorf("unexpected fields %+v", e.Fields)
	}
	for _, f := range e.Fields {
		if f.Value == n.Message || f.Value == n.Actor.Email {
			t.Errorf("embed must not carry personal data: %+v", f)
		}
	}
}

func TestDisabledBotIsNoopSink(t *testing.T) {
	bot, err := NewBot("", "ops", nil)
	if err != nil || bot != nil {
		t.Fatalf("expected disabled bot, got %v %v", bot, err)
	}
	if err := bot.Mirror(context.Background(), &model.Notification{ID: "n"}); err != nil {
		t.Errorf("nil bot mirror: %v", err)
	}
	bot.Stop()
}
