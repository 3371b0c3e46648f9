package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trilex-backend/internal/config"
	"trilex-backend/internal/model"
	"trilex-backend/internal/repository/sqlite"
)

type harness struct {
	store    *sqlite.Store
	hub      *Hub
	presence *LocalPresence
	chat     *ChatService
	notify   *NotificationService
	sink     *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hub := NewHub()
	presence := NewLocalPresence()
	sink := &recordingSink{}
	return &harness{
		store:    store,
		hub:      hub,
		presence: presence,
		sink:     sink,
		chat: NewChatService(ChatDeps{
			Store:            store,
			Users:            store,
			Directory:        store,
			Bus:              hub,
			Presence:         presence,
			MaxMessageLength: 50,
		}),
		notify: NewNotificationService(store, store, hub, sink),
	}
}

func (h *harness) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Email: email, Role: role}
	if err := h.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// room books provider for client and opens the booking's room as the client.
func (h *harness) room(t *testing.T, client, provider *model.User) *model.RoomSummary {
	t.Helper()
	ctx := context.Background()
	bookingID, err := h.store.CreateBooking(ctx, client.ID, provider.ID)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	room, created, err := h.chat.CreateOrGetRoom(ctx, client, bookingID)
	if err != nil || !created {
		t.Fatalf("open room: created=%v err=%v", created, err)
	}
	return room
}

func testWSConfig() config.WSConfig {
	return config.WSConfig{
		ReadTimeout:      time.Minute,
		WriteTimeout:     time.Second,
		PingPeriod:       time.Hour,
		SendBuffer:       64,
		MaxFrameBytes:    64 * 1024,
		OperationTimeout: 5 * time.Second,
	}
}

type recordingSink struct {
	got []*model.Notification
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Mirror(_ context.Context, n *model.Notification) error {
	s.got = append(s.got, n)
	return nil
}
