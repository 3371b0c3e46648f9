package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"trilex-backend/internal/database"
	"trilex-backend/internal/model"
)

// openTestPool connects to DATABASE_TEST_URL and applies the migrations.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPool(ctx, url, 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	if err := database.RunMigrations(ctx, pool, filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatal(err)
	}
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool, role model.Role) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, role) VALUES ($1, $2, $3)`, id, id+"@example.com", string(role)); err != nil {
		t.Fatal(err)
	}
	return id
}

func seedBooking(t *testing.T, pool *pgxpool.Pool, clientID, providerID string) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO bookings (id, created_by, created_to) VALUES ($1, $2, $3)`, id, clientID, providerID); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestPostgresChatFlow(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	chat := NewChatRepository(pool)
	users := NewUserRepository(pool)

	client := seedUser(t, pool, model.RoleClient)
	firm := seedUser(t, pool, model.RoleFirm)
	bookingID := seedBooking(t, pool, client, firm)

	tx, err := users.GetTransaction(ctx, bookingID)
	if err != nil || tx.ProviderRole != model.RoleFirm || !tx.MultiMember() {
		t.Fatalf("transaction: %+v (%v)", tx, err)
	}

	founders := []model.NewParticipant{{UserID: client}, {UserID: firm, IsAdmin: true}}
	room, created, err := chat.CreateRoom(ctx, bookingID, founders)
	if err != nil || !created {
		t.Fatalf("create room: created=%v err=%v", created, err)
	}
	again, created, err := chat.CreateRoom(ctx, bookingID, founders)
	if err != nil || created || again.ID != room.ID {
		t.Fatalf("second create must return the same room: %v %v", created, err)
	}

	for _, text := range []string{"a", "b", "c"} {
		if _, err := chat.InsertMessage(ctx, room.ID, firm, text); err != nil {
			t.Fatal(err)
		}
	}
	msgs, total, err := chat.ListMessages(ctx, room.ID, 10, 0)
	if err != nil || total != 3 || msgs[0].Text != "a" || msgs[2].Text != "c" {
		t.Fatalf("history: %d %v", total, err)
	}

	if n, _ := chat.CountUnread(ctx, room.ID, client); n != 3 {
		t.Errorf("expected 3 unread, got %d", n)
	}
	if n, _ := chat.MarkRoomRead(ctx, room.ID, client); n != 3 {
		t.Errorf("expected 3 receipts, got %d", n)
	}
	if n, _ := chat.MarkRoomRead(ctx, room.ID, client); n != 0 {
		t.Errorf("second mark must be a no-op, got %d", n)
	}
	if n, _ := chat.CountUnread(ctx, room.ID, firm); n != 0 {
		t.Errorf("own messages never count as unread, got %d", n)
	}

	if _, err := chat.GetParticipant(ctx, room.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresNotifications(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewNotificationRepository(pool)
	recipient := seedUser(t, pool, model.RoleClient)
	actor := seedUser(t, pool, model.RoleLawyer)

	n := &model.Notification{
		RecipientID: recipient,
		ActorID:     &actor,
		Type:        model.NotificationBookingAccepted,
		Title:       "Booking accepted",
		Metadata:    map[string]any{"k": "v"},
	}
	if err := repo.InsertNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	list, total, err := repo.ListNotifications(ctx, recipient, 10, 0)
	if err != nil || total != 1 || list[0].Actor == nil || list[0].Actor.Role != model.RoleLawyer {
		t.Fatalf("list: %+v %d %v", list, total, err)
	}
	if changed, err := repo.MarkNotificationRead(ctx, n.ID, actor); !errors.Is(err, ErrNotFound) || changed {
		t.Errorf("foreign mark: %v %v", changed, err)
	}
	if changed, _ := repo.MarkNotificationRead(ctx, n.ID, recipient); !changed {
		t.Error("first mark must change the row")
	}
	if count, _ := repo.CountUnreadNotifications(ctx, recipient); count != 0 {
		t.Errorf("expected 0 unread, got %d", count)
	}
}
