package service

import (
	"context"

	"trilex-backend/internal/model"
)

// ChatStore persists rooms, participants, messages and read receipts.
// Lookups return repository.ErrNotFound for missing rows.
type ChatStore interface {
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
	GetRoomByBooking(ctx context.Context, bookingID string) (*model.Room, error)
	CreateRoom(ctx context.Context, bookingID string, founders []model.NewParticipant) (*model.Room, bool, error)
	SetRoomActive(ctx context.Context, roomID string, active bool) error
	ListRoomsForUser(ctx context.Context, userID string, limit, offset int) ([]*model.Room, int, error)

	GetParticipant(ctx context.Context, roomID, userID string) (*model.Participant, error)
	ListParticipants(ctx context.Context, roomID string) ([]*model.Participant, error)
	AddParticipant(ctx context.Context, roomID, userID string, isAdmin bool) (bool, error)
	RemoveParticipant(ctx context.Context, roomID, userID string) (bool, error)

	InsertMessage(ctx context.Context, roomID, senderID, text string) (*model.Message, error)
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*model.Message, int, error)
	LastMessage(ctx context.Context, roomID string) (*model.Message, error)

	MarkRoomRead(ctx context.Context, roomID, userID string) (int64, error)
	CountUnread(ctx context.Context, roomID, userID string) (int, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, int, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// TransactionDirectory resolves bookings and firm rosters owned by the booking service.
type TransactionDirectory interface {
	GetTransaction(ctx context.Context, bookingID string) (*model.Transaction, error)
	IsAffiliated(ctx context.Context, firmUserID, userID string) (bool, error)
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
