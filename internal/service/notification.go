package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"trilex-backend/internal/model"
	"trilex-backend/internal/repository"

	"github.com/google/uuid"
)

// NotificationSink mirrors persisted notifications to an outside channel.
// Sinks are best effort and never affect the stored row.
type NotificationSink interface {
	Name() string
	Mirror(ctx context.Context, n *model.Notification) error
}

type NotificationService struct {
	store NotificationStore
	users UserStore
	bus   Bus
	sinks []NotificationSink
}

func NewNotificationService(store NotificationStore, users UserStore, bus Bus, sinks ...NotificationSink) *NotificationService {
	return &NotificationService{store: store, users: users, bus: bus, sinks: sinks}
}

func validateNotify(req *model.NotifyRequest) error {
	if _, err := uuid.Parse(req.RecipientID); err != nil {
		return invalid("recipient_id", "recipient_id must be a valid id")
	}
	if !req.Type.Valid() {
		return invalid("type", fmt.Sprintf("unknown notification type %q", req.Type))
	}
	if strings.TrimSpace(req.Title) == "" {
		return invalid("title", "title is required")
	}
	if len(req.Title) > 255 {
		return invalid("title", "title cannot exceed 255 characters")
	}
	if req.Entity != nil {
		if !req.Entity.Type.Valid() {
			return invalid("entity_type", fmt.Sprintf("unknown entity type %q", req.Entity.Type))
		}
		if strings.TrimSpace(req.Entity.ID) == "" {
			return invalid("entity_id", "entity_id is required with entity_type")
		}
	}
	if req.ActorID != nil {
		if _, err := uuid.Parse(*req.ActorID); err != nil {
			return invalid("actor_id", "actor_id must be a valid id")
		}
	}
	return nil
}

// Notify persists a notification and pushes it, with the refreshed unread
// count, to the recipient's live sessions. Offline recipients only get the row.
func (s *NotificationService) Notify(ctx context.Context, req model.NotifyRequest) (*model.Notification, error) {
	if err := validateNotify(&req); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, req.RecipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	n := &model.Notification{
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Type:        req.Type,
		Title:       strings.TrimSpace(req.Title),
		Message:     req.Message,
		Metadata:    req.Metadata,
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	if req.Entity != nil {
		entityType, entityID := req.Entity.Type, req.Entity.ID
		n.EntityType = &entityType
		n.EntityID = &entityID
	}
	if req.ActorID != nil {
		actor, err := s.users.GetUser(ctx, *req.ActorID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			n.ActorID = nil
		case err != nil:
			return nil, fmt.Errorf("load actor: %w", err)
		default:
			n.Actor = actor.Actor()
		}
	}

	if err := s.store.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	log.Printf("[Notify] %s -> %s (%s)", n.Type, n.RecipientID, n.ID)

	if err := s.bus.Publish(UserTopic(n.RecipientID), model.NotificationEvent{Notification: n}); err != nil {
		log.Printf("[Notify] publish %s: %v", n.ID, err)
	}
	s.pushUnreadCount(ctx, n.RecipientID)

	for _, sink := range s.sinks {
		if err := sink.Mirror(ctx, n); err != nil {
			log.Printf("[Notify] %s mirror of %s: %v", sink.Name(), n.ID, err)
		}
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID string, page Page) ([]*model.Notification, int, error) {
	list, total, err := s.store.ListNotifications(ctx, userID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	if list == nil {
		list = []*model.Notification{}
	}
	return list, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

// MarkRead flags one of the user's notifications as read. A fresh
// unread_count is pushed only when the flag changed.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if _, err := uuid.Parse(notificationID); err != nil {
		return ErrNotificationNotFound
	}
	changed, err := s.store.MarkNotificationRead(ctx, notificationID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return err
	}
	if changed {
		s.pushUnreadCount(ctx, userID)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.pushUnreadCount(ctx, userID)
	return n, nil
}

func (s *NotificationService) pushUnreadCount(ctx context.Context, userID string) {
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		log.Printf("[Notify] unread count for %s: %v", userID, err)
		return
	}
	if err := s.bus.Publish(UserTopic(userID), model.UnreadCountEvent{Count: count}); err != nil {
		log.Printf("[Notify] publish unread count for %s: %v", userID, err)
	}
}
