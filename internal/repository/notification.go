package repository

import (
	"context"
	"errors"

	"trilex-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// InsertNotification persists n and fills in its ID, CreatedAt and IsRead.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *model.Notification) error {
	var entityType *string
	if n.EntityType != nil {
		s := string(*n.EntityType)
		entityType = &s
	}
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, actor_id, type, title, message, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_read, created_at
	`, n.RecipientID, n.ActorID, string(n.Type), n.Title, n.Message, entityType, n.EntityID, metadata,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}

// ListNotifications returns one page of the recipient's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, recipientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT n.id, n.recipient_id, n.actor_id, n.type, n.title, n.message, n.entity_type, n.entity_id,
		       n.metadata, n.is_read, n.created_at,
		       a.email, a.role, a.display_name
		FROM notifications n LEFT JOIN users a ON a.id = n.actor_id
		WHERE n.recipient_id = $1
		ORDER BY n.created_at DESC, n.id
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var (
			n                              model.Notification
			typ                            string
			entityType                     *string
			actorEmail, actorRole, actName *string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &typ, &n.Title, &n.Message, &entityType, &n.EntityID,
			&n.Metadata, &n.IsRead, &n.CreatedAt, &actorEmail, &actorRole, &actName); err != nil {
			return nil, 0, err
		}
		n.Type = model.NotificationType(typ)
		if entityType != nil {
			et := model.EntityType(*entityType)
			n.EntityType = &et
		}
		if n.ActorID != nil && actorEmail != nil {
			u := &model.User{ID: *n.ActorID, Email: *actorEmail}
			if actorRole != nil {
				u.Role = model.Role(*actorRole)
			}
			if actName != nil {
				u.DisplayName = *actName
			}
			n.Actor = u.Actor()
		}
		out = append(out, &n)
	}
	return out, total, rows.Err()
}

// MarkNotificationRead reports whether the notification flipped to read.
// ErrNotFound is returned when it does not exist or belongs to someone else.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id, recipientID string) (bool, error) {
	var isRead bool
	err := r.pool.QueryRow(ctx, `
		SELECT is_read FROM notifications WHERE id = $1 AND recipient_id = $2
	`, id, recipientID).Scan(&isRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if isRead {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2 AND is_read = FALSE
	`, id, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID).Scan(&n)
	return n, err
}
