package handler

import (
	"trilex-backend/internal/middleware"
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	notifySvc *service.NotificationService
}

func NewNotificationHandler(notifySvc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifySvc: notifySvc}
}

// List GET /api/v1/notifications?page=1&page_size=20
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	page := pageFromQuery(c)
	list, total, err := h.notifySvc.List(c.Context(), user.ID, page)
	if err != nil {
		return serviceError(c, err)
	}
	return paginated(c, page, total, list)
}

// UnreadCount GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	count, err := h.notifySvc.UnreadCount(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": count})
}

// MarkRead POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.notifySvc.MarkRead(c.Context(), user.ID, c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// MarkAllRead POST /api/v1/notifications/mark-all-read
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	updated, err := h.notifySvc.MarkAllRead(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "updated": updated})
}
