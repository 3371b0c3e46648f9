package handler

import (
	"trilex-backend/internal/model"
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ServerHandler serves service-to-service calls guarded by the server key.
type ServerHandler struct {
	notifySvc *service.NotificationService
}

func NewServerHandler(notifySvc *service.NotificationService) *ServerHandler {
	return &ServerHandler{notifySvc: notifySvc}
}

// Notify is called by the booking and invitation workflows.
// POST /api/v1/server/notifications
func (h *ServerHandler) Notify(c *fiber.Ctx) error {
	var req model.NotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	n, err := h.notifySvc.Notify(c.Context(), req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(n)
}
