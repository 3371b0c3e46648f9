package handler

import (
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	chatSvc  *service.ChatService
	gateway  *service.Gateway
	hub      *service.Hub
	presence service.Presence
}

func NewAdminHandler(chatSvc *service.ChatService, gateway *service.Gateway, hub *service.Hub, presence service.Presence) *AdminHandler {
	return &AdminHandler{chatSvc: chatSvc, gateway: gateway, hub: hub, presence: presence}
}

// Stats GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats := h.hub.Stats()
	resp := fiber.Map{
		"sessions":    h.gateway.Sessions(),
		"subscribers": stats.Connections,
		"topics":      stats.Topics,
	}
	if local, ok := h.presence.(*service.LocalPresence); ok {
		resp["users_online"] = local.OnlineUsers()
	}
	return c.JSON(resp)
}

// DeactivateRoom POST /api/v1/admin/rooms/:room_id/deactivate
func (h *AdminHandler) DeactivateRoom(c *fiber.Ctx) error {
	if err := h.chatSvc.SetRoomActive(c.Context(), c.Params("room_id"), false); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "room_id": c.Params("room_id"), "is_active": false})
}
