package handler

import (
	"strings"

	"trilex-backend/internal/middleware"
	"trilex-backend/internal/model"
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	chatSvc *service.ChatService
}

func NewChatHandler(chatSvc *service.ChatService) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc}
}

// OpenRoom creates or returns the room of a booking.
// POST /api/v1/chat/rooms/booking/:booking_id
func (h *ChatHandler) OpenRoom(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	room, created, err := h.chatSvc.CreateOrGetRoom(c.Context(), user, c.Params("booking_id"))
	if err != nil {
		return serviceError(c, err)
	}
	if created {
		return c.Status(201).JSON(room)
	}
	return c.JSON(room)
}

// ListRooms returns the caller's rooms with last message and unread count.
// GET /api/v1/chat/rooms?page=1&page_size=20
func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	page := pageFromQuery(c)
	rooms, total, err := h.chatSvc.ListMyRooms(c.Context(), user.ID, page)
	if err != nil {
		return serviceError(c, err)
	}
	return paginated(c, page, total, rooms)
}

// ListMessages returns room history, oldest first.
// GET /api/v1/chat/rooms/:room_id/messages?page=1&page_size=20
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	page := pageFromQuery(c)
	msgs, total, err := h.chatSvc.ListMessages(c.Context(), c.Params("room_id"), user.ID, page)
	if err != nil {
		return serviceError(c, err)
	}
	return paginated(c, page, total, msgs)
}

// MarkRead POST /api/v1/chat/rooms/:room_id/mark-read
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	created, err := h.chatSvc.MarkRead(c.Context(), c.Params("room_id"), user.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "marked": created})
}

// UnreadCount GET /api/v1/chat/rooms/:room_id/unread-count
func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	count, err := h.chatSvc.UnreadCount(c.Context(), c.Params("room_id"), user.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"room_id": c.Params("room_id"), "unread_count": count})
}

// AddMember POST /api/v1/chat/rooms/:room_id/members
func (h *ChatHandler) AddMember(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req model.AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}

	participant, err := h.chatSvc.AddMember(c.Context(), user.ID, c.Params("room_id"), req.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(participant)
}

// RemoveMember DELETE /api/v1/chat/rooms/:room_id/members/:user_id
func (h *ChatHandler) RemoveMember(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.chatSvc.RemoveMember(c.Context(), user.ID, c.Params("room_id"), c.Params("user_id")); err != nil {
		return serviceError(c, err)
	}
	return c.SendStatus(204)
}
