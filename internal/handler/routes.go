package handler

import (
	"time"

	"trilex-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Routes bundles what Register mounts on the app.
type Routes struct {
	Auth      middleware.Authenticator
	ServerKey string
	AdminKey  string

	Health       *HealthHandler
	Chat         *ChatHandler
	Notification *NotificationHandler
	Server       *ServerHandler
	Admin        *AdminHandler
	WS           *WSHandler
}

func Register(app *fiber.App, r Routes) {
	app.Get("/health", r.Health.Health)
	app.Get("/ready", r.Health.Ready)

	if r.WS != nil {
		app.Get("/ws", r.WS.Upgrade)
	}

	v1 := app.Group("/api/v1")

	// Key-guarded groups go before the JWT catch-all group.
	server := v1.Group("/server", middleware.RateLimit(600, time.Minute), middleware.ServerKey(r.ServerKey))
	server.Post("/notifications", r.Server.Notify)

	admin := v1.Group("/admin", middleware.AdminKey(r.AdminKey))
	admin.Get("/stats", r.Admin.Stats)
	admin.Post("/rooms/:room_id/deactivate", r.Admin.DeactivateRoom)

	protected := v1.Group("", middleware.Auth(r.Auth), middleware.RateLimit(300, time.Minute))

	chat := protected.Group("/chat/rooms")
	chat.Get("/", r.Chat.ListRooms)
	chat.Post("/booking/:booking_id", r.Chat.OpenRoom)
	chat.Get("/:room_id/messages", r.Chat.ListMessages)
	chat.Post("/:room_id/mark-read", r.Chat.MarkRead)
	chat.Get("/:room_id/unread-count", r.Chat.UnreadCount)
	chat.Post("/:room_id/members", r.Chat.AddMember)
	chat.Delete("/:room_id/members/:user_id", r.Chat.RemoveMember)

	notifications := protected.Group("/notifications")
	notifications.Get("/", r.Notification.List)
	notifications.Get("/unread-count", r.Notification.UnreadCount)
	notifications.Post("/mark-all-read", r.Notification.MarkAllRead)
	notifications.Post("/:id/read", r.Notification.MarkRead)
}
