package handler

import (
	"log"

	"trilex-backend/internal/model"
	"trilex-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type WSHandler struct {
	gateway *service.Gateway
	authSvc *service.AuthService
}

func NewWSHandler(gateway *service.Gateway, authSvc *service.AuthService) *WSHandler {
	return &WSHandler{gateway: gateway, authSvc: authSvc}
}

// Upgrade authenticates the ?token= credential before accepting the
// websocket. Rejected handshakes get a bare 401 and never see a frame.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		return c.SendStatus(401)
	}
	user, err := h.authSvc.Authenticate(c.Context(), token)
	if err != nil {
		log.Printf("[WS] handshake rejected from %s: %v", c.IP(), err)
		return c.SendStatus(401)
	}

	c.Locals("ws_user", user)
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	user, ok := c.Locals("ws_user").(*model.User)
	if !ok {
		return
	}
	h.gateway.Serve(c, user)
}
