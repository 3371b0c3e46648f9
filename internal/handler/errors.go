package handler

import (
	"errors"
	"log"

	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// serviceError maps service errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a 500.
func serviceError(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(400).JSON(fiber.Map{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrNotificationNotFound),
		errors.Is(err, service.ErrParticipantNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotRoomAdmin),
		errors.Is(err, service.ErrNotMultiMember),
		errors.Is(err, service.ErrCannotRemoveClient),
		errors.Is(err, service.ErrCannotRemoveAdmin),
		errors.Is(err, service.ErrMemberNotEligible),
		errors.Is(err, service.ErrBookingAccessDenied),
		errors.Is(err, service.ErrRoomInactive):
		return c.Status(403).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("[API ERROR] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}
}
