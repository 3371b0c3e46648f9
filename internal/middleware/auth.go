package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strings"

	"trilex-backend/internal/model"
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	LocalUser   = "user"
	LocalUserID = "user_id"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

func Auth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(401).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		user, err := auth.Authenticate(c.UserContext(), tokenString)
		if err != nil {
			if !errors.Is(err, service.ErrInvalidToken) {
				log.Printf("[Auth] %v", err)
			}
			return c.Status(401).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(LocalUser, user)
		c.Locals(LocalUserID, user.ID)
		return c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(LocalUser).(*model.User)
	return user
}

func ServerKey(expectedKey string) fiber.Handler {
	return keyGuard("X-Server-Key", expectedKey, "invalid server key")
}

func AdminKey(expectedKey string) fiber.Handler {
	return keyGuard("X-Admin-Key", expectedKey, "invalid admin key")
}

// keyGuard compares a shared-secret header. An expected value starting with
// "$2" is treated as a bcrypt hash of the key.
func keyGuard(header, expected, message string) fiber.Handler {
	hashed := strings.HasPrefix(expected, "$2")
	return func(c *fiber.Ctx) error {
		key := c.Get(header)
		if key == "" || expected == "" || !keyMatches(key, expected, hashed) {
			return c.Status(403).JSON(fiber.Map{"error": message})
		}
		return c.Next()
	}
}

func keyMatches(key, expected string, hashed bool) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(expected), []byte(key)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(expected)) == 1
}
