package middleware

import (
	"log"
	"strings"

	"c2cmarket/internal/applog"
	"c2cmarket/internal/models"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

const (
	sessionKey = "session"
	userKey    = "user"
)

// AuthRequired resolves the bearer token to a signed-in session and stores
// the session and its user in the request locals.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		sess, err := authService.Authenticate(parts[1])
		if err != nil {
			log.Printf("Session token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired session",
			})
		}
		u := sess.User()
		if u == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired session",
			})
		}

		c.Locals(sessionKey, sess)
		c.Locals(userKey, u)
		c.Locals(applog.UserKey, u.ID)
		return c.Next()
	}
}

// AdminRequired rejects signed-in users without the admin flag. It must run
// after AuthRequired.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := CurrentUser(c)
		if u == nil || !u.IsAdmin {
			applog.Security(c, "admin.denied", nil)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Administrator access required",
			})
		}
		return c.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(userKey).(*models.User)
	return u
}

// CurrentSession returns the session stored by AuthRequired, or nil.
func CurrentSession(c *fiber.Ctx) *services.Session {
	s, _ := c.Locals(sessionKey).(*services.Session)
	return s
}
