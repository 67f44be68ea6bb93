package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyAuth guards the console API. An empty key disables the check. The
// key is read from X-API-Key, then from a Bearer Authorization header, and
// for websocket upgrades from the api_key query parameter.
func APIKeyAuth(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" {
			return c.Next()
		}

		token := c.Get("X-API-Key")
		if token == "" {
			auth := c.Get(fiber.HeaderAuthorization)
			const prefix = "Bearer "
			if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				token = auth[len(prefix):]
			}
		}
		if token == "" {
			token = c.Query("api_key")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		return c.Next()
	}
}
