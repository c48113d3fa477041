package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rubrix-app/rubrix-api/internal/privacy"
)

// privacyKeyHeader carries the evaluator's passphrase for the duration of
// one request. The server uses it to encrypt and decrypt remote records and
// never persists it.
const privacyKeyHeader = "X-Privacy-Key"

// PrivacyKey binds the per-request privacy passphrase to the request
// context. Requests without the header pass through; the stores decide
// whether a key is required.
func PrivacyKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := strings.TrimSpace(c.Get(privacyKeyHeader)); key != "" {
			c.SetUserContext(privacy.ContextWithKey(c.UserContext(), key))
		}
		return c.Next()
	}
}
