package api

import (
	"strings"

	"github.com/example/chat-backend/domain/apperr"
	"github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	// IdentityContextKey is the key used to store the caller's identity in the Fiber context.
	IdentityContextKey = "identity"
	// SessionContextKey carries the socket session from the handshake to the upgrade.
	SessionContextKey = "session"
)

const (
	msgSignIn   = "Please sign in or refresh!"
	msgActivate = "Please activate your account first."
)

// AuthMiddleware resolves the bearer token into an identity.
func AuthMiddleware(authPort auth.AuthPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return writeError(c, apperr.Unauthenticated(msgSignIn))
		}

		identity, err := authPort.Authenticate(c.UserContext(), token)
		if err != nil {
			return writeError(c, err)
		}

		c.Locals(IdentityContextKey, identity)
		return c.Next()
	}
}

// RequireActive rejects inactive accounts when required is set.
func RequireActive(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !required {
			return c.Next()
		}
		identity, err := identityFrom(c)
		if err != nil {
			return writeError(c, err)
		}
		if !identity.Active {
			return writeError(c, apperr.Forbidden(msgActivate))
		}
		return c.Next()
	}
}

func identityFrom(c *fiber.Ctx) (*user.Identity, error) {
	identity, ok := c.Locals(IdentityContextKey).(*user.Identity)
	if !ok || identity == nil {
		return nil, apperr.Unauthenticated(msgSignIn)
	}
	return identity, nil
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	token, found := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}
