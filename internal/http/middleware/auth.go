package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"refdata/internal/auth"
)

// PrincipalLocalKey holds the authenticated principal's name in Fiber's context locals.
const PrincipalLocalKey = "principal"

var errUnknownAPIKey = errors.New("the API key is not recognized")

// Auth resolves `Authorization: Bearer <key>` against ks and stores the
// principal in the request's user context. When ks has no keys every request
// runs as auth.Anonymous.
func Auth(ks *auth.KeyStore) fiber.Handler {
	if !ks.Enabled() {
		return func(c *fiber.Ctx) error {
			setPrincipal(c, auth.Anonymous())
			return c.Next()
		}
	}

	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			p, ok := ks.Resolve(key)
			if !ok {
				return false, errUnknownAPIKey
			}
			setPrincipal(c, p)
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey) {
				return fiber.NewError(fiber.StatusUnauthorized, "a bearer API key is required")
			}
			return fiber.NewError(fiber.StatusUnauthorized, errUnknownAPIKey.Error())
		},
	})
}

func setPrincipal(c *fiber.Ctx, p *auth.Principal) {
	c.Locals(PrincipalLocalKey, p.Name)
	c.SetUserContext(auth.WithPrincipal(c.UserContext(), p))
}
