package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"securevault/internal/model"
)

// IdentityLocalKey is the key under which the verified caller is stored in Fiber's context locals.
const IdentityLocalKey = "identity"

var errMissingToken = errors.New("missing bearer token")

// Claims are the token claims issued by the auth service. The subject is the actor id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies an HS256 bearer token and stores the resulting model.Identity
// in context locals. Requests without a valid token stop here with 401.
func Auth(secret []byte, leeway time.Duration) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return unauthorized(c)
		}

		var claims Claims
		if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
			return unauthorized(c)
		}
		if claims.Subject == "" {
			return unauthorized(c)
		}

		c.Locals(IdentityLocalKey, model.Identity{
			ActorID:     claims.Subject,
			DisplayName: claims.Name,
			SourceIP:    c.IP(),
		})
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *fiber.Ctx) (model.Identity, bool) {
	id, ok := c.Locals(IdentityLocalKey).(model.Identity)
	return id, ok && id.ActorID != ""
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func unauthorized(c *fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
}
