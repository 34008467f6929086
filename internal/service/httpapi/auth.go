package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// Роли, которые несёт токен в claim "role".
const (
	RoleCustomer = "CUSTOMER"
	RoleEmployee = "EMPLOYEE"
)

const (
	claimEmail = "email"
	claimRole  = "role"
	claimExp   = "exp"

	localsUser = "user"
)

var errEmptySecret = errors.New("jwt secret is empty")

// Identity — вызывающий, определённый по bearer-токену.
type Identity struct {
	Email string
	Role  string
}

// IssueToken подписывает HS256-токен с email и ролью. ttl <= 0 означает токен без срока.
func IssueToken(secret, email, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}
	claims := jwt.MapClaims{
		claimEmail: strings.TrimSpace(email),
		claimRole:  strings.ToUpper(strings.TrimSpace(role)),
	}
	if ttl > 0 {
		claims[claimExp] = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// identityFromCtx достаёт email и роль из токена, который jwt middleware положил
// в c.Locals("user").
func identityFromCtx(c *fiber.Ctx) (Identity, error) {
	tok, ok := c.Locals(localsUser).(*jwt.Token)
	if !ok || tok == nil {
		return Identity{}, fiber.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fiber.ErrUnauthorized
	}

	email, _ := claims[claimEmail].(string)
	role, _ := claims[claimRole].(string)
	email = strings.TrimSpace(email)
	if email == "" {
		return Identity{}, fiber.ErrUnauthorized
	}
	return Identity{Email: email, Role: strings.ToUpper(role)}, nil
}

// requireRole пропускает только вызывающих с указанной ролью.
func requireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identityFromCtx(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		}
		if id.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
		}
		return c.Next()
	}
}
