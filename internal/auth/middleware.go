package auth

import (
	"errors"
	"fmt"
	"strings"

	"procurement-backend/internal/access"
	"procurement-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
)

// JWTMiddleware authenticates the bearer token and then reloads the user, so
// a deleted account is refused and a role change applies to live tokens.
func JWTMiddleware(secret string, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		token, err := jwt.ParseWithClaims(parts[1], &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		claims, ok := token.Claims.(*JWTCustomClaims)
		if !ok || claims.UserID == 0 || !claims.Role.Valid() {
			return fiber.NewError(fiber.StatusUnauthorized, "malformed token claims")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).Select("id", "name", "role").First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "account no longer exists")
			}
			return err
		}

		c.Locals(CtxUserIDKey, user.ID)
		c.Locals(CtxUserNameKey, user.Name)
		c.Locals(CtxUserRoleKey, user.Role)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role unavailable")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "you are not allowed to do this")
	}
}

// ActorFrom turns the locals set by JWTMiddleware into an explicit actor.
func ActorFrom(c *fiber.Ctx) (access.Actor, error) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok || id == 0 {
		return access.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return access.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}
	name, _ := c.Locals(CtxUserNameKey).(string)
	return access.Actor{ID: id, Name: name, Role: role}, nil
}
