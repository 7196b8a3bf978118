package serverutils

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalUserID is the fiber Locals key holding the caller's identity.
const LocalUserID = "user_id"

// ParseToken verifies an HS256 token and returns its subject, taken from the
// "user_id" claim or, failing that, "sub".
func ParseToken(secret, tokenStr string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret not configured")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token has no subject")
}

// NewJwtMiddleware protects a route group with Bearer tokens signed by secret.
func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		userID, err := ParseToken(secret, authHeader[len("Bearer "):])
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		ctx.Locals(LocalUserID, userID)
		return ctx.Next()
	}
}

// UserID reads the identity set by the JWT middleware.
func UserID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(LocalUserID).(string)
	return id
}
