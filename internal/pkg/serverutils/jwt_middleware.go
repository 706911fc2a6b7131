package serverutils

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func parseBearerToken(ctx *fiber.Ctx) (jwt.MapClaims, bool) {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return nil, false
	}
	tokenStr := authHeader[7:]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	return claims, true
}

// JwtMiddleware rejects requests without a valid bearer token.
func JwtMiddleware(ctx *fiber.Ctx) error {
	claims, ok := parseBearerToken(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing or invalid token"))
	}
	ctx.Locals("user_id", claims["user_id"])
	return ctx.Next()
}

// OptionalJwtMiddleware attaches the identity when a valid token is present
// and lets guests through. The streaming and image endpoints tolerate guests.
func OptionalJwtMiddleware(ctx *fiber.Ctx) error {
	if claims, ok := parseBearerToken(ctx); ok {
		ctx.Locals("user_id", claims["user_id"])
	}
	return ctx.Next()
}

// UserIdFromCtx returns the authenticated user id, or nil for guests.
func UserIdFromCtx(ctx *fiber.Ctx) *uuid.UUID {
	raw, ok := ctx.Locals("user_id").(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
