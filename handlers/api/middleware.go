package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"nestmail/utils"
)

// RequireAuth validates a bearer token and stores the authenticated
// user id in the request locals. EventSource clients cannot set
// headers, so a "token" query parameter is accepted as a fallback.
func RequireAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return utils.UnauthorizedError("Missing authentication token", nil)
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.UnauthorizedError("Invalid or expired token", err)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.UnauthorizedError("Invalid token claims", nil)
		}

		userID, ok := claims["user_id"].(float64)
		if !ok {
			return utils.UnauthorizedError("Invalid token claims", nil)
		}

		c.Locals("user_id", int64(userID))
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// CurrentUserID returns the authenticated user id set by RequireAuth.
func CurrentUserID(c *fiber.Ctx) (int64, error) {
	userID, ok := c.Locals("user_id").(int64)
	if !ok {
		return 0, utils.UnauthorizedError("User not authenticated", nil)
	}
	return userID, nil
}
