package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)

	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing bearer token")
	}

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Auth.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if sub, _ := claims.GetSubject(); sub != "" {
			c.Locals("subject", sub)
		}
	}

	return c.Next()
}
