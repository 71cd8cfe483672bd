// Package middleware provides authentication, logging, tracing, metrics, and rate limiting for the API.
package middleware

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDLocal is the fiber locals key holding the authenticated user id.
const UserIDLocal = "userID"

// AuthRequired returns a middleware that enforces a valid bearer token and stores the
// subject user id in c.Locals("userID").
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header required")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthorized(c, "Invalid authorization header format")
		}

		userID, err := ParseToken(secret, parts[1])
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(UserIDLocal, userID)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
		"code":  "UNAUTHORIZED",
	})
}

// GenerateToken issues an HS256 token whose subject is the user id.
func GenerateToken(secret string, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns its subject as a user id.
func ParseToken(secret, tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("invalid token structure - missing subject")
	}

	userIDVal, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userIDVal == 0 {
		return 0, errors.New("invalid user ID in token")
	}
	return uint(userIDVal), nil
}

// UserID returns the authenticated user id set by AuthRequired.
func UserID(c *fiber.Ctx) uint {
	if uid, ok := c.Locals(UserIDLocal).(uint); ok {
		return uid
	}
	return 0
}
