// Package validation holds input rules shared by the API and tooling.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores anything longer
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9._-]{3,32}$`)

var reservedUsernames = map[string]struct{}{
	"admin":         {},
	"api":           {},
	"auth":          {},
	"connections":   {},
	"conversations": {},
	"health":        {},
	"login":         {},
	"me":            {},
	"messages":      {},
	"metrics":       {},
	"root":          {},
	"support":       {},
	"swagger":       {},
	"system":        {},
	"users":         {},
}

// NormalizeUsername lowercases and trims a username the way it is stored.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername checks an already-normalized username for format and reserved names.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-32 characters of lowercase letters, numbers, dots, underscores or hyphens")
	}
	if strings.ContainsAny(username[:1], "._-") || strings.ContainsAny(username[len(username)-1:], "._-") {
		return fmt.Errorf("username must start and end with a letter or number")
	}
	if _, exists := reservedUsernames[username]; exists {
		return fmt.Errorf("username is reserved")
	}
	return nil
}

// ValidatePassword enforces the length bounds bcrypt can honor.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLen)
	}
	return nil
}
