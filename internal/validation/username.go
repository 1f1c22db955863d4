package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameFormat   = errors.New("username must be 3-30 characters: lowercase letters, digits, underscores, may not start or end with an underscore")
	ErrUsernameReserved = errors.New("username is reserved")
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{1,28}[a-z0-9]$`)

// reservedUsernames would collide with routes or impersonate the product.
var reservedUsernames = map[string]bool{
	"about":     true,
	"account":   true,
	"admin":     true,
	"api":       true,
	"app":       true,
	"auth":      true,
	"billing":   true,
	"blog":      true,
	"contact":   true,
	"dashboard": true,
	"docs":      true,
	"help":      true,
	"legal":     true,
	"login":     true,
	"logout":    true,
	"lumalink":  true,
	"me":        true,
	"privacy":   true,
	"root":      true,
	"settings":  true,
	"signup":    true,
	"support":   true,
	"terms":     true,
	"www":       true,
}

// ValidateUsername checks format and the reserved list. Uniqueness is not
// checked here; the store's unique constraint is the source of truth.
func ValidateUsername(username string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameFormat
	}
	if reservedUsernames[username] {
		return ErrUsernameReserved
	}
	return nil
}

// NormalizeUsername lowercases and trims a claim attempt before validation.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
