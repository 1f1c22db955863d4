package validation

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailRequired   = errors.New("email address is required")
	ErrEmailTooLong    = errors.New("email address is too long (max 254 characters)")
	ErrEmailInvalid    = errors.New("invalid email address format")
	ErrEmailDisposable = errors.New("disposable email addresses are not allowed")
)

// disposableDomains is a static denylist of throwaway email providers.
// Requests from these domains are rejected before any credential is minted.
var disposableDomains = map[string]bool{
	"10minutemail.com":  true,
	"discard.email":     true,
	"dispostable.com":   true,
	"fakeinbox.com":     true,
	"getnada.com":       true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"maildrop.cc":       true,
	"sharklasers.com":   true,
	"spamgourmet.com":   true,
	"temp-mail.org":     true,
	"tempmail.com":      true,
	"throwawaymail.com": true,
	"trashmail.com":     true,
	"yopmail.com":       true,
}

// ValidateEmail validates email format and length
// Uses Go's built-in net/mail parser which follows RFC 5322
func ValidateEmail(email string) error {
	// Check length (RFC 5321: local part max 64, domain max 255, total max 254 with @)
	if len(email) > 254 {
		return ErrEmailTooLong
	}

	if email == "" {
		return ErrEmailRequired
	}

	// Parse using Go's RFC 5322 compliant parser
	_, err := mail.ParseAddress(email)
	if err != nil {
		return ErrEmailInvalid
	}

	if IsDisposableEmail(email) {
		return ErrEmailDisposable
	}

	return nil
}

// IsDisposableEmail reports whether the email's domain is on the
// throwaway-provider denylist.
func IsDisposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	return disposableDomains[domain]
}

// NormalizeEmail case-folds and trims an email so it can serve as the
// stable user identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
