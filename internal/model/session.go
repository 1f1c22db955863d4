package model

import (
	"time"
)

// Session is a server-side session row. The bearer value set in the cookie
// is a signed token; only its hash is stored. Expiry slides forward on every
// successful validation, so sessions die from inactivity, not from use.
type Session struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	TokenHash     string     `db:"token_hash"`
	IPCreatedFrom string     `db:"ip_created_from"`
	UACreatedFrom string     `db:"ua_created_from"`
	CreatedAt     time.Time  `db:"created_at"`
	LastUsedAt    time.Time  `db:"last_used_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
	RevokedAt     *time.Time `db:"revoked_at"`
}

func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}
