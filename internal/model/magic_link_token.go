package model

import (
	"time"
)

// MagicLinkToken is the persisted half of a magic link. The plaintext token
// is emailed to the user; only its one-way hash is stored.
type MagicLinkToken struct {
	ID            string     `db:"id"`
	Email         string     `db:"email"`
	TokenHash     string     `db:"token_hash"`
	RedirectPath  *string    `db:"redirect_path"`
	IPCreatedFrom string     `db:"ip_created_from"`
	UACreatedFrom string     `db:"ua_created_from"`
	CreatedAt     time.Time  `db:"created_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
	UsedAt        *time.Time `db:"used_at"`
}

func (t *MagicLinkToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *MagicLinkToken) IsUsed() bool {
	return t.UsedAt != nil
}
