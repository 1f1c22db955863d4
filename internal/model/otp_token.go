package model

import (
	"time"
)

// MaxOtpAttempts bounds brute force per issued code. A token at the cap is
// invalid regardless of code correctness.
const MaxOtpAttempts = 5

// OtpToken stores the hash of a 6-digit emailed code. Codes are inserted
// fresh per request; only the most recent unconsumed, unexpired row per
// email is considered live.
type OtpToken struct {
	ID            string     `db:"id"`
	Email         string     `db:"email"`
	CodeHash      string     `db:"code_hash"`
	Attempts      int        `db:"attempts"`
	IPCreatedFrom string     `db:"ip_created_from"`
	UACreatedFrom string     `db:"ua_created_from"`
	CreatedAt     time.Time  `db:"created_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
	ConsumedAt    *time.Time `db:"consumed_at"`
}

func (t *OtpToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *OtpToken) AttemptsExhausted() bool {
	return t.Attempts >= MaxOtpAttempts
}
