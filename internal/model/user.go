package model

import (
	"time"
)

type User struct {
	ID          string     `db:"id"`
	Email       string     `db:"email"`
	Username    *string    `db:"username"` // Nullable until claimed during onboarding
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	LastLoginAt *time.Time `db:"last_login_at"`
}

// HasUsername reports whether the user has claimed a username.
// Users without one are still in onboarding.
func (u *User) HasUsername() bool {
	return u.Username != nil && *u.Username != ""
}
