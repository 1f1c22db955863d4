package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lumalink/lumalink/internal/model"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUsernameAlreadySet = errors.New("username already set")
)

type UserRepository interface {
	Create(user *model.User) error
	ByID(id string) (*model.User, error)
	ByEmail(email string) (*model.User, error)
	ClaimUsername(userID, username string) error
	RecordLogin(userID string, at time.Time) error
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *model.User) error {
	query := `INSERT INTO users (id, email, username, created_at, updated_at, last_login_at) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(query, user.ID, user.Email, user.Username, user.CreatedAt, user.UpdatedAt, user.LastLoginAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	return nil
}

func (r *userRepository) ByID(id string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE id = $1`

	err := r.db.Get(user, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) ByEmail(email string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE email = $1`

	err := r.db.Get(user, query, email)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

// ClaimUsername sets the username exactly once. The WHERE clause guards
// against overwriting an already-claimed name, and the unique index resolves
// concurrent claims for the same name: the loser surfaces as ErrUsernameTaken.
func (r *userRepository) ClaimUsername(userID, username string) error {
	query := `UPDATE users SET username = $1, updated_at = $2 WHERE id = $3 AND username IS NULL`

	result, err := r.db.Exec(query, username, time.Now(), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the user is gone or the username is already set.
		_, err = r.ByID(userID)
		if err != nil {
			return err
		}
		return ErrUsernameAlreadySet
	}

	return nil
}

func (r *userRepository) RecordLogin(userID string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`

	_, err := r.db.Exec(query, at, userID)
	return err
}

// isUniqueViolation detects unique constraint errors for both SQLite and
// PostgreSQL without driver-specific error types.
func isUniqueViolation(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}
