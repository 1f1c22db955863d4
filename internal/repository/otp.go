package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumalink/lumalink/internal/model"
)

var (
	ErrOtpNotFound = errors.New("otp token not found")
)

type OtpRepository interface {
	Create(token *model.OtpToken) error
	LatestLiveByEmail(email string) (*model.OtpToken, error)
	IncrementAttempts(id string) (int, error)
	Consume(id string) error
	DeleteDead(cutoff time.Time) (int64, error)
}

type otpRepository struct {
	db *sqlx.DB
}

func NewOtpRepository(db *sqlx.DB) OtpRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) Create(token *model.OtpToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO otp_tokens (id, email, code_hash, attempts, ip_created_from, ua_created_from, created_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, NULL)
	`
	_, err := r.db.Exec(query,
		token.ID,
		token.Email,
		token.CodeHash,
		token.IPCreatedFrom,
		token.UACreatedFrom,
		token.CreatedAt,
		token.ExpiresAt,
	)
	return err
}

// LatestLiveByEmail returns the single most recent unconsumed, unexpired
// token for the email. Older codes become non-latest and therefore dead
// without requiring deletion.
func (r *otpRepository) LatestLiveByEmail(email string) (*model.OtpToken, error) {
	var t model.OtpToken
	query := `
		SELECT * FROM otp_tokens
		WHERE email = $1
		AND consumed_at IS NULL
		AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.Get(&t, query, email, time.Now())
	if err == sql.ErrNoRows {
		return nil, ErrOtpNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// IncrementAttempts bumps the counter atomically and returns the new value,
// so concurrent wrong guesses each land a distinct increment and total
// guesses per issued code stay bounded regardless of parallelism.
func (r *otpRepository) IncrementAttempts(id string) (int, error) {
	var attempts int
	query := `
		UPDATE otp_tokens
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`

	err := r.db.Get(&attempts, query, id)
	if err == sql.ErrNoRows {
		return 0, ErrOtpNotFound
	}
	if err != nil {
		return 0, err
	}

	return attempts, nil
}

// Consume marks the token used. The consumed_at IS NULL predicate is the
// single-use gate under concurrent correct submissions.
func (r *otpRepository) Consume(id string) error {
	query := `
		UPDATE otp_tokens
		SET consumed_at = $1
		WHERE id = $2
		AND consumed_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOtpNotFound
	}

	return nil
}

func (r *otpRepository) DeleteDead(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM otp_tokens
		WHERE (consumed_at IS NOT NULL AND consumed_at < $1)
		   OR (expires_at < $1)
	`
	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
