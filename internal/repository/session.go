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
	ErrSessionNotFound = errors.New("session not found")
)

type SessionRepository interface {
	Create(session *model.Session) error
	ByTokenHash(tokenHash string) (*model.Session, error)
	Touch(id string, lastUsedAt, expiresAt time.Time) error
	Rotate(id, tokenHash string) error
	Revoke(id string) error
	RevokeAllForUser(userID string) (int64, error)
	Delete(id string) error
	ActiveByUser(userID string) ([]model.Session, error)
	DeleteDead(cutoff time.Time) (int64, error)
}

type sessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(session *model.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = session.CreatedAt
	}

	query := `
		INSERT INTO sessions (id, user_id, token_hash, ip_created_from, ua_created_from, created_at, last_used_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
	`
	_, err := r.db.Exec(query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.IPCreatedFrom,
		session.UACreatedFrom,
		session.CreatedAt,
		session.LastUsedAt,
		session.ExpiresAt,
	)
	return err
}

func (r *sessionRepository) ByTokenHash(tokenHash string) (*model.Session, error) {
	var s model.Session
	query := `SELECT * FROM sessions WHERE token_hash = $1`

	err := r.db.Get(&s, query, tokenHash)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// Touch slides the expiry window and stamps last use. Every successful
// validation is a renewal; sessions only die from inactivity.
func (r *sessionRepository) Touch(id string, lastUsedAt, expiresAt time.Time) error {
	query := `UPDATE sessions SET last_used_at = $1, expires_at = $2 WHERE id = $3 AND revoked_at IS NULL`

	result, err := r.db.Exec(query, lastUsedAt, expiresAt, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// Rotate swaps the stored hash for a freshly minted bearer. The superseded
// bearer stops resolving as soon as the swap lands.
func (r *sessionRepository) Rotate(id, tokenHash string) error {
	query := `UPDATE sessions SET token_hash = $1 WHERE id = $2 AND revoked_at IS NULL`

	result, err := r.db.Exec(query, tokenHash, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *sessionRepository) Revoke(id string) error {
	query := `UPDATE sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`

	_, err := r.db.Exec(query, time.Now(), id)
	return err
}

func (r *sessionRepository) RevokeAllForUser(userID string) (int64, error) {
	query := `UPDATE sessions SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`

	result, err := r.db.Exec(query, time.Now(), userID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *sessionRepository) Delete(id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	_, err := r.db.Exec(query, id)
	return err
}

func (r *sessionRepository) ActiveByUser(userID string) ([]model.Session, error) {
	var sessions []model.Session
	query := `
		SELECT * FROM sessions
		WHERE user_id = $1
		AND revoked_at IS NULL
		AND expires_at > $2
		ORDER BY last_used_at DESC
	`

	err := r.db.Select(&sessions, query, userID, time.Now())
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// DeleteDead removes expired and revoked rows past the retention cutoff.
// Revocation itself is a soft delete so the audit trail survives until the
// periodic sweep.
func (r *sessionRepository) DeleteDead(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE (revoked_at IS NOT NULL AND revoked_at < $1)
		   OR (expires_at < $1)
	`
	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
