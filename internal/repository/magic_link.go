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
	ErrTokenNotFound = errors.New("token not found")
)

type MagicLinkRepository interface {
	Upsert(token *model.MagicLinkToken) error
	Consume(tokenHash string) (*model.MagicLinkToken, error)
	ByTokenHash(tokenHash string) (*model.MagicLinkToken, error)
	DeleteDead(cutoff time.Time) (int64, error)
}

type magicLinkRepository struct {
	db *sqlx.DB
}

func NewMagicLinkRepository(db *sqlx.DB) MagicLinkRepository {
	return &magicLinkRepository{db: db}
}

// Upsert inserts the token, superseding any prior token for the same email.
// The unique index on email makes "at most one active token per email" a
// store-level guarantee rather than a check-then-act.
func (r *magicLinkRepository) Upsert(token *model.MagicLinkToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO magic_link_tokens (id, email, token_hash, redirect_path, ip_created_from, ua_created_from, created_at, expires_at, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		ON CONFLICT (email) DO UPDATE SET
			id = excluded.id,
			token_hash = excluded.token_hash,
			redirect_path = excluded.redirect_path,
			ip_created_from = excluded.ip_created_from,
			ua_created_from = excluded.ua_created_from,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			used_at = NULL
	`
	_, err := r.db.Exec(query,
		token.ID,
		token.Email,
		token.TokenHash,
		token.RedirectPath,
		token.IPCreatedFrom,
		token.UACreatedFrom,
		token.CreatedAt,
		token.ExpiresAt,
	)
	return err
}

// Consume atomically marks the token as used and returns it. The UPDATE is
// the single-use gate: of any number of concurrent requests presenting the
// same link, exactly one can match the used_at IS NULL predicate.
func (r *magicLinkRepository) Consume(tokenHash string) (*model.MagicLinkToken, error) {
	var t model.MagicLinkToken
	now := time.Now()

	query := `
		UPDATE magic_link_tokens
		SET used_at = $1
		WHERE token_hash = $2
		AND used_at IS NULL
		AND expires_at > $3
		RETURNING *
	`

	err := r.db.Get(&t, query, now, tokenHash, now)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// ByTokenHash reads a token without consuming it. Used after a failed
// Consume to tell "already used" apart from "never existed".
func (r *magicLinkRepository) ByTokenHash(tokenHash string) (*model.MagicLinkToken, error) {
	var t model.MagicLinkToken
	query := `SELECT * FROM magic_link_tokens WHERE token_hash = $1`

	err := r.db.Get(&t, query, tokenHash)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// DeleteDead removes used and long-expired tokens. Rows are kept past
// expiry until the sweep so that consumption can report "already used"
// instead of a generic failure.
func (r *magicLinkRepository) DeleteDead(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM magic_link_tokens
		WHERE (used_at IS NOT NULL AND used_at < $1)
		   OR (expires_at < $1)
	`
	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
