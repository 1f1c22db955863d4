package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lumalink/lumalink/internal/model"
	"github.com/lumalink/lumalink/internal/repository"
	"github.com/lumalink/lumalink/internal/token"
)

// SessionCookieName is the cookie carrying the signed session bearer.
const SessionCookieName = "session_token"

// SessionService owns the session lifecycle: create, validate-and-slide,
// revoke. Validation failures are reported as nil results, never as errors;
// errors mean the store itself failed.
type SessionService struct {
	sessionRepository repository.SessionRepository
	userRepository    repository.UserRepository
	codec             *token.Codec
	sessionTTL        time.Duration
	isProduction      bool
}

func NewSessionService(
	sessionRepository repository.SessionRepository,
	userRepository repository.UserRepository,
	codec *token.Codec,
	sessionTTL time.Duration,
	isProduction bool,
) *SessionService {
	return &SessionService{
		sessionRepository: sessionRepository,
		userRepository:    userRepository,
		codec:             codec,
		sessionTTL:        sessionTTL,
		isProduction:      isProduction,
	}
}

// Create mints a signed bearer, persists its hash and returns both. The
// plaintext bearer exists only in the response cookie; the store cannot
// yield a usable credential.
func (s *SessionService) Create(user *model.User, ip, userAgent string) (*model.Session, string, error) {
	bearer, err := s.codec.MintSessionToken(user.ID, user.Email, user.Username, s.sessionTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint session token: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		UserID:        user.ID,
		TokenHash:     token.HashForStorage(bearer),
		IPCreatedFrom: ip,
		UACreatedFrom: userAgent,
		CreatedAt:     now,
		LastUsedAt:    now,
		ExpiresAt:     now.Add(s.sessionTTL),
	}

	err = s.sessionRepository.Create(session)
	if err != nil {
		return nil, "", fmt.Errorf("failed to persist session: %w", err)
	}

	slog.Info("session created", "user_id", user.ID, "session_id", session.ID)
	return session, bearer, nil
}

// Validate checks a presented bearer and slides the expiry window. Returns
// nils for anything that is not a live session: bad signature, unknown
// hash, expired or revoked rows. Expired rows are opportunistically
// deleted. On success the returned string is the cookie value to re-issue;
// it is a freshly minted bearer once the presented one has passed the
// half-life of its embedded expiry, so a regularly used session is never
// cut short by the signed value it started with. Only infrastructure
// failures surface as errors.
func (s *SessionService) Validate(bearer string) (*model.User, *model.Session, string, error) {
	claims, err := s.codec.VerifySignedToken(bearer)
	if err != nil {
		return nil, nil, "", nil
	}

	session, err := s.sessionRepository.ByTokenHash(token.HashForStorage(bearer))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, "", nil
		}
		return nil, nil, "", fmt.Errorf("failed to look up session: %w", err)
	}

	if session.IsRevoked() {
		return nil, nil, "", nil
	}
	if session.IsExpired() {
		// Dead row, clean it up while we're here. Best effort.
		delErr := s.sessionRepository.Delete(session.ID)
		if delErr != nil {
			slog.Warn("failed to delete expired session", "error", delErr, "session_id", session.ID)
		}
		return nil, nil, "", nil
	}

	now := time.Now()
	session.LastUsedAt = now
	session.ExpiresAt = now.Add(s.sessionTTL)
	err = s.sessionRepository.Touch(session.ID, session.LastUsedAt, session.ExpiresAt)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// Revoked between lookup and touch.
			return nil, nil, "", nil
		}
		return nil, nil, "", fmt.Errorf("failed to renew session: %w", err)
	}

	user, err := s.userRepository.ByID(session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, "", nil
		}
		return nil, nil, "", fmt.Errorf("failed to load session user: %w", err)
	}

	if bearerPastHalfLife(claims, now) {
		fresh, err := s.codec.MintSessionToken(user.ID, user.Email, user.Username, s.sessionTTL)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to mint session token: %w", err)
		}
		err = s.sessionRepository.Rotate(session.ID, token.HashForStorage(fresh))
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return nil, nil, "", nil
			}
			return nil, nil, "", fmt.Errorf("failed to rotate session token: %w", err)
		}
		session.TokenHash = token.HashForStorage(fresh)
		bearer = fresh
		slog.Info("session bearer rotated", "session_id", session.ID)
	}

	return user, session, bearer, nil
}

// bearerPastHalfLife reports whether the signed value has spent half of its
// own lifetime. Rotating at the half-life rather than near expiry leaves
// the previous bearer working for concurrent in-flight requests.
func bearerPastHalfLife(claims jwt.MapClaims, now time.Time) bool {
	exp, okExp := claims["exp"].(float64)
	iat, okIat := claims["iat"].(float64)
	if !okExp || !okIat {
		return true
	}
	return float64(now.Unix()) >= iat+(exp-iat)/2
}

// Revoke soft-deletes a session for logout. Revoking an already-dead
// session is not an error.
func (s *SessionService) Revoke(sessionID string) error {
	err := s.sessionRepository.Revoke(sessionID)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("session revoked", "session_id", sessionID)
	return nil
}

// RevokeAllForUser soft-deletes every live session, for security actions
// like sign-out-everywhere.
func (s *SessionService) RevokeAllForUser(userID, reason string) (int64, error) {
	count, err := s.sessionRepository.RevokeAllForUser(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.Info("all sessions revoked", "user_id", userID, "count", count, "reason", reason)
	return count, nil
}

// ActiveSessions lists live sessions for the account security page.
func (s *SessionService) ActiveSessions(userID string) ([]model.Session, error) {
	sessions, err := s.sessionRepository.ActiveByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) SetSessionCookie(w http.ResponseWriter, bearer string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    bearer,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *SessionService) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}
