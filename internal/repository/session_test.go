package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumalink/lumalink/internal/model"
)

func createTestUser(t *testing.T, users UserRepository, email string) *model.User {
	t.Helper()
	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := users.Create(user)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createTestSession(t *testing.T, sessions SessionRepository, userID, hash string, ttl time.Duration) *model.Session {
	t.Helper()
	now := time.Now()
	session := &model.Session{
		UserID:     userID,
		TokenHash:  hash,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	err := sessions.Create(session)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session
}

func newSessionFixture(t *testing.T) (UserRepository, SessionRepository, *sqlx.DB) {
	database := newTestDB(t)
	return NewUserRepository(database), NewSessionRepository(database), database
}

func TestSessionTouchSlidesExpiry(t *testing.T) {
	users, sessions, _ := newSessionFixture(t)
	user := createTestUser(t, users, "a@x.com")
	session := createTestSession(t, sessions, user.ID, "hash-1", time.Hour)

	later := time.Now().Add(2 * time.Hour)
	err := sessions.Touch(session.ID, time.Now(), later)
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	got, err := sessions.ByTokenHash("hash-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !got.ExpiresAt.After(session.ExpiresAt) {
		t.Errorf("expiry did not slide forward: %v -> %v", session.ExpiresAt, got.ExpiresAt)
	}
}

func TestSessionTouchRejectsRevoked(t *testing.T) {
	users, sessions, _ := newSessionFixture(t)
	user := createTestUser(t, users, "a@x.com")
	session := createTestSession(t, sessions, user.ID, "hash-1", time.Hour)

	err := sessions.Revoke(session.ID)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	err = sessions.Touch(session.ID, time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("touch on revoked session = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRotateSwapsHash(t *testing.T) {
	users, sessions, _ := newSessionFixture(t)
	user := createTestUser(t, users, "a@x.com")
	session := createTestSession(t, sessions, user.ID, "hash-old", time.Hour)

	err := sessions.Rotate(session.ID, "hash-new")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	_, err = sessions.ByTokenHash("hash-old")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("superseded hash lookup = %v, want ErrSessionNotFound", err)
	}
	got, err := sessions.ByTokenHash("hash-new")
	if err != nil {
		t.Fatalf("fresh hash lookup failed: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("rotated row id = %s, want %s", got.ID, session.ID)
	}

	// Revoked sessions cannot be rotated back to life.
	err = sessions.Revoke(session.ID)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	err = sessions.Rotate(session.ID, "hash-newer")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("rotate on revoked session = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRevokeAllForUser(t *testing.T) {
	users, sessions, _ := newSessionFixture(t)
	user := createTestUser(t, users, "a@x.com")
	other := createTestUser(t, users, "b@x.com")

	createTestSession(t, sessions, user.ID, "hash-1", time.Hour)
	createTestSession(t, sessions, user.ID, "hash-2", time.Hour)
	createTestSession(t, sessions, other.ID, "hash-3", time.Hour)

	count, err := sessions.RevokeAllForUser(user.ID)
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked = %d, want 2", count)
	}

	active, err := sessions.ActiveByUser(user.ID)
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sessions after revoke all = %d, want 0", len(active))
	}

	otherActive, err := sessions.ActiveByUser(other.ID)
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	if len(otherActive) != 1 {
		t.Errorf("other user's sessions = %d, want 1 untouched", len(otherActive))
	}
}

func TestSessionDeleteDead(t *testing.T) {
	users, sessions, _ := newSessionFixture(t)
	user := createTestUser(t, users, "a@x.com")

	createTestSession(t, sessions, user.ID, "hash-dead", -48*time.Hour)
	createTestSession(t, sessions, user.ID, "hash-live", time.Hour)

	deleted, err := sessions.DeleteDead(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("delete dead failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	_, err = sessions.ByTokenHash("hash-live")
	if err != nil {
		t.Errorf("live session should survive the sweep: %v", err)
	}
}
