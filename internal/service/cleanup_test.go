package service

import (
	"errors"
	"testing"
	"time"

	"github.com/lumalink/lumalink/internal/model"
	"github.com/lumalink/lumalink/internal/repository"
)

func TestCleanupSweepOnce(t *testing.T) {
	f := newFixture(t)
	cleanup := NewCleanupService(f.magicLinks, f.otps, f.sessions, 24*time.Hour)

	old := time.Now().Add(-48 * time.Hour)

	err := f.magicLinks.Upsert(&model.MagicLinkToken{
		Email:     "dead@x.com",
		TokenHash: "hash-dead-link",
		CreatedAt: old,
		ExpiresAt: old.Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	err = f.otps.Create(&model.OtpToken{
		Email:     "dead@x.com",
		CodeHash:  "hash-dead-code",
		CreatedAt: old,
		ExpiresAt: old.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A live token survives the sweep.
	err = f.magicLinks.Upsert(&model.MagicLinkToken{
		Email:     "live@x.com",
		TokenHash: "hash-live-link",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	cleanup.SweepOnce()

	_, err = f.magicLinks.ByTokenHash("hash-dead-link")
	if !errors.Is(err, repository.ErrTokenNotFound) {
		t.Errorf("dead magic link after sweep = %v, want ErrTokenNotFound", err)
	}
	_, err = f.magicLinks.ByTokenHash("hash-live-link")
	if err != nil {
		t.Errorf("live magic link should survive the sweep: %v", err)
	}
	_, err = f.otps.LatestLiveByEmail("dead@x.com")
	if !errors.Is(err, repository.ErrOtpNotFound) {
		t.Errorf("dead otp after sweep = %v, want ErrOtpNotFound", err)
	}
}
