package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumalink/lumalink/internal/repository"
)

// CleanupService is the periodic sweep that purges dead credential and
// session rows. Revocation and consumption are soft deletes; rows stay
// readable for the retention period so support can audit recent activity,
// then the sweep removes them.
type CleanupService struct {
	magicLinkRepository repository.MagicLinkRepository
	otpRepository       repository.OtpRepository
	sessionRepository   repository.SessionRepository
	retention           time.Duration
}

func NewCleanupService(
	magicLinkRepository repository.MagicLinkRepository,
	otpRepository repository.OtpRepository,
	sessionRepository repository.SessionRepository,
	retention time.Duration,
) *CleanupService {
	return &CleanupService{
		magicLinkRepository: magicLinkRepository,
		otpRepository:       otpRepository,
		sessionRepository:   sessionRepository,
		retention:           retention,
	}
}

// SweepOnce runs one purge pass and logs what it removed.
func (s *CleanupService) SweepOnce() {
	cutoff := time.Now().Add(-s.retention)

	magicLinks, err := s.magicLinkRepository.DeleteDead(cutoff)
	if err != nil {
		slog.Error("failed to sweep magic link tokens", "error", err)
	}

	otps, err := s.otpRepository.DeleteDead(cutoff)
	if err != nil {
		slog.Error("failed to sweep otp tokens", "error", err)
	}

	sessions, err := s.sessionRepository.DeleteDead(cutoff)
	if err != nil {
		slog.Error("failed to sweep sessions", "error", err)
	}

	if magicLinks+otps+sessions > 0 {
		slog.Info("cleanup sweep completed",
			"magic_link_tokens", magicLinks,
			"otp_tokens", otps,
			"sessions", sessions,
		)
	}
}

// Run sweeps on the given interval until the context is cancelled.
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}
