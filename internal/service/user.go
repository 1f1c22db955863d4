package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumalink/lumalink/internal/model"
	"github.com/lumalink/lumalink/internal/repository"
	"github.com/lumalink/lumalink/internal/validation"
)

var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrUsernameAlreadySet = errors.New("username is already set and cannot be changed")
)

// ClaimResult carries the canonical URLs for a freshly claimed page.
type ClaimResult struct {
	Username   string
	ProfileURL string
}

type UserService struct {
	userRepository repository.UserRepository
	emailService   EmailSender
	appURL         string
}

func NewUserService(userRepository repository.UserRepository, emailService EmailSender, appURL string) *UserService {
	return &UserService{
		userRepository: userRepository,
		emailService:   emailService,
		appURL:         appURL,
	}
}

func (s *UserService) ByID(id string) (*model.User, error) {
	return s.userRepository.ByID(id)
}

// ClaimUsername claims a username exactly once. Concurrent claims for the
// same name are settled by the store's unique constraint, not by a
// check-then-set: exactly one claimant wins, the rest get ErrUsernameTaken.
func (s *UserService) ClaimUsername(user *model.User, username string) (*ClaimResult, error) {
	username = validation.NormalizeUsername(username)

	err := validation.ValidateUsername(username)
	if err != nil {
		return nil, err
	}

	if user.HasUsername() {
		return nil, ErrUsernameAlreadySet
	}

	err = s.userRepository.ClaimUsername(user.ID, username)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrUsernameAlreadySet):
			return nil, ErrUsernameAlreadySet
		default:
			return nil, fmt.Errorf("failed to claim username: %w", err)
		}
	}

	// The page is live now; the welcome email is best effort.
	err = s.emailService.SendWelcomeEmail(user.Email, username)
	if err != nil {
		slog.Warn("failed to send welcome email", "error", err, "email", user.Email)
	}

	slog.Info("username claimed", "user_id", user.ID, "username", username)
	return &ClaimResult{
		Username:   username,
		ProfileURL: fmt.Sprintf("%s/%s", s.appURL, username),
	}, nil
}
