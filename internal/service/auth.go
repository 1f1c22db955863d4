package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumalink/lumalink/internal/model"
	"github.com/lumalink/lumalink/internal/ratelimit"
	"github.com/lumalink/lumalink/internal/repository"
	"github.com/lumalink/lumalink/internal/token"
	"github.com/lumalink/lumalink/internal/validation"
)

var (
	ErrMagicLinkExpired    = errors.New("magic link has expired")
	ErrMagicLinkUsed       = errors.New("magic link has already been used")
	ErrMagicLinkInvalid    = errors.New("magic link is invalid")
	ErrOtpInvalidOrExpired = errors.New("code is invalid or expired")
)

// RateLimitError carries the cooldown for the budget that tripped, so the
// caller can advertise when to retry without revealing which budget it was.
type RateLimitError struct {
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", e.RetryAfter)
}

// Issuance and verification budgets. Independent fixed windows per email
// identity and per network origin.
const (
	issueWindow     = 15 * time.Minute
	issueEmailLimit = 3
	issueIPLimit    = 10

	verifyWindow     = 15 * time.Minute
	verifyEmailLimit = 10
	verifyIPLimit    = 30
)

// Request carries per-request provenance captured at the transport edge.
type Request struct {
	IP        string
	UserAgent string
}

// AuthResult is the outcome of a successful credential consumption.
type AuthResult struct {
	User       *model.User
	Session    *model.Session
	Bearer     string
	IsNewUser  bool
	RedirectTo string
}

// AuthService implements the credential issuance and consumption flows for
// both magic links and OTP codes. All state lives in the store and the
// rate-limit cache; the service itself is stateless between calls.
type AuthService struct {
	userRepository      repository.UserRepository
	magicLinkRepository repository.MagicLinkRepository
	otpRepository       repository.OtpRepository
	sessionService      *SessionService
	emailService        EmailSender
	limiter             *ratelimit.Limiter
	codec               *token.Codec
	magicLinkTTL        time.Duration
	otpTTL              time.Duration
}

func NewAuthService(
	userRepository repository.UserRepository,
	magicLinkRepository repository.MagicLinkRepository,
	otpRepository repository.OtpRepository,
	sessionService *SessionService,
	emailService EmailSender,
	limiter *ratelimit.Limiter,
	codec *token.Codec,
	magicLinkTTL time.Duration,
	otpTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepository:      userRepository,
		magicLinkRepository: magicLinkRepository,
		otpRepository:       otpRepository,
		sessionService:      sessionService,
		emailService:        emailService,
		limiter:             limiter,
		codec:               codec,
		magicLinkTTL:        magicLinkTTL,
		otpTTL:              otpTTL,
	}
}

// RequestMagicLink mints and emails a magic link. A new request supersedes
// any prior unused link for the same email. The returned cooldown is the
// seconds the caller should wait before asking again. The response never
// reveals whether the email is registered or whether delivery succeeded.
func (s *AuthService) RequestMagicLink(ctx context.Context, email, redirectPath string, req Request) (int, error) {
	email = validation.NormalizeEmail(email)

	err := validation.ValidateEmail(email)
	if err != nil {
		return 0, err
	}

	cooldown, err := s.checkIssuanceLimits(ctx, "magic_link", email, req.IP)
	if err != nil {
		return 0, err
	}

	user, err := s.resolveOrCreateUser(email)
	if err != nil {
		return 0, err
	}

	tokenID := uuid.New().String()
	plaintext, err := s.codec.MintMagicLinkToken(email, tokenID, s.magicLinkTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to mint magic link token: %w", err)
	}

	var redirect *string
	if path := sanitizeRedirectPath(redirectPath); path != "" {
		redirect = &path
	}

	now := time.Now()
	err = s.magicLinkRepository.Upsert(&model.MagicLinkToken{
		ID:            tokenID,
		Email:         email,
		TokenHash:     token.HashForStorage(plaintext),
		RedirectPath:  redirect,
		IPCreatedFrom: req.IP,
		UACreatedFrom: req.UserAgent,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.magicLinkTTL),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist magic link token: %w", err)
	}

	// Delivery failures are logged, never surfaced: the caller always gets
	// the generic success so the endpoint cannot be used for enumeration.
	err = s.emailService.SendMagicLinkEmail(email, plaintext)
	if err != nil {
		slog.Error("failed to send magic link email", "error", err, "email", email)
	}

	slog.Info("magic link issued", "email", email, "user_id", user.ID)
	return cooldown, nil
}

// ConsumeMagicLink verifies a presented magic link exactly once and
// establishes a session. Of any number of concurrent attempts with the same
// link, at most one succeeds; the rest see "already used". The endpoint is
// budgeted per network origin only: the email identity is inside the token,
// so an invalid submission has no identity to charge.
func (s *AuthService) ConsumeMagicLink(ctx context.Context, plaintext string, req Request) (*AuthResult, error) {
	res, err := s.limiter.Allow(ctx, ratelimit.Key("magic_link_verify", "ip", req.IP), verifyIPLimit, verifyWindow)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	claims, err := s.codec.VerifySignedToken(plaintext)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrMagicLinkExpired
		}
		return nil, ErrMagicLinkInvalid
	}
	if claims["type"] != token.TypeMagicLink {
		return nil, ErrMagicLinkInvalid
	}

	hash := token.HashForStorage(plaintext)

	tok, err := s.magicLinkRepository.Consume(hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, s.classifyFailedConsume(hash)
		}
		return nil, fmt.Errorf("failed to consume magic link: %w", err)
	}

	// The signature check and the consume predicate both enforce expiry;
	// this guards against clock skew between the two.
	if time.Now().After(tok.ExpiresAt) {
		return nil, ErrMagicLinkExpired
	}

	result, err := s.establishSession(tok.Email, req)
	if err != nil {
		return nil, err
	}
	if tok.RedirectPath != nil && !result.IsNewUser {
		result.RedirectTo = *tok.RedirectPath
	}

	slog.Info("magic link consumed", "email", tok.Email, "user_id", result.User.ID, "new_user", result.IsNewUser)
	return result, nil
}

// classifyFailedConsume tells "already used" apart from "expired" and
// "never existed" after the atomic gate rejected the token. Wrong tokens and
// unknown tokens are deliberately indistinguishable.
func (s *AuthService) classifyFailedConsume(hash string) error {
	tok, err := s.magicLinkRepository.ByTokenHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrMagicLinkInvalid
		}
		return fmt.Errorf("failed to classify magic link: %w", err)
	}
	if tok.IsUsed() {
		return ErrMagicLinkUsed
	}
	if tok.IsExpired() {
		return ErrMagicLinkExpired
	}
	return ErrMagicLinkInvalid
}

// RequestOtp mints and emails a fresh 6-digit code. Prior codes become
// non-latest and therefore dead, without requiring deletion.
func (s *AuthService) RequestOtp(ctx context.Context, email string, req Request) (int, error) {
	email = validation.NormalizeEmail(email)

	err := validation.ValidateEmail(email)
	if err != nil {
		return 0, err
	}

	cooldown, err := s.checkIssuanceLimits(ctx, "otp", email, req.IP)
	if err != nil {
		return 0, err
	}

	user, err := s.resolveOrCreateUser(email)
	if err != nil {
		return 0, err
	}

	code, err := token.GenerateNumericCode(6)
	if err != nil {
		return 0, fmt.Errorf("failed to generate code: %w", err)
	}

	now := time.Now()
	err = s.otpRepository.Create(&model.OtpToken{
		Email:         email,
		CodeHash:      token.HashForStorage(code),
		IPCreatedFrom: req.IP,
		UACreatedFrom: req.UserAgent,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.otpTTL),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist otp token: %w", err)
	}

	err = s.emailService.SendOtpEmail(email, code)
	if err != nil {
		slog.Error("failed to send otp email", "error", err, "email", email)
	}

	slog.Info("otp issued", "email", email, "user_id", user.ID)
	return cooldown, nil
}

// VerifyOtp checks a submitted code against the most recent live token for
// the email. Wrong guesses increment the attempt counter before the failure
// is returned, so total guesses per issued code stay bounded even under
// concurrent submissions. All failure modes collapse into one error to
// avoid an attempt-cap oracle.
func (s *AuthService) VerifyOtp(ctx context.Context, email, code string, req Request) (*AuthResult, error) {
	email = validation.NormalizeEmail(email)

	res, err := s.limiter.Allow(ctx, ratelimit.Key("otp_verify", "email", email), verifyEmailLimit, verifyWindow)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}
	res, err = s.limiter.Allow(ctx, ratelimit.Key("otp_verify", "ip", req.IP), verifyIPLimit, verifyWindow)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	tok, err := s.otpRepository.LatestLiveByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrOtpNotFound) {
			return nil, ErrOtpInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to look up otp token: %w", err)
	}

	if tok.AttemptsExhausted() {
		return nil, ErrOtpInvalidOrExpired
	}

	submitted := token.HashForStorage(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(tok.CodeHash)) != 1 {
		_, incErr := s.otpRepository.IncrementAttempts(tok.ID)
		if incErr != nil {
			return nil, fmt.Errorf("failed to record otp attempt: %w", incErr)
		}
		return nil, ErrOtpInvalidOrExpired
	}

	err = s.otpRepository.Consume(tok.ID)
	if err != nil {
		if errors.Is(err, repository.ErrOtpNotFound) {
			// Lost a race with a concurrent correct submission.
			return nil, ErrOtpInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to consume otp token: %w", err)
	}

	result, err := s.establishSession(email, req)
	if err != nil {
		return nil, err
	}

	slog.Info("otp consumed", "email", email, "user_id", result.User.ID, "new_user", result.IsNewUser)
	return result, nil
}

// checkIssuanceLimits consults the independent email and IP budgets. On
// success it returns the email budget's window cooldown so the UI can show
// when a resend becomes available.
func (s *AuthService) checkIssuanceLimits(ctx context.Context, scope, email, ip string) (int, error) {
	emailRes, err := s.limiter.Allow(ctx, ratelimit.Key(scope, "email", email), issueEmailLimit, issueWindow)
	if err != nil {
		return 0, err
	}
	if !emailRes.Allowed {
		slog.Warn("issuance rate limit exceeded", "scope", scope, "kind", "email")
		return 0, &RateLimitError{RetryAfter: emailRes.RetryAfter}
	}

	ipRes, err := s.limiter.Allow(ctx, ratelimit.Key(scope, "ip", ip), issueIPLimit, issueWindow)
	if err != nil {
		return 0, err
	}
	if !ipRes.Allowed {
		slog.Warn("issuance rate limit exceeded", "scope", scope, "kind", "ip", "ip", ip)
		return 0, &RateLimitError{RetryAfter: ipRes.RetryAfter}
	}

	return emailRes.RetryAfter, nil
}

// resolveOrCreateUser lazily creates the user row for an unseen email.
// Races on first sight resolve via the unique email constraint, then fall
// back to the winner's row.
func (s *AuthService) resolveOrCreateUser(email string) (*model.User, error) {
	user, err := s.userRepository.ByEmail(email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	now := time.Now()
	user = &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.userRepository.Create(user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return s.userRepository.ByEmail(email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created", "email", email, "user_id", user.ID)
	return user, nil
}

// establishSession resolves the user, stamps the login and mints a session.
// First-time users (no username yet) are routed to onboarding.
func (s *AuthService) establishSession(email string, req Request) (*AuthResult, error) {
	user, err := s.resolveOrCreateUser(email)
	if err != nil {
		return nil, err
	}

	err = s.userRepository.RecordLogin(user.ID, time.Now())
	if err != nil {
		slog.Warn("failed to record login", "error", err, "user_id", user.ID)
	}

	session, bearer, err := s.sessionService.Create(user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	isNewUser := !user.HasUsername()
	redirectTo := "/dashboard"
	if isNewUser {
		redirectTo = "/onboarding"
	}

	return &AuthResult{
		User:       user,
		Session:    session,
		Bearer:     bearer,
		IsNewUser:  isNewUser,
		RedirectTo: redirectTo,
	}, nil
}

// sanitizeRedirectPath keeps only same-origin relative paths. Anything with
// a scheme, host or protocol-relative prefix is dropped.
func sanitizeRedirectPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return ""
	}
	if strings.ContainsAny(path, "\r\n") {
		return ""
	}
	return path
}
