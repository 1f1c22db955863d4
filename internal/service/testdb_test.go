package service

import (
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lumalink/lumalink/internal/db"
	"github.com/lumalink/lumalink/internal/ratelimit"
	"github.com/lumalink/lumalink/internal/repository"
	"github.com/lumalink/lumalink/internal/token"
)

// fakeEmailSender captures the plaintext credentials the flows hand to the
// mailer, so tests can present them back the way a user would.
type fakeEmailSender struct {
	mu         sync.Mutex
	magicLinks []string
	otpCodes   []string
	welcomed   []string
}

func (f *fakeEmailSender) SendMagicLinkEmail(_, plaintextToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.magicLinks = append(f.magicLinks, plaintextToken)
	return nil
}

func (f *fakeEmailSender) SendOtpEmail(_, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otpCodes = append(f.otpCodes, code)
	return nil
}

func (f *fakeEmailSender) SendWelcomeEmail(_, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomed = append(f.welcomed, username)
	return nil
}

func (f *fakeEmailSender) lastMagicLink(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.magicLinks) == 0 {
		t.Fatal("no magic link email was sent")
	}
	return f.magicLinks[len(f.magicLinks)-1]
}

func (f *fakeEmailSender) lastOtpCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.otpCodes) == 0 {
		t.Fatal("no otp email was sent")
	}
	return f.otpCodes[len(f.otpCodes)-1]
}

// fixture wires the full service stack against an in-memory database and an
// in-process rate-limit counter.
type fixture struct {
	database   *sqlx.DB
	users      repository.UserRepository
	magicLinks repository.MagicLinkRepository
	otps       repository.OtpRepository
	sessions   repository.SessionRepository
	emails     *fakeEmailSender
	codec      *token.Codec
	sessionSvc *SessionService
	auth       *AuthService
	userSvc    *UserService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureTTL(t, 15*time.Minute, 10*time.Minute)
}

func newFixtureTTL(t *testing.T, magicLinkTTL, otpTTL time.Duration) *fixture {
	t.Helper()

	database, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	database.SetMaxOpenConns(1)

	err = db.RunMigrations(database.DB, "sqlite")
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	users := repository.NewUserRepository(database)
	magicLinks := repository.NewMagicLinkRepository(database)
	otps := repository.NewOtpRepository(database)
	sessions := repository.NewSessionRepository(database)

	emails := &fakeEmailSender{}
	codec := token.NewCodec("test-secret")
	sessionSvc := NewSessionService(sessions, users, codec, time.Hour, false)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter())

	return &fixture{
		database:   database,
		users:      users,
		magicLinks: magicLinks,
		otps:       otps,
		sessions:   sessions,
		emails:     emails,
		codec:      codec,
		sessionSvc: sessionSvc,
		auth:       NewAuthService(users, magicLinks, otps, sessionSvc, emails, limiter, codec, magicLinkTTL, otpTTL),
		userSvc:    NewUserService(users, emails, "https://luma.link"),
	}
}

func testRequest() Request {
	return Request{IP: "203.0.113.7", UserAgent: "test-agent"}
}
