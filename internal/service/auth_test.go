package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumalink/lumalink/internal/validation"
)

func TestMagicLinkFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cooldown, err := f.auth.RequestMagicLink(ctx, "Alice@Example.COM", "", testRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if cooldown < 1 {
		t.Errorf("cooldown = %d, want at least 1s", cooldown)
	}

	link := f.emails.lastMagicLink(t)
	result, err := f.auth.ConsumeMagicLink(ctx, link, testRequest())
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	// Email was normalized before the user row was created.
	if result.User.Email != "alice@example.com" {
		t.Errorf("user email = %s, want alice@example.com", result.User.Email)
	}
	if !result.IsNewUser {
		t.Error("first sign-in should report a new user")
	}
	if result.RedirectTo != "/onboarding" {
		t.Errorf("redirect = %s, want /onboarding", result.RedirectTo)
	}

	// The bearer from the result is a live session.
	user, session, _, err := f.sessionSvc.Validate(result.Bearer)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if user == nil || session == nil {
		t.Fatal("freshly established session did not validate")
	}
	if user.ID != result.User.ID {
		t.Errorf("session user = %s, want %s", user.ID, result.User.ID)
	}

	// Second presentation of the same link is rejected as used.
	_, err = f.auth.ConsumeMagicLink(ctx, link, testRequest())
	if !errors.Is(err, ErrMagicLinkUsed) {
		t.Fatalf("second consume = %v, want ErrMagicLinkUsed", err)
	}
}

func TestMagicLinkReissueSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.RequestMagicLink(ctx, "a@x.com", "", testRequest())
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first := f.emails.lastMagicLink(t)

	_, err = f.auth.RequestMagicLink(ctx, "a@x.com", "", testRequest())
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second := f.emails.lastMagicLink(t)

	// The superseded link is dead even though its signature still verifies.
	_, err = f.auth.ConsumeMagicLink(ctx, first, testRequest())
	if !errors.Is(err, ErrMagicLinkInvalid) {
		t.Fatalf("superseded consume = %v, want ErrMagicLinkInvalid", err)
	}

	_, err = f.auth.ConsumeMagicLink(ctx, second, testRequest())
	if err != nil {
		t.Fatalf("current link consume failed: %v", err)
	}
}

func TestMagicLinkExpired(t *testing.T) {
	f := newFixtureTTL(t, -time.Minute, 10*time.Minute)
	ctx := context.Background()

	_, err := f.auth.RequestMagicLink(ctx, "a@x.com", "", testRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	_, err = f.auth.ConsumeMagicLink(ctx, f.emails.lastMagicLink(t), testRequest())
	if !errors.Is(err, ErrMagicLinkExpired) {
		t.Fatalf("expired consume = %v, want ErrMagicLinkExpired", err)
	}
}

func TestMagicLinkGarbageToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.ConsumeMagicLink(context.Background(), "not-a-token", testRequest())
	if !errors.Is(err, ErrMagicLinkInvalid) {
		t.Fatalf("garbage consume = %v, want ErrMagicLinkInvalid", err)
	}
}

func TestMagicLinkRedirectForReturningUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First sign-in and a username claim turn the account into a returning user.
	_, err := f.auth.RequestMagicLink(ctx, "a@x.com", "/settings", testRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	result, err := f.auth.ConsumeMagicLink(ctx, f.emails.lastMagicLink(t), testRequest())
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if result.RedirectTo != "/onboarding" {
		t.Errorf("new user redirect = %s, want /onboarding despite stored path", result.RedirectTo)
	}
	_, err = f.userSvc.ClaimUsername(result.User, "alice")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	_, err = f.auth.RequestMagicLink(ctx, "a@x.com", "/settings", testRequest())
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	result, err = f.auth.ConsumeMagicLink(ctx, f.emails.lastMagicLink(t), testRequest())
	if err != nil {
		t.Fatalf("second consume failed: %v", err)
	}
	if result.IsNewUser {
		t.Error("returning user misreported as new")
	}
	if result.RedirectTo != "/settings" {
		t.Errorf("returning user redirect = %s, want /settings", result.RedirectTo)
	}
}

func TestMagicLinkIssuanceRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < issueEmailLimit; i++ {
		_, err := f.auth.RequestMagicLink(ctx, "a@x.com", "", testRequest())
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}

	_, err := f.auth.RequestMagicLink(ctx, "a@x.com", "", testRequest())
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("over-budget request = %v, want RateLimitError", err)
	}
	if rateErr.RetryAfter < 1 {
		t.Errorf("retry after = %d, want at least 1s", rateErr.RetryAfter)
	}

	// Another email from the same IP still has budget.
	_, err = f.auth.RequestMagicLink(ctx, "b@x.com", "", testRequest())
	if err != nil {
		t.Fatalf("request for different email failed: %v", err)
	}
}

func TestMagicLinkVerifyRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Invalid submissions still charge the origin's verify budget.
	for i := 0; i < verifyIPLimit; i++ {
		_, err := f.auth.ConsumeMagicLink(ctx, "not-a-token", testRequest())
		if !errors.Is(err, ErrMagicLinkInvalid) {
			t.Fatalf("attempt %d = %v, want ErrMagicLinkInvalid", i+1, err)
		}
	}

	_, err := f.auth.ConsumeMagicLink(ctx, "not-a-token", testRequest())
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("over-budget verify = %v, want RateLimitError", err)
	}

	// A different origin still has budget.
	_, err = f.auth.ConsumeMagicLink(ctx, "not-a-token", Request{IP: "198.51.100.9", UserAgent: "test-agent"})
	if !errors.Is(err, ErrMagicLinkInvalid) {
		t.Fatalf("verify from fresh origin = %v, want ErrMagicLinkInvalid", err)
	}
}

func TestRequestMagicLinkRejectsDisposableEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.RequestMagicLink(context.Background(), "throwaway@mailinator.com", "", testRequest())
	if !errors.Is(err, validation.ErrEmailDisposable) {
		t.Fatalf("disposable request = %v, want ErrEmailDisposable", err)
	}
}

func TestOtpFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.RequestOtp(ctx, "a@x.com", testRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := f.emails.lastOtpCode(t)
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}

	// Wrong guesses fail without consuming the code.
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err = f.auth.VerifyOtp(ctx, "a@x.com", wrong, testRequest())
	if !errors.Is(err, ErrOtpInvalidOrExpired) {
		t.Fatalf("wrong guess = %v, want ErrOtpInvalidOrExpired", err)
	}

	result, err := f.auth.VerifyOtp(ctx, "a@x.com", code, testRequest())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.IsNewUser {
		t.Error("first sign-in should report a new user")
	}

	// The code is single-use.
	_, err = f.auth.VerifyOtp(ctx, "a@x.com", code, testRequest())
	if !errors.Is(err, ErrOtpInvalidOrExpired) {
		t.Fatalf("replayed code = %v, want ErrOtpInvalidOrExpired", err)
	}
}

func TestOtpAttemptsExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.RequestOtp(ctx, "a@x.com", testRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := f.emails.lastOtpCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < 5; i++ {
		_, err = f.auth.VerifyOtp(ctx, "a@x.com", wrong, testRequest())
		if !errors.Is(err, ErrOtpInvalidOrExpired) {
			t.Fatalf("wrong guess %d = %v, want ErrOtpInvalidOrExpired", i+1, err)
		}
	}

	// The correct code is dead once the attempt budget is spent.
	_, err = f.auth.VerifyOtp(ctx, "a@x.com", code, testRequest())
	if !errors.Is(err, ErrOtpInvalidOrExpired) {
		t.Fatalf("correct code after exhaustion = %v, want ErrOtpInvalidOrExpired", err)
	}
}

func TestOtpLatestCodeWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.RequestOtp(ctx, "a@x.com", testRequest())
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first := f.emails.lastOtpCode(t)

	// Created-at ordering needs distinct timestamps on SQLite.
	time.Sleep(5 * time.Millisecond)

	_, err = f.auth.RequestOtp(ctx, "a@x.com", testRequest())
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second := f.emails.lastOtpCode(t)

	if first != second {
		_, err = f.auth.VerifyOtp(ctx, "a@x.com", first, testRequest())
		if !errors.Is(err, ErrOtpInvalidOrExpired) {
			t.Fatalf("superseded code = %v, want ErrOtpInvalidOrExpired", err)
		}
	}

	_, err = f.auth.VerifyOtp(ctx, "a@x.com", second, testRequest())
	if err != nil {
		t.Fatalf("latest code verify failed: %v", err)
	}
}

func TestVerifyOtpUnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.VerifyOtp(context.Background(), "nobody@x.com", "123456", testRequest())
	if !errors.Is(err, ErrOtpInvalidOrExpired) {
		t.Fatalf("verify for unknown email = %v, want ErrOtpInvalidOrExpired", err)
	}
}

func TestSanitizeRedirectPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/settings?tab=profile", "/settings?tab=profile"},
		{"", ""},
		{"https://evil.example", ""},
		{"//evil.example", ""},
		{"dashboard", ""},
		{"/x\r\nSet-Cookie: a=b", ""},
	}

	for _, tt := range tests {
		got := sanitizeRedirectPath(tt.in)
		if got != tt.want {
			t.Errorf("sanitizeRedirectPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
