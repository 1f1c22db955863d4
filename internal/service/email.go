package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/resend/resend-go/v2"
)

// EmailSender delivers plaintext credentials out-of-band. The auth flows
// depend on this narrow interface rather than the Resend client directly.
type EmailSender interface {
	SendMagicLinkEmail(email, plaintextToken string) error
	SendOtpEmail(email, code string) error
	SendWelcomeEmail(email, username string) error
}

// EmailService delivers credentials out-of-band via Resend. In development
// it logs instead of sending so the flow works without an API key.
type EmailService struct {
	client    *resend.Client
	fromEmail string
	appURL    string
	appName   string
	isDev     bool
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		appURL:    appURL,
		appName:   appName,
		isDev:     isDev,
	}
}

func (s *EmailService) SendMagicLinkEmail(email, plaintextToken string) error {
	magicURL := fmt.Sprintf("%s/api/auth/magic-link/verify?token=%s", s.appURL, url.QueryEscape(plaintextToken))
	subject, body := magicLinkEmailTemplate(magicURL, s.appName)

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", "magic_link", "to", email, "subject", subject, "url", magicURL)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{email},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err == nil {
		slog.Info("email sent", "type", "magic_link", "to", email)
	}
	return err
}

func (s *EmailService) SendOtpEmail(email, code string) error {
	subject, body := otpEmailTemplate(code, s.appName)

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", "otp", "to", email, "subject", subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{email},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err == nil {
		slog.Info("email sent", "type", "otp", "to", email)
	}
	return err
}

func (s *EmailService) SendWelcomeEmail(email, username string) error {
	profileURL := fmt.Sprintf("%s/%s", s.appURL, username)
	subject, body := welcomeEmailTemplate(username, profileURL, s.appName)

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", "welcome", "to", email, "subject", subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{email},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err == nil {
		slog.Info("email sent", "type", "welcome", "to", email)
	}
	return err
}
