package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lumalink/lumalink/internal/ctxkeys"
	"github.com/lumalink/lumalink/internal/service"
)

type authHandler struct {
	authService    *service.AuthService
	sessionService *service.SessionService
}

func NewAuthHandler(authService *service.AuthService, sessionService *service.SessionService) *authHandler {
	return &authHandler{
		authService:    authService,
		sessionService: sessionService,
	}
}

// issuanceSuccessMessage is returned for every accepted issuance request.
// It never differentiates registered from unregistered emails.
const issuanceSuccessMessage = "If this email is registered, a sign-in email is on its way."

func (h *authHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		RedirectPath string `json:"redirectPath"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	cooldown, err := h.authService.RequestMagicLink(r.Context(), body.Email, body.RedirectPath, requestInfo(r))
	if err != nil {
		h.writeIssuanceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"message":  issuanceSuccessMessage,
		"cooldown": cooldown,
	})
}

func (h *authHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	plaintext := r.URL.Query().Get("token")
	if plaintext == "" {
		writeMagicLinkError(w, CodeMagicLinkInvalid, "missing token")
		return
	}

	result, err := h.authService.ConsumeMagicLink(r.Context(), plaintext, requestInfo(r))
	if err != nil {
		var rle *service.RateLimitError
		switch {
		case errors.As(err, &rle):
			writeRateLimited(w, rle.RetryAfter)
		case errors.Is(err, service.ErrMagicLinkExpired):
			writeMagicLinkError(w, CodeMagicLinkExpired, "this magic link has expired, request a new one")
		case errors.Is(err, service.ErrMagicLinkUsed):
			writeMagicLinkError(w, CodeMagicLinkUsed, "this magic link has already been used")
		case errors.Is(err, service.ErrMagicLinkInvalid):
			writeMagicLinkError(w, CodeMagicLinkInvalid, "this magic link is invalid")
		default:
			slog.Error("magic link consumption failed", "error", err)
			writeInternalError(w)
		}
		return
	}

	h.sessionService.SetSessionCookie(w, result.Bearer, result.Session.ExpiresAt)

	// A same-origin redirect from the query wins over the stored default,
	// so email clients can deep-link back into the dashboard.
	redirectTo := result.RedirectTo
	if q := sanitizeRedirect(r.URL.Query().Get("redirect")); q != "" && !result.IsNewUser {
		redirectTo = q
	}
	if r.URL.Query().Get("redirect") != "" {
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return
	}

	user := newUserPayload(result.User)
	user.IsNewUser = result.IsNewUser
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"user":       user,
		"session":    newSessionPayload(result.Session),
		"redirectTo": redirectTo,
	})
}

func (h *authHandler) RequestOtp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	cooldown, err := h.authService.RequestOtp(r.Context(), body.Email, requestInfo(r))
	if err != nil {
		h.writeIssuanceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"message":  issuanceSuccessMessage,
		"cooldown": cooldown,
	})
}

// ResendOtp is the same flow as RequestOtp: a fresh code supersedes the old
// one by being more recent. Kept as a separate route for the UI.
func (h *authHandler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	h.RequestOtp(w, r)
}

func (h *authHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	result, err := h.authService.VerifyOtp(r.Context(), body.Email, body.Code, requestInfo(r))
	if err != nil {
		var rle *service.RateLimitError
		switch {
		case errors.As(err, &rle):
			writeRateLimited(w, rle.RetryAfter)
		case errors.Is(err, service.ErrOtpInvalidOrExpired):
			writeError(w, http.StatusBadRequest, CodeInvalidOrExpired, "code is invalid or expired")
		default:
			slog.Error("otp verification failed", "error", err)
			writeInternalError(w)
		}
		return
	}

	h.sessionService.SetSessionCookie(w, result.Bearer, result.Session.ExpiresAt)

	user := newUserPayload(result.User)
	user.IsNewUser = result.IsNewUser
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"user":       user,
		"session":    newSessionPayload(result.Session),
		"redirectTo": result.RedirectTo,
	})
}

// Me returns the current user and session. The middleware already slid the
// session window and re-issued the cookie on the way in.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	session := ctxkeys.Session(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"user":    newUserPayload(user),
		"session": newSessionPayload(session),
	})
}

func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := ctxkeys.Session(r.Context())
	if session != nil {
		err := h.sessionService.Revoke(session.ID)
		if err != nil {
			slog.Error("logout failed", "error", err, "session_id", session.ID)
			writeInternalError(w)
			return
		}
	}

	h.sessionService.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Sessions lists the caller's live sessions for the security page.
func (h *authHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	current := ctxkeys.Session(r.Context())

	sessions, err := h.sessionService.ActiveSessions(user.ID)
	if err != nil {
		slog.Error("failed to list sessions", "error", err, "user_id", user.ID)
		writeInternalError(w)
		return
	}

	items := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, map[string]any{
			"id":         s.ID,
			"createdAt":  s.CreatedAt,
			"lastUsedAt": s.LastUsedAt,
			"expiresAt":  s.ExpiresAt,
			"ip":         s.IPCreatedFrom,
			"userAgent":  s.UACreatedFrom,
			"current":    current != nil && s.ID == current.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sessions": items,
	})
}

// RevokeSessions signs the user out everywhere, including this session.
func (h *authHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	count, err := h.sessionService.RevokeAllForUser(user.ID, "user requested sign-out everywhere")
	if err != nil {
		slog.Error("failed to revoke sessions", "error", err, "user_id", user.ID)
		writeInternalError(w)
		return
	}

	h.sessionService.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"revoked": count,
	})
}

func (h *authHandler) writeIssuanceError(w http.ResponseWriter, err error) {
	var rle *service.RateLimitError
	if errors.As(err, &rle) {
		writeRateLimited(w, rle.RetryAfter)
		return
	}
	if isValidationError(err) {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}
	slog.Error("credential issuance failed", "error", err)
	writeInternalError(w)
}

func sanitizeRedirect(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return ""
	}
	return path
}
