package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumalink/lumalink/internal/model"
)

// Stable error codes surfaced to clients. Infrastructure detail never
// leaks; validation and auth failures translate to one of these.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeConflict         = "TAKEN"
	CodeInternal         = "INTERNAL"
	CodeInvalidOrExpired = "INVALID_OR_EXPIRED"
	CodeMagicLinkExpired = "MAGIC_LINK_EXPIRED"
	CodeMagicLinkUsed    = "MAGIC_LINK_USED"
	CodeMagicLinkInvalid = "MAGIC_LINK_INVALID"
)

type userPayload struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  *string `json:"username"`
	IsNewUser bool    `json:"isNewUser"`
}

type sessionPayload struct {
	ExpiresAt time.Time `json:"expiresAt"`
	MaxAge    int       `json:"maxAge"`
}

func newUserPayload(user *model.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		IsNewUser: !user.HasUsername(),
	}
}

func newSessionPayload(session *model.Session) sessionPayload {
	return sessionPayload{
		ExpiresAt: session.ExpiresAt,
		MaxAge:    int(time.Until(session.ExpiresAt).Seconds()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"code":  code,
		"error": message,
	})
}

// writeMagicLinkError carries canResend so the UI can offer a fresh link
// for every failure mode.
func writeMagicLinkError(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"ok":    false,
		"code":  code,
		"error": message,
		"details": map[string]any{
			"canResend": true,
		},
	})
}

func writeRateLimited(w http.ResponseWriter, cooldown int) {
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"ok":       false,
		"code":     CodeRateLimited,
		"error":    "too many requests, please try again later",
		"cooldown": cooldown,
	})
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, CodeInternal, "something went wrong")
}
