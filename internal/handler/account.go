package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lumalink/lumalink/internal/ctxkeys"
	"github.com/lumalink/lumalink/internal/service"
	"github.com/lumalink/lumalink/internal/validation"
)

type accountHandler struct {
	userService *service.UserService
}

func NewAccountHandler(userService *service.UserService) *accountHandler {
	return &accountHandler{userService: userService}
}

// ClaimUsername claims the caller's page name. 201 on success with the
// canonical profile URL, 409 when the name is taken or already set, 400 on
// format or reserved-name violations.
func (h *accountHandler) ClaimUsername(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var body struct {
		Username string `json:"username"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	result, err := h.userService.ClaimUsername(user, body.Username)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrUsernameAlreadySet):
			writeError(w, http.StatusConflict, CodeConflict, err.Error())
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		default:
			slog.Error("username claim failed", "error", err, "user_id", user.ID)
			writeInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":         true,
		"username":   result.Username,
		"profileUrl": result.ProfileURL,
	})
}

// isValidationError reports whether err is one of the input-validation
// sentinels, all of which are recoverable client-side.
func isValidationError(err error) bool {
	for _, sentinel := range []error{
		validation.ErrEmailRequired,
		validation.ErrEmailTooLong,
		validation.ErrEmailInvalid,
		validation.ErrEmailDisposable,
		validation.ErrUsernameRequired,
		validation.ErrUsernameFormat,
		validation.ErrUsernameReserved,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
