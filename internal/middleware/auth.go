package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumalink/lumalink/internal/ctxkeys"
	"github.com/lumalink/lumalink/internal/service"
)

// SessionMiddleware resolves the session cookie and adds user + session to
// the request context. Every successful validation slides the session
// window, so the cookie is re-issued with the renewed expiry. Requests
// without a valid session continue unauthenticated; store failures are a
// 500, distinct from missing auth.
func SessionMiddleware(sessionService *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(service.SessionCookieName)
			if err != nil {
				// No cookie, continue without auth
				next.ServeHTTP(w, r)
				return
			}

			user, session, bearer, err := sessionService.Validate(cookie.Value)
			if err != nil {
				slog.Error("session validation failed", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"ok":    false,
					"code":  "INTERNAL",
					"error": "something went wrong",
				})
				return
			}
			if user == nil {
				// Dead or forged session, clear the cookie and continue
				sessionService.ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			// Renewal happened server-side; keep the cookie in step. The
			// bearer itself is rotated once it passes its half-life.
			sessionService.SetSessionCookie(w, bearer, session.ExpiresAt)

			ctx := ctxkeys.WithUser(r.Context(), user)
			ctx = ctxkeys.WithSession(ctx, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects unauthenticated requests with a JSON 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"ok":    false,
				"code":  "UNAUTHORIZED",
				"error": "authentication required",
			})
			return
		}
		next.ServeHTTP(w, r)
	}
}
