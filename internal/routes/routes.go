package routes

import (
	"net/http"

	"github.com/lumalink/lumalink/internal/app"
	"github.com/lumalink/lumalink/internal/handler"
	"github.com/lumalink/lumalink/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, app.SessionService)
	account := handler.NewAccountHandler(app.UserService)
	health := handler.NewHealthHandler(app.DB)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", health.Healthz)

	// Credential issuance and consumption. Rate limiting happens inside the
	// flows, keyed independently by email identity and network origin.
	mux.HandleFunc("POST /api/auth/magic-link", auth.RequestMagicLink)
	mux.HandleFunc("GET /api/auth/magic-link/verify", auth.VerifyMagicLink)
	mux.HandleFunc("POST /api/auth/otp", auth.RequestOtp)
	mux.HandleFunc("POST /api/auth/otp/verify", auth.VerifyOtp)
	mux.HandleFunc("POST /api/auth/otp/resend", auth.ResendOtp)

	// Session
	mux.HandleFunc("GET /api/me", middleware.RequireAuth(auth.Me))
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)
	mux.HandleFunc("GET /api/sessions", middleware.RequireAuth(auth.Sessions))
	mux.HandleFunc("DELETE /api/sessions", middleware.RequireAuth(auth.RevokeSessions))

	// Account
	mux.HandleFunc("POST /api/account/username", middleware.RequireAuth(account.ClaimUsername))

	// Global middleware - executed in order (top to bottom)
	h := middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.SessionMiddleware(app.SessionService),
	)

	return h
}
