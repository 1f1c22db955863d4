package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/lumalink/lumalink/internal/config"
	"github.com/lumalink/lumalink/internal/db"
	"github.com/lumalink/lumalink/internal/ratelimit"
	"github.com/lumalink/lumalink/internal/repository"
	"github.com/lumalink/lumalink/internal/service"
	"github.com/lumalink/lumalink/internal/token"
)

// App wires every component with explicit dependency passing. No
// singletons, no mutable ambient environment: everything a handler needs
// arrives through its constructor.
type App struct {
	Cfg            *config.Config
	DB             *sqlx.DB
	AuthService    *service.AuthService
	SessionService *service.SessionService
	UserService    *service.UserService
	EmailService   *service.EmailService
	CleanupService *service.CleanupService
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	magicLinkRepository := repository.NewMagicLinkRepository(database)
	otpRepository := repository.NewOtpRepository(database)
	sessionRepository := repository.NewSessionRepository(database)

	// Rate-limit counter: Redis when configured, in-process otherwise.
	var counter ratelimit.Counter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %v", err)
		}
		counter = ratelimit.NewRedisCounter(redis.NewClient(opts))
	} else {
		counter = ratelimit.NewMemoryCounter()
	}
	limiter := ratelimit.NewLimiter(counter)

	codec := token.NewCodec(cfg.JWTSecret)

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	sessionService := service.NewSessionService(
		sessionRepository,
		userRepository,
		codec,
		cfg.SessionTTL,
		cfg.IsProduction(),
	)
	authService := service.NewAuthService(
		userRepository,
		magicLinkRepository,
		otpRepository,
		sessionService,
		emailService,
		limiter,
		codec,
		cfg.MagicLinkExpiry,
		cfg.OtpExpiry,
	)
	userService := service.NewUserService(userRepository, emailService, cfg.AppURL)
	cleanupService := service.NewCleanupService(
		magicLinkRepository,
		otpRepository,
		sessionRepository,
		cfg.CleanupRetention,
	)

	return &App{
		Cfg:            cfg,
		DB:             database,
		AuthService:    authService,
		SessionService: sessionService,
		UserService:    userService,
		EmailService:   emailService,
		CleanupService: cleanupService,
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
