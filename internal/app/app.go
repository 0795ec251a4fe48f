package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"lodge-api/internal/config"
	"lodge-api/internal/database"
	"lodge-api/internal/handler"
	"lodge-api/internal/mailer"
	"lodge-api/internal/middleware"
	"lodge-api/internal/repository"
	"lodge-api/internal/router"
	"lodge-api/internal/service"
)

const administratorRoleID = 1

type App struct {
	server *http.Server
	db     *database.DB
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL", "host", cfg.PGHost, "database", cfg.PGDatabase)
	db, err := database.New(context.Background(), cfg.DatabaseURL(), cfg.PGMaxPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	userRepo := repository.NewUserRepository(db.Pool)
	tokenRepo := repository.NewTokenRepository(db.Pool)
	slog.Info("database ready")

	signer, err := service.NewTokenSigner(cfg.PEMPath, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	var mail mailer.Mailer
	if _, ok := os.LookupEnv("EMAIL_HOST"); ok {
		mail = mailer.NewSMTP(cfg.EmailHost, cfg.EmailPort, cfg.EmailUsername, cfg.EmailPassword, cfg.EmailFrom)
	} else {
		slog.Warn("EMAIL_HOST not set, reset emails go to the log")
		mail = mailer.Log{}
	}

	authService := service.NewAuthService(userRepo, tokenRepo, signer, mail, cfg.ResetTokenTTL)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService)
	healthHandler := handler.NewHealthHandler(db)

	if err := seedAdmin(context.Background(), cfg, userRepo); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed administrator: %w", err)
	}

	appRouter := router.New(cfg, authHandler, healthHandler, authMiddleware)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, db: db}, nil
}

// seedAdmin bootstraps the first administrator on an empty users table.
// With ADMIN_PASSWORD set the account is usable immediately; otherwise a
// reset token is logged and the account goes through the normal
// set-password flow.
func seedAdmin(ctx context.Context, cfg *config.Config, users *repository.UserRepository) error {
	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	id, err := users.Create(ctx, cfg.AdminName, cfg.AdminEmail, administratorRoleID)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	if cfg.AdminPassword != "" {
		hash, err := service.HashPassword(cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		if err := users.SetPassword(ctx, id, hash); err != nil {
			return fmt.Errorf("store admin password: %w", err)
		}
		slog.Info("bootstrap administrator created", "email", cfg.AdminEmail)
		return nil
	}

	resetToken := uuid.NewString()
	if err := users.SetResetToken(ctx, id, resetToken, time.Now().UTC().Add(cfg.ResetTokenTTL)); err != nil {
		return fmt.Errorf("store admin reset token: %w", err)
	}

	slog.Info("bootstrap administrator created, set a password via /api/auth/set-password",
		"email", cfg.AdminEmail, "reset_token", resetToken)
	return nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.db.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	a.db.Close()

	slog.Info("server stopped")
	return nil
}
