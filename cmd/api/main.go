package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/velmarket/gateway/internal/auth"
	"github.com/velmarket/gateway/internal/background"
	"github.com/velmarket/gateway/internal/config"
	"github.com/velmarket/gateway/internal/database"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/handlers"
	"github.com/velmarket/gateway/internal/metrics"
	"github.com/velmarket/gateway/internal/models"
	"github.com/velmarket/gateway/internal/repositories"
	"github.com/velmarket/gateway/internal/routes"
	"github.com/velmarket/gateway/internal/services"
	pkgauth "github.com/velmarket/gateway/pkg/auth"
	pkghttp "github.com/velmarket/gateway/pkg/http"
	pkglogger "github.com/velmarket/gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting admin gateway",
		slog.String("env", cfg.Server.Env),
		slog.String("profile", cfg.Profile.Name),
	)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	metrics.MustRegister()

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	if err := ensureAdminAccount(context.Background(), accountRepo, logger); err != nil {
		logger.Error("admin bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Gateway state: one shared store behind the limiter and the tracker
	store := gateway.NewMemoryStore()
	limiter := gateway.NewRateLimiter(store, cfg.Profile, logger)
	tracker := gateway.NewLockoutTracker(store, cfg.Profile, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(eventRepo, auditLogger, logger)

	sessionManager := auth.NewSessionManager(
		cfg.Auth.SessionSecret,
		cfg.Profile.SessionTTL,
		cfg.Profile.AbsoluteSessionTimeout,
	)
	csrfManager := auth.NewCSRFTokenManager(cfg.Profile.SessionTTL)
	delay := auth.NewProgressiveDelay(cfg.Profile.DelaySchedule, cfg.Profile.DelayJitterMs)

	authService := services.NewAuthService(
		accountRepo, sessionRepo, tracker, delay, sessionManager, auditService, logger,
	)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	admission := gateway.NewAdmission(
		limiter, tracker, sessionManager, sessionRepo, csrfManager,
		auditService, cfg.Profile, ipConfig, logger,
	)

	cookieConfig := auth.CookieConfig{
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Auth.CookieSecure,
	}

	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(
			authService, csrfManager, cookieConfig, cfg.Profile.SessionTTL, ipConfig, logger,
		),
		Admin:  handlers.NewAdminHandler(eventRepo, sessionRepo, tracker, auditService, logger),
		Health: handlers.NewHealthHandler(db),
	}

	router := routes.New(cfg, admission, h, logger)

	cleanup := background.NewCleanupManager(
		limiter, csrfManager, sessionRepo, cfg.Auth.CleanupInterval, logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleanup.Start(ctx)
	defer cleanup.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// ensureAdminAccount creates the initial admin when the environment provides
// bootstrap credentials and the account does not exist yet. A deployment with
// no ADMIN_EMAIL set skips the bootstrap entirely.
func ensureAdminAccount(ctx context.Context, accounts *repositories.AccountRepository, logger *slog.Logger) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	if _, err := accounts.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup failed: %w", err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         "Administrator",
		Role:         "admin",
		Permissions:  []string{"*"},
		Status:       models.AccountStatusActive,
	}
	if _, err := accounts.Create(ctx, account); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	logger.Info("bootstrap admin account created",
		slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}
