package main

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/background"
	"github.com/palletline/gatehouse/internal/cache"
	"github.com/palletline/gatehouse/internal/config"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/handlers"
	middlewareCustom "github.com/palletline/gatehouse/internal/middleware"
	"github.com/palletline/gatehouse/internal/models"
	"github.com/palletline/gatehouse/internal/permissions"
	"github.com/palletline/gatehouse/internal/repositories"
	"github.com/palletline/gatehouse/internal/risk"
	"github.com/palletline/gatehouse/internal/routes"
	"github.com/palletline/gatehouse/internal/services"
	pkgauth "github.com/palletline/gatehouse/pkg/auth"
	pkghttp "github.com/palletline/gatehouse/pkg/http"
	pkglogger "github.com/palletline/gatehouse/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Redis is optional; without it every revocation check hits Postgres.
	var sessionCache services.SessionStateCache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewSessionCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SessionCacheTTL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisCache.Close()
		sessionCache = redisCache
		logger.Info("session cache enabled", slog.Duration("ttl", cfg.Redis.SessionCacheTTL))
	}

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	alertRepo := repositories.NewSecurityAlertRepository(db)
	auditRepo := repositories.NewAuditEntryRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	// Services
	securityLogger := pkglogger.NewSecurityLogger(logger)
	auditService := services.NewAuditService(auditRepo, logger)
	alertService := services.NewAlertService(alertRepo, auditService, securityLogger, logger)
	deviceService := services.NewDeviceService(deviceRepo, alertService, auditService, cfg.Risk.TrustPromotionLogins, logger)
	sessionStore := services.NewSessionStore(sessionRepo, sessionCache, logger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.Issuer,
		cfg.Auth.Audience,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	validator := auth.NewValidator(tokenManager, sessionStore)

	var emailSender services.EmailSender
	if cfg.Email.Enabled {
		emailSender, err = services.NewSESEmailSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.ResetURLBase, logger)
		if err != nil {
			logger.Error("failed to initialize email sender", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		emailSender = services.NewLogEmailSender(logger)
	}

	riskPolicy := risk.DefaultPolicy()
	riskPolicy.RapidThreshold = cfg.Risk.RapidThreshold
	riskPolicy.WorkdayStartHour = cfg.Risk.WorkdayStartHour
	riskPolicy.WorkdayEndHour = cfg.Risk.WorkdayEndHour
	riskPolicy.MinHistoryForHours = cfg.Risk.MinHistoryForHours

	authService := services.NewAuthService(services.AuthServiceConfig{
		Accounts:   accountRepo,
		Attempts:   attemptRepo,
		Resets:     resetRepo,
		Sessions:   sessionStore,
		Devices:    deviceService,
		Alerts:     alertService,
		Audit:      auditService,
		Tokens:     tokenManager,
		Timing:     auth.NewTimingDelay(cfg.Auth.TimingDelayBaseMs, cfg.Auth.TimingDelayRandomMs),
		Email:      emailSender,
		Locations:  risk.NetworkZoneResolver{},
		RiskPolicy: riskPolicy,
		Lockout: services.LockoutPolicy{
			Threshold: cfg.Auth.LockoutThreshold,
			Duration:  cfg.Auth.LockoutDuration,
		},
		RapidWindow:    cfg.Risk.RapidWindow,
		AlertLevel:     models.RiskLevel(cfg.Risk.AlertLevel),
		ResetExpiry:    cfg.Auth.ResetTokenExpiry,
		SecurityLogger: securityLogger,
		Logger:         logger,
	})

	perms, err := permissions.Load(os.Getenv("PERMISSIONS_FILE"))
	if err != nil {
		logger.Error("failed to load permission table", slog.Any("error", err))
		os.Exit(1)
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	securityHandler := handlers.NewSecurityHandler(alertService, deviceService, authService)

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(bootstrapCtx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancelBootstrap()

	cleanupManager := background.NewCleanupManager(
		attemptRepo, resetRepo,
		cfg.Auth.AttemptRetention, cfg.Auth.CleanupInterval,
		logger,
	)
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	go cleanupManager.Start(cleanupCtx)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(cfg.Server.Env))
	router.Use(middlewareCustom.CORS(cfg.Server.AllowedOrigins, cfg.Server.Env))
	router.Use(middlewareCustom.RequestLogger(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	routes.RegisterRoutes(router, authHandler, securityHandler, validator, perms)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelCleanup()
	cleanupManager.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

// ensureAdminAccount bootstraps the first administrator from the
// environment so a fresh deployment is not locked out of its own admin
// surface. No-op when the variables are unset or the username is taken.
func ensureAdminAccount(ctx context.Context, accounts *repositories.AccountRepository, logger *slog.Logger) error {
	username := os.Getenv("BOOTSTRAP_ADMIN_USERNAME")
	email := os.Getenv("BOOTSTRAP_ADMIN_EMAIL")
	password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if username == "" || email == "" || password == "" {
		return nil
	}

	if _, err := accounts.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("bootstrap admin password rejected: %w", err)
	}
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return err
	}

	acct := &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "admin",
		Active:       true,
	}
	if err := accounts.Create(ctx, acct); err != nil {
		return err
	}

	logger.Info("bootstrap admin account created", slog.String("account_id", acct.ID))
	return nil
}
