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

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/background"
	"github.com/BradenHooton/bookswap/internal/config"
	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/handlers"
	"github.com/BradenHooton/bookswap/internal/metrics"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories"
	"github.com/BradenHooton/bookswap/internal/repositories/memory"
	"github.com/BradenHooton/bookswap/internal/routes"
	"github.com/BradenHooton/bookswap/internal/services"
	"github.com/BradenHooton/bookswap/internal/storage"
	pkgauth "github.com/BradenHooton/bookswap/pkg/auth"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Database.Store),
		slog.String("storage", cfg.Storage.Backend))

	ctx := context.Background()

	// Initialize store
	appMetrics := metrics.New()
	store, healthCheck, closeStore, err := openStore(ctx, cfg, logger, appMetrics)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	// Token revocation: Redis when configured so revocations survive restarts
	// and are shared across instances
	var revoker auth.TokenRevoker = auth.NewMemoryTokenRevoker()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		revoker = auth.NewRedisTokenRevoker(client)
		logger.Info("token revocation backed by redis", slog.String("addr", cfg.Redis.Addr))
	}

	images, uploadDir, err := openImageStore(cfg)
	if err != nil {
		logger.Error("failed to initialize image storage", slog.Any("error", err))
		os.Exit(1)
	}

	var notifier services.Notifier = services.NewLogNotifier(logger)
	if cfg.Email.Enabled {
		ses, err := services.NewSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.AppBaseURL, logger)
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = ses
	}

	// Initialize security components
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	accessPolicy := policy.New(cfg.Auth.AdminEmails)
	lockout := services.NewLockoutPolicy(cfg.Auth.LoginLimit, cfg.Auth.LockDuration)

	// Initialize services
	authService := services.NewAuthService(store, pkgauth.NewPasswordHasher(bcrypt.DefaultCost), tokenManager,
		revoker, lockout, logger, auditLogger, appMetrics)
	bookService := services.NewBookService(store, images, accessPolicy, notifier, logger, auditLogger, appMetrics)
	swapService := services.NewSwapService(store, accessPolicy, notifier, logger, auditLogger, appMetrics)
	moderationService := services.NewModerationService(store, bookService, accessPolicy, logger, auditLogger, appMetrics)

	// Bootstrap first admin user if configured
	if cfg.Auth.AdminEmail != "" {
		bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		admin, err := authService.EnsureAdmin(bootCtx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		cancel()
		if err != nil {
			logger.Error("failed to ensure admin user", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("admin user ready", slog.String("email", pkglogger.SanitizedEmail(admin.Email)))
	}

	// Reset expired lockouts in the background
	sweeper := background.NewLockSweeper(store.Users(), logger, cfg.Auth.LockSweepInterval)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweeper.Start(sweepCtx)

	// Setup router
	cookies := auth.CookieConfig{Secure: cfg.Server.CookieSecure}
	router := routes.NewRouter(routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, cookies, logger),
		Books:  handlers.NewBookHandler(bookService, cfg.Storage.PublicBaseURL),
		Swaps:  handlers.NewSwapHandler(swapService, cfg.Storage.PublicBaseURL),
		Admin:  handlers.NewAdminHandler(moderationService, cfg.Storage.PublicBaseURL),
		Health: handlers.NewHealthHandler(healthCheck, logger),
	}, routes.Options{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: pkghttp.ParseTrustedProxies(cfg.Server.TrustedProxies),
		AuthRateLimit:  cfg.Auth.RateLimitPerMinute,
		WriteRateLimit: cfg.Auth.WriteRatePerMinute,
		UploadDir:      uploadDir,
		Logger:         logger,
		Metrics:        appMetrics,
		Authenticator:  auth.NewAuthenticator(tokenManager, revoker, logger),
		Users:          store.Users(),
		Policy:         accessPolicy,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// openStore returns the configured store, a health check for it (nil for the
// in-memory store) and a cleanup func. A postgres pool is exported to m.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (repositories.Store, func(context.Context) error, func(), error) {
	if cfg.Database.Store == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil, func() {}, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}
	m.RegisterPool(func() metrics.PoolStats { return db.Stats() })
	return repositories.NewPostgresStore(db), db.HealthCheck, db.Close, nil
}

// openImageStore returns the configured image store and, for local storage,
// the directory to serve under /uploads/.
func openImageStore(cfg *config.Config) (storage.ImageStore, string, error) {
	if cfg.Storage.Backend == "minio" {
		store, err := storage.NewMinioStore(
			cfg.Storage.MinioEndpoint,
			cfg.Storage.MinioAccessKey,
			cfg.Storage.MinioSecretKey,
			cfg.Storage.MinioBucket,
			cfg.Storage.MinioPublicURL,
			cfg.Storage.MinioUseSSL,
		)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}

	store, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		return nil, "", err
	}
	return store, store.Dir(), nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
