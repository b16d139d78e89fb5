// Package app wires configuration, storage, providers, and the HTTP surface
// into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"social-login-service/internal/config"
	"social-login-service/internal/domain"
	"social-login-service/internal/health"
	"social-login-service/internal/http/handler"
	"social-login-service/internal/http/router"
	"social-login-service/internal/observability"
	"social-login-service/internal/provider"
	"social-login-service/internal/repository"
	"social-login-service/internal/security"
	"social-login-service/internal/service"
	"social-login-service/internal/storage"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sessionPurgeInterval = time.Hour

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Sessions      *service.SessionService

	db    *gorm.DB
	redis *redis.Client
}

// Bootstrap builds the full dependency graph. Constructors are wired
// explicitly so the order of initialization is visible in one place.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenSecret, cfg.RefreshTokenSecret)

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	users := service.NewUserService(userRepo)
	tokens := service.NewTokenService(jwtMgr, sessionRepo, cfg.RefreshTokenPepper, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := service.NewSessionService(sessionRepo)
	states := service.NewRedisStateStore(rdb, cfg.LoginStateTTL)

	var mirror storage.AvatarMirror
	if cfg.AvatarMirrorEnabled {
		m, err := storage.NewS3AvatarMirror(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init avatar mirror: %w", err)
		}
		mirror = m
	}

	logins := service.NewLoginService(buildProviders(cfg), users, tokens, states, mirror, logger)

	readiness := health.NewProbeRunner(2*time.Second, 3*time.Second,
		health.CheckFunc("db", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		health.CheckFunc("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:    handler.NewAuthHandler(logins, cfg.CookieDomain, cfg.CookieSecure, cfg.LoginRedirectURL, logger),
		UserHandler:    handler.NewUserHandler(users, sessions),
		JWTManager:     jwtMgr,
		CORSOrigins:    cfg.CORSOrigins,
		Readiness:      readiness,
		Logger:         logger,
		EnableOTelHTTP: cfg.EnableOTelHTTP,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Sessions:      sessions,
		db:            db,
		redis:         rdb,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains within the configured
// shutdown timeout. A background loop purges expired session rows.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr, "env", a.Config.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		a.Logger.Info("shutting down http server")
		return a.Server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				purged, err := a.Sessions.PurgeExpired(ctx)
				if err != nil {
					a.Logger.Warn("session purge failed", "error", err)
					continue
				}
				if purged > 0 {
					a.Logger.Info("purged expired sessions", "count", purged)
				}
			}
		}
	})

	return g.Wait()
}

// Close releases backing connections and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.DBDriver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DBDSN), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DBDSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func buildProviders(cfg *config.Config) []provider.Provider {
	var providers []provider.Provider
	if cfg.Kakao.Enabled() {
		providers = append(providers, provider.NewKakao(provider.Options{
			ClientID:     cfg.Kakao.ClientID,
			ClientSecret: cfg.Kakao.ClientSecret,
			RedirectURL:  cfg.Kakao.RedirectURL,
			Timeout:      cfg.ProviderTimeout,
		}))
	}
	if cfg.Naver.Enabled() {
		providers = append(providers, provider.NewNaver(provider.Options{
			ClientID:     cfg.Naver.ClientID,
			ClientSecret: cfg.Naver.ClientSecret,
			RedirectURL:  cfg.Naver.RedirectURL,
			Timeout:      cfg.ProviderTimeout,
		}))
	}
	return providers
}
