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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/article"
	"github.com/codec-agences/admin-backend/internal/auth"
	"github.com/codec-agences/admin-backend/internal/config"
	"github.com/codec-agences/admin-backend/internal/health"
	"github.com/codec-agences/admin-backend/internal/logger"
	"github.com/codec-agences/admin-backend/internal/metrics"
	"github.com/codec-agences/admin-backend/internal/middleware"
	"github.com/codec-agences/admin-backend/internal/notify"
	"github.com/codec-agences/admin-backend/internal/pipeline"
	"github.com/codec-agences/admin-backend/internal/repository"
	"github.com/codec-agences/admin-backend/internal/session"
	"github.com/codec-agences/admin-backend/internal/threat"
	"github.com/codec-agences/admin-backend/internal/users"
)

// Version is set at build time
var Version = "dev"

const sessionIssuer = "codec-agences-admin"

func main() {
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Session.Secret == "" {
		log.Warn("SESSION_SECRET is empty, sessions will not survive a restart")
		cfg.Session.Secret = uuid.NewString()
	}

	ctx := context.Background()

	pool, err := setupDatabase(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	defer db.Close()

	redisClient, err := session.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Alerts
	var mailer notify.Mailer = notify.LogMailer{Logger: log}
	if cfg.Mail.AdminTo != "" && cfg.Mail.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}
	sink := notify.NewSink(mailer, cfg.Mail.AdminTo, log)

	threatThrottle, err := notify.NewThrottle(notify.DefaultThrottleWindow, cfg.Security.GateCacheSize)
	if err != nil {
		log.Error("failed to create threat throttle", "error", err)
		os.Exit(1)
	}
	rateThrottle, err := notify.NewThrottle(notify.DefaultThrottleWindow, cfg.Security.GateCacheSize)
	if err != nil {
		log.Error("failed to create rate throttle", "error", err)
		os.Exit(1)
	}

	var threatAlerts threat.Notifier = sink
	if cfg.Security.ThreatAlertsOff {
		threatAlerts = nil
	}
	detector := threat.NewDetector(threat.DefaultPatterns(), threatAlerts, threatThrottle, log)

	render := apperr.Renderer{Production: cfg.IsProduction(), Logger: log}

	gate, err := middleware.NewRateGate(middleware.RateGateConfig{
		CacheSize: cfg.Security.GateCacheSize,
		Throttle:  rateThrottle,
		Notifier:  sink,
		Render:    render,
		Logger:    log,
	})
	if err != nil {
		log.Error("failed to create rate gate", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	articleRepo := repository.NewArticleRepo(db)

	// Services
	passwords := auth.NewPasswordValidator()
	authService := auth.NewService(userRepo, sessionRepo, passwords, sink, log)
	authorizer := auth.NewAuthorizer(userRepo, roleRepo)
	userService := users.NewService(userRepo, authService, passwords, sink, log)

	sessions := session.NewManager(
		session.NewRedisStore(redisClient),
		session.NewSigner(cfg.Session.Secret, sessionIssuer),
		cfg.Session.CookieName,
		cfg.Session.Lifetime,
	)

	healthHandler := health.NewHandler(health.Config{
		Checks: map[string]health.Check{
			"database": health.Postgres(pool),
			"redis":    health.Redis(redisClient),
		},
		Critical: []string{"database", "redis"},
		Version:  Version,
	})

	handler := pipeline.Build(pipeline.Deps{
		Logger:          log,
		Render:          render,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		APIKey:          cfg.Security.APIKey,
		ProxyMarker:     cfg.Session.ProxyMarker,
		SessionLifetime: cfg.Session.Lifetime,
		Threats:         detector,
		RateGate:        gate,
		Guard:           middleware.NewAuthMiddleware(sessions, authService, authorizer, render),
		Auth:            auth.NewAuthHandler(authService, sessions, render, log),
		Users:           users.NewHandler(userService, render),
		Articles:        article.NewHandler(articleRepo, render, log),
		Health:          healthHandler,
	})

	collector := metrics.NewDBStatsCollector(pool, db.DB, log)
	collector.Start(15 * time.Second)
	defer collector.Stop()

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr, "version", Version, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	sink.Wait()

	log.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
