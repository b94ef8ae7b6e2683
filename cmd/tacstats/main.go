package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tacbyte/tacstats/internal/app"
	"github.com/tacbyte/tacstats/internal/auth"
	"github.com/tacbyte/tacstats/internal/credentials"
	"github.com/tacbyte/tacstats/internal/gatekeeper"
	"github.com/tacbyte/tacstats/internal/idempotency"
	"github.com/tacbyte/tacstats/internal/observability"
	"github.com/tacbyte/tacstats/internal/platform/cache"
	"github.com/tacbyte/tacstats/internal/platform/db"
	"github.com/tacbyte/tacstats/internal/shared"
	"github.com/tacbyte/tacstats/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	credentialRepo := credentials.NewRepository(dbpool)
	credentialService := credentials.NewService(credentialRepo, cfg.InstanceID)
	secretCache := credentials.NewSecretCache(credentialRepo, cfg.InstanceID, cfg.SecretCacheTTL)
	if err := secretCache.ListenForInvalidation(ctx, redisClient, credentials.InvalidationChannel, logger); err != nil {
		logger.Warn("secret invalidation listener", slog.Any("error", err))
	}
	toucher := credentials.NewToucher(credentialRepo, logger, metrics)

	resolver := auth.NewResolver(auth.ResolverConfig{
		Secrets:     secretCache,
		AuthKeys:    credentialService,
		Gameservers: credentialService,
		Toucher:     toucher,
		Logger:      logger,
	})
	issuer := auth.NewIssuer(auth.IssuerConfig{
		Secrets:   secretCache,
		Passwords: credentialService,
		Players:   credentialService,
		Audit:     shared.NewAuditLogger(dbpool),
		Logger:    logger,
	})

	var store idempotency.Store
	switch cfg.IdempotencyBackend {
	case app.BackendRedis:
		store = idempotency.NewRedisStore(redisClient, cfg.IdempotencyTTL())
	default:
		store = idempotency.NewPGStore(dbpool)
	}

	gk := gatekeeper.New(gatekeeper.Config{
		Resolver:    resolver,
		Idempotency: idempotency.NewMiddleware(store, logger, metrics),
		Recorder:    metrics,
		Logger:      logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	jobClient := jobs.NewClient(redisOpts)
	defer func() { _ = jobClient.Close() }()

	router, registry := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Gatekeeper:  gk,
		AuthHandler: auth.NewHandler(logger, issuer),
		JobHandler:  jobs.NewHandler(inspector, jobClient, cfg.IdempotencyRetention, logger),
		Metrics:     metrics,
		Readiness: map[string]app.ReadinessCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})
	logger.Info("operations registered", slog.Int("count", len(registry.Operations())))

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("instance", cfg.InstanceID))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
