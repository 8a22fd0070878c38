package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/credstack/credits-backend/internal/api"
	"github.com/credstack/credits-backend/internal/auth"
	"github.com/credstack/credits-backend/internal/config"
	"github.com/credstack/credits-backend/internal/db"
	"github.com/credstack/credits-backend/internal/keyedmutex"
	"github.com/credstack/credits-backend/internal/logger"
	"github.com/credstack/credits-backend/internal/metrics"
	"github.com/credstack/credits-backend/internal/middleware"
	repo "github.com/credstack/credits-backend/internal/repository"
	"github.com/credstack/credits-backend/internal/repository/memory"
	"github.com/credstack/credits-backend/internal/repository/postgres"
	redisrepo "github.com/credstack/credits-backend/internal/repository/redis"
	"github.com/credstack/credits-backend/internal/services"
	"github.com/credstack/credits-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	var repos repo.Repositories
	switch cfg.Store {
	case "memory":
		repos = memory.NewStore().Repositories()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if os.Getenv("APP_MIGRATE") == "true" {
			if err := db.RunMigrations(ctx, pool); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		repos = postgres.NewRepositories(pool)

		if cfg.Store == "redis" {
			rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
			defer rdb.Close()
			stores := redisrepo.NewStores(rdb)
			repos.Balances = stores
			repos.History = stores
		}
	}

	locks := keyedmutex.New(
		keyedmutex.WithWaitTimeout(cfg.LockWait),
		keyedmutex.WithHoldTimeout(cfg.LockHold),
	)
	locks.OnHoldExpired = func(string) { metrics.LockHoldExpired.Inc() }

	wp := worker.NewPool(4)
	defer wp.Stop()

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	userSvc := services.NewUserService(repos.Users, tm)
	balanceSvc := services.NewBalanceService(repos.Balances, repos.History, repos.AuditLogs, locks, wp)

	r := api.NewRouter(cfg, userSvc, balanceSvc, middleware.NewAuthMiddleware(tm))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
