package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"

	"market_ingest/internal/app/config"
	"market_ingest/internal/app/di"
	"market_ingest/internal/app/router"
	markethandler "market_ingest/internal/feature/marketdata/transport/handler"
	infradb "market_ingest/internal/platform/db"
	platformhandler "market_ingest/internal/platform/http/handler"
	"market_ingest/internal/platform/logger"
	infraredis "market_ingest/internal/platform/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .envを読み込む
	if err := godotenv.Load(); err != nil {
		slog.Info(".env not found; using system environment variables")
	}

	cfg := config.Load()
	log, err := logger.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("invalid logging configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := infradb.OpenDB(cfg.DB)
	if err != nil {
		log.Error("failed to open database", "error", err)
		return 1
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("failed to get sql.DB", "error", err)
		return 1
	}
	defer func() { _ = sqlDB.Close() }()

	// Redis
	deps := map[string]platformhandler.Pinger{"db": sqlDB}
	var rdb *redisv9.Client
	if tmp, err := infraredis.NewRedisClient(ctx, cfg.Redis); err != nil {
		if errors.Is(err, infraredis.ErrNotConfigured) {
			log.Info("Redis not configured. Running without cache.")
		} else {
			log.Warn("Redis unavailable. Running without cache.", "error", err)
		}
	} else {
		rdb = tmp
		deps["redis"] = platformhandler.PingerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("failed to close Redis client", "error", err)
			}
		}()
	}

	// Usecase / Handler
	queryUC := di.NewQueryUsecase(cfg, db, rdb)
	marketH := markethandler.NewMarketHandler(queryUC)
	healthH := platformhandler.NewHealthHandler(deps)

	// ルータ生成
	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(healthH, marketH)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("query API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}
