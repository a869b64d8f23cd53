// The api command runs the auction backend: HTTP API, websocket hub,
// and the expiry sweeper.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/api/rest"
	"github.com/hammerstone/live-auction-backend/internal/api/websocket"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/auth"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/cache"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/database"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/lock"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/repository"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/telemetry"
	"github.com/hammerstone/live-auction-backend/internal/service/bidding"
	"github.com/hammerstone/live-auction-backend/internal/service/identity"
	"github.com/hammerstone/live-auction-backend/internal/service/lifecycle"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slogger := telemetry.SetupLogger(cfg.LogLevel)
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	db, err := database.NewPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	auctionRepo := repository.NewAuctionRepository(db)
	bidRepo := repository.NewBidRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	// Lock and rate limiting: redis-backed when the lock backend is
	// enabled, in-process fallbacks otherwise.
	var locker lock.Locker = lock.NewLocalLocker(cfg.Lock.RetryDelay)
	var limiter cache.RateLimiter = cache.NewLocalRateLimiter()
	if cfg.Lock.Enabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis, zapLogger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Lock.RetryDelay, zapLogger)
		limiter = cache.NewRedisRateLimiter(redisClient, zapLogger)
	}

	// Services
	tokens := auth.NewTokenService(&cfg.Security)
	hub := websocket.NewHub(tokens, slogger)

	identitySvc := identity.NewService(userRepo, tokenRepo, tokens, zapLogger)
	biddingSvc := bidding.NewService(auctionRepo, bidRepo, locker, limiter, hub, cfg, zapLogger)
	lifecycleSvc := lifecycle.NewService(auctionRepo, bidRepo, categoryRepo, locker, hub, cfg, zapLogger)
	hub.SetServices(biddingSvc, lifecycleSvc)

	// Background loops
	if cfg.Sweeper.Enabled {
		sweeper := lifecycle.NewSweeper(lifecycleSvc, cfg, zapLogger)
		go sweeper.Run(ctx)
	}
	go hub.RunStats(ctx, lifecycleSvc, cfg.Stats.Interval)

	// HTTP
	handlers := rest.NewHandlers(identitySvc, biddingSvc, lifecycleSvc, slogger)
	server := rest.NewServer(cfg, handlers, hub, tokens, limiter, slogger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	// Give background loops a moment to observe cancellation.
	time.Sleep(100 * time.Millisecond)
	return nil
}
