package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-service/internal/client"
	"identity-service/internal/config"
	"identity-service/internal/events"
	"identity-service/internal/handler"
	"identity-service/internal/hashing"
	"identity-service/internal/repository/postgres"
	"identity-service/internal/repository/redis"
	"identity-service/internal/service"
	"identity-service/internal/util"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		util.Fatal("Failed to initialize postgres", util.ErrorField(err))
	}
	defer pool.Close()

	// The throttle cache is optional; without Redis the store-level attempt
	// caps are the only guard.
	var limiter *redis.RateLimitCache
	if cfg.Redis.URL != "" {
		redisClient, err := client.NewRedisClient(cfg)
		if err != nil {
			util.Fatal("Failed to initialize redis", util.ErrorField(err))
		}
		defer redisClient.Close()
		limiter = redis.NewRateLimitCache(redisClient, cfg.Auth.RateLimitWindow, cfg.Auth.RateLimitMax)
	}

	publisher := events.NewPublisher(cfg)
	defer publisher.Close()

	authService := service.NewAuthService(
		postgres.NewUserRepository(pool),
		postgres.NewResetTokenRepository(pool),
		postgres.NewOTPRepository(pool),
		hashing.NewHasher(cfg),
		publisher,
		cfg,
		util.Get(),
	)

	authHandler := handler.NewAuthHandler(authService, limiter, util.Get())
	router := handler.NewRouter(authHandler, util.Get())

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		util.Info("Server started",
			util.String("environment", cfg.Environment),
			util.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		util.Fatal("Server failed", util.ErrorField(err))
	}
	util.Info("Server shutdown completed")
}
