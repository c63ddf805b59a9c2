package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kiosco/backend/internal/cache"
	"kiosco/backend/internal/config"
	"kiosco/backend/internal/httpapi"
	"kiosco/backend/internal/logger"
	"kiosco/backend/internal/sequence"
	"kiosco/backend/internal/service"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/store/memory"
	pgstore "kiosco/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("postgres migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(log)
		log.Info("repository: in-memory")
	}

	opts := service.Options{
		ConfigCacheTTL: time.Duration(cfg.ConfigCacheTTLSeconds) * time.Second,
		Location:       cfg.Location(),
		Logger:         log,
	}
	if client := connectRedis(ctx, cfg, log); client != nil {
		opts.ConfigCache = cache.NewRedisConfigurationCache(client, "")
		opts.Sequence = sequence.NewRedisGenerator(client, cfg.SaleSequenceKey, opts.Location)
		closers = append(closers, client.Close)
	} else {
		opts.ConfigCache = cache.NewMemoryConfigurationCache()
	}

	svc := service.New(repo, opts)
	auth, err := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, log)
	if err != nil {
		log.Fatal("auth setup failed", zap.Error(err))
	}
	api := httpapi.New(svc, auth, httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Logger: log})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("kiosco backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", opts.Location.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

// connectRedis returns nil when Redis is not configured or not reachable; the
// caller then keeps the in-process cache and clock-based sale numbers.
func connectRedis(ctx context.Context, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("cache: in-memory, sale numbers: clock")
		return nil
	}
	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		_ = client.Close()
		return nil
	}
	log.Info("cache: redis, sale numbers: redis", zap.String("addr", cfg.RedisAddr))
	return client
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AppEnv == "production" && cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must not be * in production")
	}
	return nil
}
