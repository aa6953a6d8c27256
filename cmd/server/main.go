package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"billdesk/backend/internal/cache"
	"billdesk/backend/internal/catalog"
	"billdesk/backend/internal/config"
	"billdesk/backend/internal/httpapi"
	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/logging"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/service"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/store/memory"
	pgstore "billdesk/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loc, err := validateConfig(cfg)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var docs store.Store
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL,
			pgstore.WithMaxAttempts(cfg.TransactionMaxAttempts),
			pgstore.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		docs = pg
		closers = append(closers, pg.Close)
		logger.Info("store: postgres")
	} else {
		docs = memory.New(memory.WithMaxAttempts(cfg.TransactionMaxAttempts), memory.WithLogger(logger))
		logger.Warn("store: in-memory, data is lost on restart")
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop product cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("product cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("product cache: noop")
	}

	m := metrics.New()
	tokens := identity.NewTokenIssuer(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	svc := service.New(service.Deps{
		Store:    docs,
		Identity: identity.NewStoreProvider(docs),
		Tokens:   tokens,
		Catalog:  catalog.New(docs, productCache, time.Duration(cfg.ProductCacheTTLSeconds)*time.Second, logger),
		Metrics:  m,
		Logger:   logger,
		Location: loc,
	})
	api := httpapi.New(svc, tokens, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger,
		Metrics:       m,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("billing backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// validateConfig rejects settings the server must not run with and returns
// the shop location used for bill numbering and daily stats.
func validateConfig(cfg config.Config) (*time.Location, error) {
	if len(cfg.AuthSecret) < 32 {
		return nil, fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ShopTimezone == "" {
		return nil, fmt.Errorf("SHOP_TIMEZONE must be set")
	}
	loc, err := time.LoadLocation(cfg.ShopTimezone)
	if err != nil {
		return nil, fmt.Errorf("SHOP_TIMEZONE %q is not a known timezone: %w", cfg.ShopTimezone, err)
	}
	if cfg.TransactionMaxAttempts < 1 {
		return nil, fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1")
	}
	return loc, nil
}
