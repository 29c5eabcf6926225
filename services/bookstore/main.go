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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("bookstore service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(ctx)
	}()

	store, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	locker, closeLocker, err := initLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	tracer := otel.Tracer(cfg.ServiceName)
	carts, err := NewCartUseCase(store, store.Catalog(), store.Orders(), locker, tracer, otel.Meter(cfg.ServiceName))
	if err != nil {
		return err
	}
	carts.lockWait = cfg.LockWait()
	catalog := NewCatalogUseCase(store.Catalog(), tracer)
	reports := NewReportUseCase(carts, store.Catalog(), store.Orders(), cfg.AdminUsername, tracer)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := NewHandler(carts, catalog, reports, cfg.ServiceName)
	r := NewRouter(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("🚀 Bookstore Service listening on port %s", cfg.Port),
			"storage", cfg.StorageDriver, "locker", cfg.Locker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("🛑 Shutting down bookstore service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func initStore(ctx context.Context, cfg Config) (Store, error) {
	if cfg.StorageDriver == StorageMemory {
		store := NewMemoryStore()
		for _, user := range cfg.Users {
			store.AddUser(user)
		}
		slog.Info("📦 Using in-memory store", "users", len(cfg.Users))
		return store, nil
	}

	pool, err := initDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store := NewPostgresStore(pool)
	for _, user := range cfg.Users {
		if err := store.AddUser(ctx, user); err != nil {
			store.Close()
			return nil, err
		}
	}
	slog.Info("✅ Connected to bookstore database with connection pool", "users", len(cfg.Users))
	return store, nil
}

func initDB(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = cfg.DatabaseMaxConns
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := waitForDB(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrate(ctx, cfg.DatabaseURL()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return pool, nil
}

func initLocker(cfg Config) (CartLocker, func(), error) {
	if cfg.Locker == LockerRedis {
		locker, err := NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, "", cfg.LockTTL())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis locker: %w", err)
		}
		return locker, func() {
			if err := locker.Close(); err != nil {
				slog.Error("error closing redis locker", "error", err)
			}
		}, nil
	}
	return NewLocalLocker(), func() {}, nil
}
