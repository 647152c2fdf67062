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

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/circulation-service/cmd/api/config"
	"github.com/circulation-service/cmd/api/database"
	circulationhttp "github.com/circulation-service/cmd/api/http"
	"github.com/circulation-service/cmd/api/inmemory"
	"github.com/circulation-service/cmd/api/lock"
	"github.com/circulation-service/cmd/api/metrics"
	"github.com/circulation-service/cmd/api/notifications"
	"github.com/circulation-service/cmd/api/seed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	err = run(cfg, logger)
	if err != nil {
		logger.Error("service stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	repo, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	collector := metrics.New()
	ntfy := notifications.NewNtfy(cfg.NtfyEnabled, cfg.NtfyBaseURL, &http.Client{})

	service := circulation.NewService(repo, cfg.Circulation,
		circulation.WithLocker(locker, cfg.LockTimeout),
		circulation.WithNotifier(ntfy, cfg.NtfyTimeout),
		circulation.WithMetrics(collector),
		circulation.WithLogger(logger.Named("circulation")),
		circulation.WithRetry(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		circulation.WithTxTimeout(cfg.TxTimeout),
	)

	//create and init http server:
	circulationhttp.RequestTimeout = cfg.RequestTimeout
	handler := circulationhttp.NewBorrowHandler(service, logger.Named("http"))
	server := circulationhttp.NewServer(circulationhttp.ServerConfig{Port: cfg.Port}, handler, collector.Handler())

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("store", cfg.Store))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serverErr)
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sc:
	case err := <-serverErr:
		return err
	}

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	logger.Info("graceful shutdown complete")
	return nil
}

/* Opens the configured store, applying migrations or the seed file as needed. */
func openStore(cfg *config.Config, logger *zap.Logger) (circulation.Repository, func(), error) {
	var (
		repo      circulation.Repository
		seedStore seed.Store
		closeFn   = func() {}
	)

	switch cfg.Store {
	case config.StorePostgres:
		//connect to db:
		dbObject, err := database.ConnectDb(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting with db: %w", err)
		}
		closeFn = func() { dbObject.Close() }

		//apply migrations:
		store := database.NewStore(dbObject, database.WithLockTimeout(cfg.LockTimeout))
		err = database.MigrationUp(store, cfg.DatabaseMigrationsPath)
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			closeFn()
			return nil, nil, fmt.Errorf("migrating: %w", err)
		}
		repo, seedStore = store, store

	default:
		store, err := inmemory.NewInMemoryStore()
		if err != nil {
			return nil, nil, fmt.Errorf("creating in-memory store: %w", err)
		}
		repo, seedStore = store, store
	}

	if cfg.SeedFile != "" {
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("opening seed file: %w", err)
		}
		defer f.Close()

		summary, err := seed.Load(context.Background(), seedStore, f, time.Now())
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info("store seeded", zap.Int("users", summary.Users), zap.Int("books", summary.Books), zap.Int("skipped", summary.Skipped))
	}

	return repo, closeFn, nil
}

/* Uses Redis for the copy locks when an address is configured, otherwise locks in process. */
func newLocker(cfg *config.Config, logger *zap.Logger) (circulation.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting with redis: %w", err)
	}
	logger.Info("using redis locks", zap.String("addr", cfg.RedisAddr))

	// The TTL covers the lock wait plus one whole unit of work.
	return lock.NewRedis(client, cfg.TxTimeout+cfg.LockTimeout, logger.Named("lock")), func() { client.Close() }, nil
}
