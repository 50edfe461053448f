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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/api"
	"github.com/terra-clan/quiz-engine/internal/auth"
	"github.com/terra-clan/quiz-engine/internal/cleanup"
	"github.com/terra-clan/quiz-engine/internal/config"
	"github.com/terra-clan/quiz-engine/internal/logger"
	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/notify"
	"github.com/terra-clan/quiz-engine/internal/questionbank"
	"github.com/terra-clan/quiz-engine/internal/services"
	"github.com/terra-clan/quiz-engine/internal/session"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting quiz-engine",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	clients := adminClients(cfg.Auth.AdminAPIKeys)
	registry := services.NewRegistry()

	repo, err := openStore(initCtx, cfg.Database, clients, registry, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}

	managerOpts := []session.Option{session.WithDefaultLimit(cfg.Session.DefaultLimit)}
	if cfg.Redis.Enabled {
		redisProvider, err := services.NewRedisProvider(initCtx, services.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			LockTTL:  cfg.Redis.LockTTL,
		}, log)
		if err != nil {
			log.Fatal("failed to create redis provider", zap.Error(err))
		}
		registry.Register("redis", redisProvider)
		managerOpts = append(managerOpts, session.WithLocker(redisProvider))
		log.Info("completion locks backed by redis", zap.String("address", cfg.Redis.Address))
	}

	bank := questionbank.NewLoader(log)
	if cfg.Questions.BankDir != "" {
		if err := bank.LoadFromDir(cfg.Questions.BankDir); err != nil {
			log.Warn("failed to load question bank", zap.String("dir", cfg.Questions.BankDir), zap.Error(err))
		}
	}
	if cfg.Questions.SeedOnStart {
		seedQuestions(initCtx, bank, repo, log)
	}

	sessions := session.NewManager(repo, log, managerOpts...)
	hub := notify.NewHub()
	notifier := notify.NewNotifier(repo, hub, log)
	tokens := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleaner := cleanup.NewCleaner(repo, cfg.Cleanup.Interval, cfg.Cleanup.MaxAge, log)
	cleaner.Start(ctx)

	server := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Sessions: sessions,
		Tokens:   tokens,
		Notifier: notifier,
		Hub:      hub,
		Bank:     bank,
		BankDir:  cfg.Questions.BankDir,
		Registry: registry,
		Log:      log,
	})

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := registry.CloseAll(); err != nil {
		log.Error("service close error", zap.Error(err))
	}
	if err := repo.Close(); err != nil {
		log.Error("store close error", zap.Error(err))
	}

	log.Info("quiz-engine stopped")
}

// openStore builds the configured repository. Postgres is migrated and its
// readiness registered; the memory store is for local runs only.
func openStore(ctx context.Context, cfg config.DatabaseConfig, clients []*models.ApiClient, registry *services.Registry, log *zap.Logger) (storage.Repository, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemoryRepository(clients...), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		MaxLifetime:  cfg.MaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("running database migrations", zap.String("dir", cfg.MigrationsDir))
	if err := storage.RunMigrations(ctx, repo.Pool(), cfg.MigrationsDir, log); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := storage.EnsureClients(ctx, repo.Pool(), clients); err != nil {
		repo.Close()
		return nil, err
	}

	provider, err := services.NewPostgresProvider(ctx, cfg.DSN)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to create postgres provider: %w", err)
	}
	registry.Register("postgres", provider)

	log.Info("database connected successfully")
	return repo, nil
}

// adminClients turns configured admin keys into full-permission API clients
func adminClients(keys []string) []*models.ApiClient {
	clients := make([]*models.ApiClient, 0, len(keys))
	for i, key := range keys {
		if key == "" {
			continue
		}
		clients = append(clients, &models.ApiClient{
			ID:          i + 1,
			Name:        fmt.Sprintf("admin-%d", i+1),
			ApiKey:      key,
			IsActive:    true,
			CreatedAt:   time.Now().UTC(),
			Permissions: []string{"*"},
		})
	}
	return clients
}

// seedQuestions upserts the bank into the store. Failures are logged so a
// bad bank never blocks startup.
func seedQuestions(ctx context.Context, bank *questionbank.Loader, repo storage.Repository, log *zap.Logger) {
	n, err := bank.Seed(ctx, repo)
	if err != nil {
		log.Warn("failed to seed question bank", zap.Int("seeded", n), zap.Error(err))
		return
	}

	total, err := repo.CountQuestions(ctx)
	if err != nil {
		log.Warn("failed to count questions", zap.Error(err))
	}
	log.Info("question bank seeded", zap.Int("seeded", n), zap.Int("total", total))
}
