package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/Salint/oauth2-system/internal/api"
	"github.com/Salint/oauth2-system/internal/instrumentation"
	"github.com/Salint/oauth2-system/internal/oauth"
	"github.com/Salint/oauth2-system/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := newCredentialStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	secrets, err := newSecretStorage(cfg, logger)
	if err != nil {
		return err
	}

	clients, err := loadClients(cfg.ClientsFile)
	if err != nil {
		return err
	}
	if err := provisionClients(ctx, store, clients); err != nil {
		return err
	}
	logger.Info("Provisioned OAuth clients", zap.Int("count", len(clients)), zap.String("file", cfg.ClientsFile))

	inst, err := instrumentation.New(otel.GetMeterProvider(), otel.GetTracerProvider())
	if err != nil {
		return fmt.Errorf("failed to create instrumentation: %w", err)
	}

	oauthService := oauth.NewService(store, secrets,
		oauth.WithHasher(oauth.BcryptHasher{Cost: cfg.BcryptCost}),
		oauth.WithLogger(logger.Named("oauth")),
		oauth.WithInstrumentation(inst),
	)

	mux := http.NewServeMux()
	api.Routes(mux,
		api.NewServer(oauthService, logger.Named("api")),
		api.NewOAuthAPIHandlers(oauthService, logger.Named("api")),
	)

	// Apply middleware
	var handler http.Handler = api.LoggingMiddleware(logger.Named("http"), api.CORSMiddleware(cfg.CORSOrigins, mux))
	if cfg.Gzip {
		handler = gziphandler.GzipHandler(handler)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("OAuth server starting",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.StorageMode),
			zap.String("secrets", cfg.SecretMode),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(format, level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	config.Level = lvl

	return config.Build()
}

func newCredentialStorage(ctx context.Context, cfg *Config, logger *zap.Logger) (storage.CredentialStorage, io.Closer, error) {
	switch cfg.StorageMode {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		logger.Info("Using Redis storage", zap.String("addr", cfg.Redis.Addr), zap.String("prefix", cfg.Redis.Prefix))
		return storage.NewRedisStorage(redisClient, cfg.Redis.Prefix), redisClient, nil
	case "sqlite":
		sqlStorage, err := storage.OpenSQLStorage(ctx, storage.DialectSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite storage", zap.String("path", cfg.SQLitePath))
		return sqlStorage, sqlStorage, nil
	case "postgres":
		sqlStorage, err := storage.OpenSQLStorage(ctx, storage.DialectPostgres, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Postgres storage")
		return sqlStorage, sqlStorage, nil
	case "memory":
		memStorage := storage.NewMemoryStorage()
		logger.Warn("Using in-memory storage (not persistent)")
		return memStorage, memStorage, nil
	}
	return nil, nil, fmt.Errorf("invalid storage mode %q", cfg.StorageMode)
}

func newSecretStorage(cfg *Config, logger *zap.Logger) (storage.SecretStorage, error) {
	switch cfg.SecretMode {
	case "s3":
		s3Storage, err := storage.NewS3SecretStorage(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.Key, cfg.S3.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 secret storage: %w", err)
		}
		logger.Info("Using S3 signing secret", zap.String("endpoint", cfg.S3.Endpoint), zap.String("bucket", cfg.S3.Bucket))
		return s3Storage, nil
	case "file":
		fsStorage, err := storage.NewFilesystemSecretStorage(cfg.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem secret storage: %w", err)
		}
		logger.Info("Using filesystem signing secret", zap.String("path", cfg.SecretFile))
		return fsStorage, nil
	case "static":
		logger.Info("Using static signing secret")
		return storage.StaticSecretStorage(cfg.JWTSecret), nil
	}
	return nil, fmt.Errorf("invalid secret mode %q", cfg.SecretMode)
}
