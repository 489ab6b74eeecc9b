// Command gestiod runs the Gestio administrative console server.
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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/gestio-app/gestio/internal/auth"
	"github.com/gestio-app/gestio/internal/config"
	"github.com/gestio-app/gestio/internal/console"
	"github.com/gestio-app/gestio/internal/executor"
	"github.com/gestio-app/gestio/internal/model"
	"github.com/gestio-app/gestio/internal/ratelimit"
	"github.com/gestio-app/gestio/internal/server"
	"github.com/gestio-app/gestio/internal/storage"
	"github.com/gestio-app/gestio/internal/telemetry"
	"github.com/gestio-app/gestio/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("GESTIO_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("gestio starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Rate limiters: Redis-backed when REDIS_URL is configured so limits
	// hold across replicas, in-process fixed windows otherwise.
	execLimiter, authLimiter, redisClose, err := buildLimiters(cfg, logger)
	if err != nil {
		return err
	}
	defer redisClose()
	defer func() { _ = execLimiter.Close() }()
	defer func() { _ = authLimiter.Close() }()

	executors := executor.Registry{
		model.KindTaskJS:    executor.NewScriptExecutor(cfg.ScriptTimeout, logger),
		model.KindReportSQL: executor.NewQueryExecutor(db.Pool(), cfg.QueryTimeout, logger),
		model.KindUIMDX:     executor.NewDocumentExecutor(),
	}

	consoleSvc := console.New(console.Config{
		Snippets:   db,
		Audit:      db,
		Limiter:    execLimiter,
		Executors:  executors,
		Logger:     logger,
		QueueSize:  cfg.AuditQueueSize,
		RetryDelay: cfg.AuditRetryDelay,
	})
	consoleSvc.Start(ctx)
	defer consoleSvc.Close()

	if err := seedMaster(ctx, db, cfg, logger); err != nil {
		return fmt.Errorf("seed master: %w", err)
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Console:             consoleSvc,
		Logger:              logger,
		AuthLimiter:         authLimiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting requests and drain in-flight ones,
	// then let the deferred console Close flush the audit retry queue.
	slog.Info("gestio shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("gestio stopped")
	return nil
}

// buildLimiters creates the execution and auth rate limiters. The returned
// closer releases the shared Redis client, if any.
func buildLimiters(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("rate limiting: in-process fixed windows",
			"exec_limit", cfg.ExecRateLimit, "exec_window", cfg.ExecRateWindow)
		return ratelimit.NewMemoryLimiter(cfg.ExecRateLimit, cfg.ExecRateWindow),
			ratelimit.NewMemoryLimiter(cfg.AuthRateLimit, time.Minute),
			func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	logger.Info("rate limiting: redis fixed windows",
		"addr", opts.Addr, "exec_limit", cfg.ExecRateLimit, "exec_window", cfg.ExecRateWindow)
	return ratelimit.NewRedisLimiter(client, cfg.ExecRateLimit, cfg.ExecRateWindow),
		ratelimit.NewRedisLimiter(client, cfg.AuthRateLimit, time.Minute),
		func() { _ = client.Close() }, nil
}

// seedMaster bootstraps the initial MASTER principal when both
// GESTIO_MASTER_EMAIL and GESTIO_MASTER_PASSWORD are configured.
// The insert is idempotent; an existing principal with the same email wins.
func seedMaster(ctx context.Context, db *storage.DB, cfg config.Config, logger *slog.Logger) error {
	if cfg.MasterEmail == "" || cfg.MasterPassword == "" {
		logger.Info("no master credentials configured, skipping seed")
		return nil
	}

	hash, err := auth.HashPassword(cfg.MasterPassword)
	if err != nil {
		return fmt.Errorf("hash master password: %w", err)
	}

	created, err := db.SeedPrincipal(ctx, cfg.MasterEmail, model.RoleMaster, hash)
	if err != nil {
		return err
	}
	if created {
		logger.Info("master principal seeded", "email", cfg.MasterEmail)
	} else {
		logger.Info("master principal already exists", "email", cfg.MasterEmail)
	}
	return nil
}
