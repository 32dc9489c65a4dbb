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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"promptman-backend/internal/analytics"
	"promptman-backend/internal/config"
	"promptman-backend/internal/convert"
	"promptman-backend/internal/ingest"
	"promptman-backend/internal/jobstore"
	"promptman-backend/internal/logger"
	"promptman-backend/internal/orchestrator"
	"promptman-backend/internal/storage"
	httptransport "promptman-backend/internal/transport/http"
	"promptman-backend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	// Redis job store
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()
	store := jobstore.NewRedisStore(rdb, cfg.JobTTL(), log)

	// Optional analytics database
	recorder := analytics.New(ctx, cfg.Analytics.DSN, log)
	recorder.EnsureSchema(ctx)
	defer recorder.Close()

	// Staging roots and background sweep
	roots := storage.Roots{
		Upload:  cfg.Storage.UploadDir,
		Clone:   cfg.Storage.CloneDir,
		Results: cfg.Storage.ResultsDir,
	}
	if err := roots.Ensure(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	janitor := storage.NewJanitor(roots, cfg.Storage.Retention, log)
	go janitor.Run(ctx, cfg.Storage.SweepInterval)

	// Background workers
	pool := worker.NewPool(cfg.Worker.Concurrency, log)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	orch := orchestrator.New(
		store,
		roots,
		ingest.NewCloner(cfg.Jobs.CloneTimeout, log),
		ingest.NewCrawler(cfg.Jobs.CrawlTimeout, cfg.Jobs.PageTimeout, log),
		convert.NewConverter("", cfg.Jobs.ConvertTimeout, log),
		pool,
		recorder,
		log,
	)

	handler := httptransport.NewHandler(orch, roots, cfg.Crawl, cfg.Storage.Retention)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httptransport.Routes(handler, log, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", slog.String("error", err.Error()))
	}

	// Drain in-flight jobs before closing the stores they write to.
	<-poolDone
	log.Info("server stopped")
	return nil
}
