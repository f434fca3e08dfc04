package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/estate/api"
	dbfs "github.com/garnizeh/estate/db"
	"github.com/garnizeh/estate/internal/assistant"
	"github.com/garnizeh/estate/internal/cache"
	"github.com/garnizeh/estate/internal/config"
	"github.com/garnizeh/estate/internal/db"
	"github.com/garnizeh/estate/internal/inquiry"
	"github.com/garnizeh/estate/internal/jobs"
	"github.com/garnizeh/estate/internal/listing"
	"github.com/garnizeh/estate/internal/repository/sqlite"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// staleJobAge is how long a job may stay running before startup puts it back in the queue.
const staleJobAge = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "estate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	ollama.SetLogger(logger)

	logger.Info("starting estate server", "version", version, "build_time", buildTime, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("close database", "err", err)
		}
	}()
	if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	repo := sqlite.New(conn, logger)
	v := validation.New()
	checks := []api.Check{{Name: "database", Probe: func(ctx context.Context) error {
		return conn.GetConn().PingContext(ctx)
	}}}

	listingOpts := []listing.Option{listing.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			// listings are served uncached rather than refusing to start
			logger.Warn("redis unavailable, listing cache disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			defer rc.Close()
			listingOpts = append(listingOpts, listing.WithCache(rc))
			checks = append(checks, api.Check{Name: "redis", Optional: true, Probe: rc.Ping})
		}
	}

	jobRepo := jobs.NewRepository(conn)
	listingOpts = append(listingOpts, listing.WithIndexer(jobs.NewPropertyIndexer(jobRepo, cfg.Jobs.MaxAttempts)))
	listings := listing.New(repo, repo, v, listingOpts...)
	inquiries := inquiry.New(repo, repo, v, inquiry.WithLogger(logger))

	llm, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		return fmt.Errorf("ollama client: %w", err)
	}
	defer llm.Close()
	checks = append(checks, api.Check{Name: "ollama", Optional: true, Probe: llm.Health})

	engine, err := assistant.New(llm, llm, repo, repo, cfg.Assistant, assistant.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("assistant: %w", err)
	}

	if n, err := jobRepo.RequeueStale(ctx, time.Now().Add(-staleJobAge)); err != nil {
		logger.Warn("requeue stale jobs", "err", err)
	} else if n > 0 {
		logger.Info("requeued stale jobs", "count", n)
	}
	pool := jobs.NewWorkerPool(jobRepo, map[string]jobs.Handler{
		jobs.TypePropertyIndex: jobs.IndexHandler(engine),
	}, logger, cfg.Jobs.Workers, jobs.WithPollInterval(cfg.Jobs.PollInterval))
	pool.Start(ctx)
	defer pool.Stop()

	handler := api.SetupRoutes(api.Deps{
		Users:         repo,
		Listings:      listings,
		Inquiries:     inquiries,
		Assistant:     engine,
		Jobs:          jobRepo,
		Validator:     v,
		JWTSecret:     cfg.JWTSecret,
		TokenDuration: cfg.TokenDuration,
		Timeout:       cfg.APITimeout,
		Checks:        checks,
		Version:       version,
		BuildTime:     buildTime,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
