package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/drug-portal-api/cache"
	"github.com/giygas/drug-portal-api/chat"
	"github.com/giygas/drug-portal-api/config"
	"github.com/giygas/drug-portal-api/drugindex"
	"github.com/giygas/drug-portal-api/drugsparser"
	"github.com/giygas/drug-portal-api/handlers"
	"github.com/giygas/drug-portal-api/health"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/scheduler"
	"github.com/giygas/drug-portal-api/server"
	"github.com/giygas/drug-portal-api/session"
	"github.com/giygas/drug-portal-api/validation"
	"github.com/joho/godotenv"
)

// chatTimeout bounds one call to the generative model
const chatTimeout = 30 * time.Second

// application holds every long-lived component so they can be stopped in order
type application struct {
	server    *server.Server
	index     *drugindex.Index
	scheduler *scheduler.Scheduler
	cache     *cache.RedisShardCache
}

// newApplication wires the components. A nil fetcher downloads from the configured CDN.
func newApplication(cfg *config.Config, fetcher interfaces.ShardFetcher) *application {
	app := &application{}

	if fetcher == nil {
		fetcher = drugsparser.NewShardDownloader(cfg.CDNBaseURL, cfg.FetchTimeout, cfg.CDNRatePerSec)
	}

	indexOpts := drugindex.Options{
		Fetcher:        fetcher,
		FetchTimeout:   cfg.FetchTimeout,
		InitialLetters: cfg.InitialLetters,
	}
	if cfg.RedisAddr != "" {
		shardCache, err := cache.NewRedisShardCache(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			logging.Warn("Redis shard cache unavailable, continuing without it", "addr", cfg.RedisAddr, "error", err)
		} else {
			logging.Info("Redis shard cache enabled", "addr", cfg.RedisAddr)
			app.cache = shardCache
			indexOpts.Cache = shardCache
		}
	}
	app.index = drugindex.NewIndex(indexOpts)

	sessions := session.NewStore(cfg.SessionTTL)
	assistant := chat.NewService(chat.NewClient(cfg.ChatAPIURL, chatTimeout), sessions)

	handler := handlers.NewHTTPHandler(
		app.index,
		sessions,
		assistant,
		validation.NewInputValidator(),
		health.NewHealthChecker(app.index, cfg.InitialLetters),
	)
	app.server = server.NewServer(cfg, handler)

	app.scheduler = scheduler.NewScheduler(app.index, sessions, scheduler.Options{
		InitialLetters: cfg.InitialLetters,
		WarmupInterval: cfg.WarmupInterval,
	})

	return app
}

// shutdown stops the components in reverse dependency order
func (app *application) shutdown(ctx context.Context) error {
	var errs []error

	if err := app.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	app.scheduler.Stop()
	app.index.Close()
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

func main() {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.InitLoggerWithOptions(logging.Options{
		LogDir:         "logs",
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer func() { _ = logging.Close() }()

	logging.Info("Configuration loaded",
		"env", cfg.Env,
		"cdn", cfg.CDNBaseURL,
		"initial_letters", cfg.InitialLetters,
		"redis", cfg.RedisAddr != "")

	app := newApplication(cfg, nil)

	// The warm-up job runs immediately and retries until every initial letter is cached
	if err := app.scheduler.Start(); err != nil {
		logging.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start()
	}()

	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			logging.Error("Server failed to start", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.shutdown(ctx); err != nil {
		logging.Error("Shutdown finished with errors", "error", err)
		return
	}
	logging.Info("Server exited gracefully")
}
