// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/internal/blobcache"
	"github.com/wikimirror/wikimirror/internal/cache"
	"github.com/wikimirror/wikimirror/internal/config"
	"github.com/wikimirror/wikimirror/internal/downloader"
	"github.com/wikimirror/wikimirror/internal/kv"
	"github.com/wikimirror/wikimirror/internal/ratelimit"
	"github.com/wikimirror/wikimirror/internal/scraper"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// Application holds all application dependencies and manages their
// lifecycle. It is created once per run and shared across commands.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Cache       cache.Cache
	BlobCache   *blobcache.Store
	RateLimiter ratelimit.RateLimiter
	Downloader  *downloader.Downloader
	Stores      scraper.Stores

	redisClient *redis.Client
	startTime   time.Time
}

// New creates and initializes an Application: logging, caches, the
// rate limiter, the downloader and the run's stores. Fatal
// configuration problems (unreachable Redis, missing optimisation
// binaries) surface here, before enumeration starts.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logLevel := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logWriter io.Writer
	if cfg.JSONLog {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.NewConsoleWriter()
	}
	logger := log.Output(logWriter).With().Timestamp().Logger()
	log.Logger = logger

	respCache, err := cache.NewDiskCache(cfg.CacheDir, cfg.SkipCacheCleaning)
	if err != nil {
		return nil, fmt.Errorf("response cache: %w", err)
	}

	var blob *blobcache.Store
	var redisClient *redis.Client
	stores := scraper.NewMemStores()
	if cfg.RedisAddr != "" {
		blob, err = blobcache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		runID := time.Now().Format("20060102-150405")
		stores = scraper.Stores{
			ArticleDetails:  kv.NewTyped[models.ArticleDetail](kv.NewRedisStore(redisClient, runID, "articleDetail")),
			FilesToDownload: kv.NewTyped[models.FileTask](kv.NewRedisStore(redisClient, runID, "filesToDownload")),
			FilesToRetry:    kv.NewTyped[models.FileTask](kv.NewRedisStore(redisClient, runID, "filesToRetry")),
			Redirects:       kv.NewTyped[models.Redirect](kv.NewRedisStore(redisClient, runID, "redirects")),
		}
		logger.Debug().Str("addr", cfg.RedisAddr).Msg("Redis-backed stores initialized")
	}

	var optimizer *downloader.Optimizer
	if !cfg.SkipOptim && !cfg.NoPictures {
		optimizer, err = downloader.NewOptimizer("")
		if err != nil {
			return nil, fmt.Errorf("image optimisation unavailable (use --skip-optim to disable): %w", err)
		}
	}

	limiter := ratelimit.NewHostLimiter(float64(cfg.Speed*10), cfg.Speed*20)

	var blobClient blobcache.Client
	if blob != nil {
		blobClient = blob
	}
	dl := downloader.New(downloader.Options{
		Speed:         cfg.Speed,
		Timeout:       cfg.HTTPTimeout,
		UserAgent:     cfg.UserAgent,
		Limiter:       limiter,
		BlobCache:     blobClient,
		ResponseCache: respCache,
		Optimizer:     optimizer,
	})

	app := &Application{
		Config:      cfg,
		Logger:      &logger,
		Cache:       respCache,
		BlobCache:   blob,
		RateLimiter: limiter,
		Downloader:  dl,
		Stores:      stores,
		redisClient: redisClient,
		startTime:   time.Now(),
	}

	logger.Info().Msg("Application initialized successfully")
	return app, nil
}

// Close gracefully shuts down the application's resources. Errors are
// logged but do not prevent the remaining shutdown steps.
func (a *Application) Close(_ context.Context) error {
	if a.BlobCache != nil {
		if err := a.BlobCache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing blob cache")
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing redis client")
		}
	}

	uptime := time.Since(a.startTime)
	a.Logger.Info().Dur("uptime", uptime).Msg("Application shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
