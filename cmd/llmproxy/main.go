// Command llmproxy runs the completion pipeline as a long-lived process.
// It wires the cache, usage queue, providers, and orchestrator from
// environment configuration, runs the background machinery (cache
// sweeper, usage worker), and shuts down in order on SIGINT/SIGTERM.
// There is no network surface; the orchestrator is the library entry
// point for embedding applications.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/cache"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/completion"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/config"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/dispatch"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/pricing"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/providers"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/queue"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/storage"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/usage"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

const statsInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	app.start(ctx)
	app.logger.Info("completion pipeline ready",
		"providers", strings.Join(app.providerNames, ","),
		"cache", cfg.Cache.Backend,
		"queue", cfg.Queue.Backend,
		"usage_store", cfg.Usage.StoreBackend,
		"archive", cfg.Archive.Backend,
		"singleflight", cfg.Dispatch.Singleflight)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.logger.Info("shutting down")
	app.shutdown()
	app.logger.Info("pipeline stopped")
}

// app is the composition root. Fields appear in construction order;
// shutdown releases them in reverse.
type app struct {
	cfg    *config.Config
	logger *utils.Logger

	db            *storage.DB
	cacheService  *cache.Service
	sweeper       *cache.Sweeper
	queue         queue.Queue
	dlq           queue.DeadLetterQueue
	archiver      usage.ArchiveSink
	spend         *usage.RedisSpendTracker
	worker        *usage.Worker
	orchestrator  *completion.Orchestrator
	providerNames []string
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	level := utils.ParseLevel(cfg.LogLevel)
	a := &app{cfg: cfg, logger: utils.NewLogger("llmproxy", level)}

	if cfg.NeedsDatabase() {
		db, err := storage.Open(storage.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
	}

	var cacheStore cache.Store
	if cfg.Cache.Backend == config.BackendDatabase {
		store, err := cache.NewSQLStore(ctx, a.db)
		if err != nil {
			return nil, fmt.Errorf("cache store: %w", err)
		}
		cacheStore = store
	} else {
		cacheStore = cache.NewMemoryStore()
	}
	a.cacheService = cache.NewService(cacheStore, cfg.Cache.TTL, utils.NewLogger("cache", level))
	a.sweeper = cache.NewSweeper(a.cacheService, cfg.Cache.SweepInterval, utils.NewLogger("cache-sweeper", level))

	queueCfg := queue.DefaultConfig(cfg.Queue.Name)
	queueCfg.BufferSize = cfg.Queue.BufferSize
	if cfg.Queue.Backend == config.QueueBackendRedis {
		queueCfg.Backend = queue.BackendRedis
		queueCfg.RedisAddr = cfg.Redis.Address
		queueCfg.RedisPassword = cfg.Redis.Password
		queueCfg.RedisDB = cfg.Redis.DB
	}
	q, dlq, err := queue.New(queueCfg)
	if err != nil {
		return nil, fmt.Errorf("usage queue: %w", err)
	}
	a.queue = q
	a.dlq = dlq

	var usageStore usage.UsageStore
	if cfg.Usage.StoreBackend == config.BackendDatabase {
		store, err := usage.NewSQLUsageStore(ctx, a.db)
		if err != nil {
			return nil, fmt.Errorf("usage store: %w", err)
		}
		usageStore = store
	} else {
		usageStore = usage.NewMemoryUsageStore()
	}

	switch cfg.Archive.Backend {
	case config.ArchiveBackendFile:
		archiver, err := usage.NewFileArchiver(cfg.Archive.Directory, cfg.Archive.MaxSize, cfg.Archive.MaxFiles)
		if err != nil {
			return nil, fmt.Errorf("file archiver: %w", err)
		}
		a.archiver = archiver
	case config.ArchiveBackendS3:
		source := cfg.Archive.Source
		if source == "" {
			source, _ = os.Hostname()
		}
		archiver, err := usage.NewS3Archiver(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.S3Prefix, source)
		if err != nil {
			return nil, fmt.Errorf("s3 archiver: %w", err)
		}
		a.archiver = archiver
	}

	var spendTracker usage.SpendTracker
	if cfg.Spend.Enabled {
		tracker, err := usage.NewRedisSpendTracker(usage.SpendConfig{
			RedisAddr:     cfg.Redis.Address,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			KeyPrefix:     cfg.Spend.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("spend tracker: %w", err)
		}
		a.spend = tracker
		spendTracker = tracker
	}

	a.worker = usage.NewWorker(q, dlq, usageStore, a.archiver, spendTracker, usage.WorkerConfig{
		BatchSize:     cfg.Worker.BatchSize,
		FlushInterval: cfg.Worker.FlushInterval,
		MaxRetries:    cfg.Worker.MaxRetries,
		RetryBackoff:  cfg.Worker.RetryBackoff,
	}, utils.NewLogger("usage-worker", level))

	provs, err := buildProviders(cfg.Provider)
	if err != nil {
		return nil, err
	}
	for _, p := range provs {
		a.providerNames = append(a.providerNames, p.Name())
	}

	table := pricing.NewTable()
	if cfg.Pricing.FilePath != "" {
		table, err = pricing.LoadTable(cfg.Pricing.FilePath)
		if err != nil {
			return nil, fmt.Errorf("pricing table: %w", err)
		}
	}

	dispatcher := dispatch.NewDispatcher(provs, cfg.Dispatch.MaxRetries, utils.NewLogger("dispatch", level))
	recorder := usage.NewQueueRecorder(q, utils.NewLogger("usage", level))

	a.orchestrator = completion.NewOrchestrator(
		a.cacheService,
		dispatcher,
		pricing.NewCalculator(table),
		recorder,
		completion.Options{Singleflight: cfg.Dispatch.Singleflight},
		utils.NewLogger("completion", level),
	)

	return a, nil
}

// buildProviders constructs a client per configured API key, in fallback
// order: OpenAI first, then Anthropic.
func buildProviders(cfg config.ProviderConfig) ([]providers.Provider, error) {
	var provs []providers.Provider

	if cfg.OpenAIAPIKey != "" {
		client, err := providers.NewOpenAIClient(providers.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		provs = append(provs, client)
	}

	if cfg.AnthropicAPIKey != "" {
		client, err := providers.NewAnthropicClient(providers.Config{
			APIKey:  cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic client: %w", err)
		}
		provs = append(provs, client)
	}

	if len(provs) == 0 {
		return nil, fmt.Errorf("no providers configured, set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	return provs, nil
}

func (a *app) start(ctx context.Context) {
	a.sweeper.Start()
	a.worker.Start(ctx)
	go a.reportStats(ctx)
}

func (a *app) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queued, err := a.worker.QueueLength(ctx)
			if err != nil {
				a.logger.Error("queue length check failed", "error", err)
				continue
			}
			stats, err := a.cacheService.Stats(ctx, "", "")
			if err != nil {
				a.logger.Error("cache stats failed", "error", err)
				continue
			}
			a.logger.Info("pipeline stats",
				"queued_records", queued,
				"cache_entries", stats.ActiveEntries,
				"cache_hits", stats.TotalHits)
		}
	}
}

// shutdown stops intake first, drains the worker, then releases sinks
// and stores. The worker must stop before the queue closes so the drain
// can still dequeue.
func (a *app) shutdown() {
	a.sweeper.Stop()

	if err := a.worker.Stop(); err != nil {
		a.logger.Error("worker shutdown failed", "error", err)
	}
	if err := a.queue.Close(); err != nil {
		a.logger.Error("queue close failed", "error", err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dead letter queue close failed", "error", err)
	}
	if a.archiver != nil {
		if err := a.archiver.Close(); err != nil {
			a.logger.Error("archiver close failed", "error", err)
		}
	}
	if a.spend != nil {
		if err := a.spend.Close(); err != nil {
			a.logger.Error("spend tracker close failed", "error", err)
		}
	}
	if err := a.cacheService.Close(); err != nil {
		a.logger.Error("cache close failed", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("database close failed", "error", err)
		}
	}
}
