// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/singleflight"

	"github.com/garyellow/itmo-advisor-go/internal/bot"
	"github.com/garyellow/itmo-advisor-go/internal/buildinfo"
	"github.com/garyellow/itmo-advisor-go/internal/chat"
	"github.com/garyellow/itmo-advisor-go/internal/config"
	"github.com/garyellow/itmo-advisor-go/internal/genai"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/metrics"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/r2client"
	"github.com/garyellow/itmo-advisor-go/internal/rag"
	"github.com/garyellow/itmo-advisor-go/internal/ratelimit"
	"github.com/garyellow/itmo-advisor-go/internal/recommend"
	"github.com/garyellow/itmo-advisor-go/internal/sentry"
	"github.com/garyellow/itmo-advisor-go/internal/snapshot"
	"github.com/garyellow/itmo-advisor-go/internal/storage"
	"github.com/garyellow/itmo-advisor-go/internal/webhook"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.DB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	catalog        *program.Catalog
	retriever      *rag.Retriever
	engine         *recommend.Engine
	generator      genai.Generator // nil when no provider is configured
	chat           *chat.Manager
	snapshots      *snapshot.Manager // nil when R2 is disabled
	webhookHandler *webhook.Handler  // nil when LINE is not configured
	server         *http.Server
	userLimiter    *ratelimit.KeyedLimiter
	llmLimiter     *ratelimit.KeyedLimiter
	reindexGroup   singleflight.Group
	wg             sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "itmo-advisor-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// ContextHandler pulls user/request ids out of ctx for package-level slog calls.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          releaseName(cfg),
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.SentrySampleRate,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry disabled")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error reporting enabled")
	}

	db, err := storage.New(ctx, cfg.SQLitePath(), cfg.HistoryRetention)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).
		WithField("retention", cfg.HistoryRetention).
		Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	catalog := program.Select(cfg.Programs)

	var snapshots *snapshot.Manager
	if cfg.R2Enabled {
		snapshots, err = newSnapshotManager(ctx, cfg, log)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		syncSnapshot(ctx, snapshots, cfg.ProgramsDir(), catalog, log)
	}

	retriever := rag.NewRetriever(rag.Config{
		Backend:  rag.BackendKind(cfg.IndexBackend),
		MinScore: &cfg.SearchMinScore,
		Catalog:  catalog,
	}, log, m)

	tables := recommend.DefaultTables()
	if cfg.TablesFile != "" {
		if tables, err = recommend.LoadTables(cfg.TablesFile); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("recommendation tables: %w", err)
		}
		log.WithField("path", cfg.TablesFile).Info("Recommendation tables loaded")
	}
	engine, err := recommend.NewEngine(tables, catalog, cfg.SubjectThreshold, m)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recommendation engine: %w", err)
	}

	var generator genai.Generator
	if cfg.HasLLMProvider() {
		llmCfg := buildLLMConfig(cfg)
		if generator, err = genai.NewGenerator(ctx, llmCfg, m); err != nil {
			log.WithError(err).Warn("Generator initialization failed, answering from snippets")
			generator = nil
		}
		if generator != nil {
			providers := llmCfg.ConfiguredProviders()
			names := make([]string, len(providers))
			for i, p := range providers {
				names[i] = p.String()
			}
			log.WithField("providers", names).Info("LLM answers enabled")
		}
	}

	conversation := chat.NewManager(chat.Config{
		Searcher:     retriever,
		Recommender:  engine,
		Store:        db,
		Generator:    generator,
		Catalog:      catalog,
		Logger:       log,
		TopK:         cfg.SearchTopK,
		HistoryLimit: cfg.HistoryLimit,
	})

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         userBurst,
		RefillRate:    ratelimit.PerMinute(userPerMinute),
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})
	llmLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user_llm",
		Burst:         cfg.UserLLMBurst,
		RefillRate:    ratelimit.PerMinute(cfg.UserLLMPerMinute),
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	app := &Application{
		cfg:         cfg,
		logger:      log,
		db:          db,
		metrics:     m,
		registry:    registry,
		catalog:     catalog,
		retriever:   retriever,
		engine:      engine,
		generator:   generator,
		chat:        conversation,
		snapshots:   snapshots,
		userLimiter: userLimiter,
		llmLimiter:  llmLimiter,
	}

	if _, err := app.reindex(ctx); err != nil {
		// Not fatal: searches use the substring fallback until a reindex succeeds.
		log.WithError(err).Error("Initial index build failed")
	}

	if cfg.WebhookEnabled() {
		handler, err := newWebhookHandler(cfg, app, log, m)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("webhook: %w", err)
		}
		app.webhookHandler = handler
	} else {
		log.Info("LINE credentials not set, webhook disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.newRouter(),
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// Limits for the non-LLM user limiter shared by LINE and the API.
const (
	userPerMinute = 30
	userBurst     = 10
)

func newWebhookHandler(cfg *config.Config, app *Application, log *logger.Logger, m *metrics.Metrics) (*webhook.Handler, error) {
	client, err := webhook.NewClient(cfg.LineChannelToken, "")
	if err != nil {
		return nil, err
	}
	processor := bot.NewProcessor(bot.ProcessorConfig{
		Conversation: app.chat,
		Programs:     app.retriever,
		Catalog:      app.catalog,
		Profile:      webhook.ProfileFunc(client),
		UserLimiter:  app.userLimiter,
		LLMLimiter:   app.llmLimiter,
		Logger:       log,
		Timeout:      config.WebhookProcessing,
	})
	return webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		Client:        client,
		Metrics:       m,
		Logger:        log,
		Processor:     processor,
		ReplyTimeout:  config.WebhookProcessing,
	})
}

func newSnapshotManager(ctx context.Context, cfg *config.Config, log *logger.Logger) (*snapshot.Manager, error) {
	client, err := r2client.New(ctx, r2client.Config{
		Endpoint:    r2client.AccountEndpoint(cfg.R2AccountID),
		AccessKeyID: cfg.R2AccessKeyID,
		SecretKey:   cfg.R2SecretAccessKey,
		BucketName:  cfg.R2BucketName,
	})
	if err != nil {
		return nil, err
	}
	return snapshot.New(client, snapshot.Config{Key: cfg.R2SnapshotKey}, log), nil
}

// syncSnapshot downloads the published corpus when the local copy is
// incomplete. Failures leave whatever is on disk in place.
func syncSnapshot(ctx context.Context, m *snapshot.Manager, dir string, catalog *program.Catalog, log *logger.Logger) {
	if program.Exists(dir, catalog) {
		return
	}
	_, n, err := m.Download(ctx, dir)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		log.Warn("No corpus snapshot published yet")
	case err != nil:
		log.WithError(err).Error("Corpus snapshot download failed")
	default:
		log.WithField("files", n).Info("Corpus restored from snapshot")
	}
}

// buildLLMConfig creates an LLMConfig from the application config.
func buildLLMConfig(cfg *config.Config) genai.LLMConfig {
	llmCfg := genai.DefaultLLMConfig()

	llmCfg.OpenAI.APIKey = cfg.OpenAIAPIKey
	llmCfg.OpenAI.BaseURL = cfg.OpenAIBaseURL
	llmCfg.Gemini.APIKey = cfg.GeminiAPIKey
	if cfg.LLMModel != "" {
		llmCfg.OpenAI.Model = cfg.LLMModel
	}
	if cfg.GeminiModel != "" {
		llmCfg.Gemini.Model = cfg.GeminiModel
	}
	if cfg.LLMMaxTokens > 0 {
		llmCfg.MaxTokens = cfg.LLMMaxTokens
	}
	llmCfg.Temperature = cfg.LLMTemperature

	if len(cfg.LLMProviders) > 0 {
		providers := make([]genai.Provider, 0, len(cfg.LLMProviders))
		for _, p := range cfg.LLMProviders {
			switch p {
			case config.ProviderOpenAI:
				providers = append(providers, genai.ProviderOpenAI)
			case config.ProviderGemini:
				providers = append(providers, genai.ProviderGemini)
			default:
				slog.Warn("ignoring unknown provider", "name", p)
			}
		}
		if len(providers) > 0 {
			llmCfg.Providers = providers
		}
	}

	return llmCfg
}

func releaseName(cfg *config.Config) string {
	if cfg.SentryRelease != "" {
		return cfg.SentryRelease
	}
	if buildinfo.Version != "" {
		return "itmo-advisor-go@" + buildinfo.Version
	}
	return ""
}

// reindex reloads the corpus from disk and swaps in a new index generation.
// Concurrent calls share one rebuild, which is detached from the caller's
// cancellation and bounded by config.IndexBuild.
//
// Only the first build may index a partial corpus. Once an index is live, an
// unreadable program file fails the rebuild and the live index keeps serving.
func (a *Application) reindex(ctx context.Context) (rag.Stats, error) {
	v, err, shared := a.reindexGroup.Do("reindex", func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.IndexBuild)
		defer cancel()

		records, loadErr := program.LoadDir(a.cfg.ProgramsDir(), a.catalog)
		if loadErr != nil {
			if a.retriever.Ready() {
				return rag.Stats{}, fmt.Errorf("load programs: %w", loadErr)
			}
			a.logger.WithError(loadErr).Warn("Some program files failed to load, building first index from the rest")
		}
		if len(records) == 0 {
			return rag.Stats{}, fmt.Errorf("no program data in %s", a.cfg.ProgramsDir())
		}
		if err := a.retriever.Index(buildCtx, records); err != nil {
			return rag.Stats{}, err
		}
		return a.retriever.Stats(), nil
	})
	if shared {
		a.logger.Debug("Reindex request joined an in-flight rebuild")
	}
	stats, _ := v.(rag.Stats)
	return stats, err
}

// Run starts the HTTP server and background jobs.
//
// Shutdown order:
//  1. Receive shutdown signal (SIGINT/SIGTERM)
//  2. Cancel context to stop snapshot polling
//  3. Wait for background jobs to finish
//  4. Stop the HTTP server, drain webhook events, close resources
//
// Background jobs may reindex, so they finish before the database closes.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()

	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.snapshots != nil && a.cfg.R2PollInterval > 0 {
		a.wg.Go(func() {
			a.pollSnapshots(ctx)
		})
	}
	a.wg.Go(func() {
		a.updateLimiterMetrics(ctx)
	})
}

// pollSnapshots follows the published corpus and reindexes on every new
// bundle until ctx is done.
func (a *Application) pollSnapshots(ctx context.Context) {
	a.logger.Debug("Snapshot polling job started")
	defer a.logger.Debug("Snapshot polling job stopped")

	a.snapshots.StartPolling(ctx, a.cfg.ProgramsDir(), a.cfg.R2PollInterval, func(ctx context.Context) error {
		stats, err := a.reindex(ctx)
		if err != nil {
			sentry.CaptureExceptionWithContext(ctx, err)
			return err
		}
		a.logger.WithField("chunks", stats.ChunkCount).Info("Reindexed after snapshot update")
		return nil
	})

	<-ctx.Done()
	a.snapshots.StopPolling()
}

// updateLimiterMetrics logs the number of tracked users once a cleanup period.
func (a *Application) updateLimiterMetrics(ctx context.Context) {
	ticker := time.NewTicker(config.RateLimiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.logger.WithField("user", a.userLimiter.GetActiveCount()).
				WithField("user_llm", a.llmLimiter.GetActiveCount()).
				Debug("Active rate limiter keys")
		}
	}
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server, waits for in-flight webhook events and
// closes resources. Call it after background jobs have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.webhookHandler != nil {
		a.logger.Info("Waiting for webhook events to complete...")
		if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	a.closeResources()

	sentry.Flush(2 * time.Second)

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

func (a *Application) closeResources() {
	if a.generator != nil {
		if err := a.generator.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "generator").Error("Component close error")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
	a.llmLimiter.Stop()
	a.userLimiter.Stop()
}
