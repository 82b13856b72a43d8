package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"archwatch/internal/config"
	"archwatch/internal/discovery"
	"archwatch/internal/domain"
	"archwatch/internal/infrastructure/browser"
	"archwatch/internal/infrastructure/images"
	"archwatch/internal/infrastructure/llm"
	"archwatch/internal/infrastructure/objectstore"
	"archwatch/internal/infrastructure/robots"
	"archwatch/internal/infrastructure/rss"
	"archwatch/internal/infrastructure/scheduler"
	"archwatch/internal/infrastructure/storage"
	"archwatch/internal/infrastructure/telegram"
	"archwatch/internal/logging"
	"archwatch/internal/match"
	"archwatch/internal/pagemeta"
	"archwatch/internal/ports"
	"archwatch/internal/scanner"
	"archwatch/internal/usecase"
)

const seenCacheSize = 4096

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    ports.SeenStore
	pipeline *usecase.Pipeline
	notifier ports.Notifier
}

// New builds the full application graph. Only the seen store is
// load-bearing at startup: an unreachable database is a hard error,
// every other missing dependency degrades its stage.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := buildStore(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	var ai *llm.Client
	if cfg.OpenAI.APIKey != "" {
		ai = llm.NewClient(cfg.OpenAI, baseLogger)
	} else {
		baseLogger.Warn("OPENAI_API_KEY not set; AI stages disabled")
	}

	browsers := browser.NewFactory(cfg.Browser.Endpoint, cfg.Browser.Token)
	gate := robots.NewGate(baseLogger)

	var dates ports.DateExtractor
	if ai != nil {
		dates = ai
	}
	metadata := pagemeta.NewFetcher(dates, cfg.Discovery.DateSanityDays, logging.Component(baseLogger, "pagemeta"))

	matchers := []match.Matcher{match.Containment{}}
	if ai != nil {
		matchers = append(matchers, match.NewSemantic(ai, cfg.Discovery.CandidateLimit))
	}

	registry := scanner.NewRegistry()
	registry.Register(rss.NewScanner(baseLogger))
	if ai != nil {
		registry.Register(discovery.NewVisual(discovery.VisualDeps{
			Store:     store,
			Browsers:  browsers,
			Headlines: ai,
			Matchers:  matchers,
			Metadata:  metadata,
			Policy:    gate,
			MaxPerRun: cfg.Discovery.MaxPerRun,
			Timeout:   cfg.Discovery.NavTimeout(),
			Logger:    baseLogger,
		}))
	}
	registry.Register(discovery.NewPattern(discovery.PatternDeps{
		Store:     store,
		Browsers:  browsers,
		Metadata:  metadata,
		Policy:    gate,
		MaxPerRun: cfg.Discovery.MaxPerRun,
		Timeout:   cfg.Discovery.NavTimeout(),
		Logger:    baseLogger,
	}))

	source := discovery.NewService(cfg.Sources, registry, store, baseLogger)

	var candidates ports.CandidateStore
	if cfg.ObjectStore.Endpoint != "" {
		r2, err := objectstore.NewR2(ctx, cfg.ObjectStore, baseLogger)
		if err != nil {
			baseLogger.Warn("object store unavailable, publishing disabled", "error", err)
		} else {
			candidates = r2
		}
	}

	var notifier ports.Notifier
	tg := cfg.Notifications.Telegram
	if tg.BotToken != "" && tg.ChannelID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChannelID)
	} else {
		baseLogger.Warn("telegram not configured; digests disabled")
	}

	var filter ports.RelevanceFilter
	var summarizer ports.Summarizer
	if ai != nil {
		filter = ai
		summarizer = ai
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Store:      store,
		Filter:     filter,
		Summarizer: summarizer,
		Images:     images.NewDownloader(baseLogger),
		Candidates: candidates,
		Notifier:   notifier,
		Logger:     baseLogger,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
	}, nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.SeenStore, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("DATABASE_URL not set; using in-memory seen store")
		return storage.NewMemory(), nil
	}

	tracker, err := storage.NewTracker(ctx, cfg.Database.DSN, logging.Component(logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("seen store: %w", err)
	}
	cached, err := storage.NewCached(tracker, seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}
	return cached, nil
}

// RunOnce executes one pipeline pass with the given overrides.
func (a *Application) RunOnce(ctx context.Context, opts usecase.RunOptions) error {
	if opts.Lookback <= 0 {
		opts.Lookback = time.Duration(a.cfg.Discovery.LookbackHours) * time.Hour
	}
	if opts.Limit == 0 {
		opts.Limit = a.cfg.Discovery.MaxPerRun
	}

	err := a.pipeline.Run(ctx, opts)
	if err != nil && a.notifier != nil {
		if nErr := a.notifier.NotifyError(context.WithoutCancel(ctx), "pipeline run failed: "+err.Error()); nErr != nil {
			a.logger.Warn("error notification failed", "error", nErr)
		}
	}
	return err
}

// Serve runs the pipeline on the configured interval until ctx ends.
func (a *Application) Serve(ctx context.Context, opts usecase.RunOptions) error {
	if opts.Lookback <= 0 {
		opts.Lookback = time.Duration(a.cfg.Discovery.LookbackHours) * time.Hour
	}
	if opts.Limit == 0 {
		opts.Limit = a.cfg.Discovery.MaxPerRun
	}

	driver := scheduler.NewTickerScheduler(a.cfg.Scheduler.Interval())
	sched := usecase.NewScheduler(driver, a.pipeline, opts, a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	return sched.Stop(context.WithoutCancel(ctx))
}

// Stats exposes seen-store counters for the CLI.
func (a *Application) Stats(ctx context.Context, sourceID string) (domain.SeenStats, error) {
	return a.store.Stats(ctx, sourceID)
}

// ClearSource wipes one source's seen records.
func (a *Application) ClearSource(ctx context.Context, sourceID string) (int64, error) {
	return a.store.Clear(ctx, sourceID)
}

// Sources lists the configured sources.
func (a *Application) Sources() []config.SourceConfig {
	return a.cfg.Sources
}

// Close releases long-lived resources.
func (a *Application) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
