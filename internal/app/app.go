package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ContentCurator/internal/admission"
	"ContentCurator/internal/budget"
	"ContentCurator/internal/cache"
	"ContentCurator/internal/config"
	"ContentCurator/internal/connector"
	"ContentCurator/internal/dedup"
	"ContentCurator/internal/fanout"
	"ContentCurator/internal/infrastructure/llm"
	"ContentCurator/internal/infrastructure/notify"
	"ContentCurator/internal/infrastructure/scheduler"
	"ContentCurator/internal/infrastructure/sources"
	"ContentCurator/internal/infrastructure/storage"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
	"ContentCurator/internal/scoring"
	"ContentCurator/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	service *usecase.Service
}

type stores struct {
	articles ports.ArticleStore
	runs     ports.RunStore
	budgets  ports.BudgetStore
	schema   interface {
		EnsureSchema(ctx context.Context) error
	}
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(nil, cfg.Logging.Level)
	}

	st := openStores(ctx, cfg, baseLogger)
	if st.schema != nil {
		if err := st.schema.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare storage: %w", err)
		}
	}

	policy := retry.Once(2 * time.Second)

	ledger := budget.NewLedger(budget.Config{
		AggregateCeiling: cfg.Budget.DailyCeiling,
		ProviderCeilings: cfg.Budget.PerProvider,
	})
	if consumed, windowStart, err := st.budgets.LoadBudget(ctx); err != nil {
		baseLogger.Warn("budget restore failed, starting fresh window", "error", err)
	} else if len(consumed) > 0 {
		ledger.Restore(consumed, windowStart)
	}

	aiLedger := budget.NewLedger(budget.Config{
		ProviderCeilings: map[string]int{"ai": cfg.Budget.AIDailyCeiling},
	})

	registry := connector.NewRegistry()
	for _, src := range cfg.Sources {
		c, err := buildConnector(src)
		if err != nil {
			baseLogger.Warn("source skipped", "source", src.Name, "error", err)
			continue
		}
		registry.Register(c)
	}

	fetcher := fanout.New(registry.All(), ledger, policy, 30*time.Second,
		baseLogger.With("component", "fanout"))

	client := llm.NewOpenAIClient(cfg.AI)
	scorer := scoring.New(client, aiLedger, policy, cfg.Pipeline.ScoringConcurrency,
		baseLogger.With("component", "scoring"))

	dedupLookback := time.Duration(cfg.Pipeline.DedupLookbackDays) * 24 * time.Hour
	writer := admission.New(st.articles, dedup.NewIndex(nil), policy, dedupLookback,
		baseLogger.With("component", "admission"))

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = notify.NewTelegramNotifier(
			cfg.Notifications.Telegram.BotToken,
			cfg.Notifications.Telegram.ChatID,
		)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Fetcher:  fetcher,
		Scorer:   scorer,
		Writer:   writer,
		Store:    st.articles,
		Runs:     st.runs,
		Budgets:  st.budgets,
		Ledger:   ledger,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "pipeline"),
		Config: usecase.RunConfig{
			Topic:              cfg.Pipeline.Topic,
			Keywords:           cfg.Pipeline.Keywords,
			DateWindow:         time.Duration(cfg.Pipeline.DateWindowDays) * 24 * time.Hour,
			RelevanceThreshold: cfg.Pipeline.RelevanceThreshold,
			QualityControl:     cfg.Pipeline.QualityControlEnabled(),
			MaxItemsPerRun:     cfg.Pipeline.MaxItemsPerRun,
			DedupLookback:      dedupLookback,
			RunDeadline:        cfg.Scheduler.RunDeadline.Std(),
		},
	})

	analyses := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL.Std())
	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.CheckInterval.Std())
	service := usecase.NewService(driver, pipeline, analyses,
		baseLogger.With("component", "service"))

	return &Application{cfg: cfg, logger: baseLogger, service: service}, nil
}

// Service exposes the manual-control surface to outer layers.
func (a *Application) Service() *usecase.Service {
	return a.service
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.service.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("content admission pipeline started",
		"interval", a.cfg.Scheduler.CheckInterval.Std().String(),
		"sources", len(a.cfg.Sources))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.service.Stop(stopCtx)
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) stores {
	if cfg.Database.DSN != "" {
		db, err := storage.Open(ctx, cfg.Database.DSN)
		if err == nil {
			pg := storage.NewPostgresStore(db)
			return stores{articles: pg, runs: pg, budgets: pg, schema: pg}
		}
		logger.Warn("database unavailable, using in-memory store", "error", err)
	}

	mem := storage.NewMemoryStore()
	return stores{articles: mem, runs: mem, budgets: mem}
}

func buildConnector(src config.SourceConfig) (connector.Connector, error) {
	switch src.Connector {
	case "newsapi":
		return sources.NewNewsAPI(src.Name, src.URL, src.APIKey, nil), nil
	case "listing":
		return sources.NewListing(src.Name, src.URL, sources.OptionsFromMap(src.Options), nil), nil
	default:
		return nil, fmt.Errorf("unknown connector %q", src.Connector)
	}
}
