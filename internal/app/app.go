// Package app assembles the pipeline from configuration: stores, queue
// provider, fetchers, and the scrape facade.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/clock/system"
	"github.com/rivaleye/pricewatch/internal/config"
	"github.com/rivaleye/pricewatch/internal/extract"
	"github.com/rivaleye/pricewatch/internal/fetch"
	"github.com/rivaleye/pricewatch/internal/logging"
	"github.com/rivaleye/pricewatch/internal/metrics"
	"github.com/rivaleye/pricewatch/internal/queue"
	"github.com/rivaleye/pricewatch/internal/queue/memory"
	"github.com/rivaleye/pricewatch/internal/queue/pubsub"
	"github.com/rivaleye/pricewatch/internal/scrape"
	memstore "github.com/rivaleye/pricewatch/internal/store/memory"
	"github.com/rivaleye/pricewatch/internal/store/postgres"
	"github.com/rivaleye/pricewatch/internal/worker"
)

// App owns every long-lived component. One App backs both the HTTP server
// and the queue worker so a single process can run either or both.
type App struct {
	Cfg         config.Config
	Logger      *zap.Logger
	Clock       scrape.Clock
	Service     *scrape.Service
	Fetcher     scrape.PriceFetcher
	Competitors scrape.CompetitorStore
	Audit       scrape.AuditStore

	publisher queue.Publisher
	broker    *memory.Broker
	renderer  *fetch.Renderer
	pool      *pgxpool.Pool
}

// New builds the full component graph from configuration.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Clock:  system.New(),
	}

	if err := a.buildStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildFetcher(); err != nil {
		a.Close()
		return nil, err
	}

	policy := scrape.NewDomainPolicy(cfg.Policy.EnforceAllowlist, cfg.Policy.Allowlist)
	a.Service = scrape.NewService(policy, a.Fetcher, a.publisher, cfg.Queue.Topic, a.Clock, logger.Named("service"))
	return a, nil
}

func (a *App) buildStores(ctx context.Context) error {
	switch a.Cfg.DB.Provider {
	case "postgres":
		pool, err := postgres.Connect(ctx, a.Cfg.DB.DSN)
		if err != nil {
			return err
		}
		a.pool = pool
		store := postgres.New(pool, a.Clock)
		a.Competitors = store
		a.Audit = store
	default:
		store := memstore.New(a.Clock)
		a.Competitors = store
		a.Audit = store
	}
	return nil
}

func (a *App) buildQueue(ctx context.Context) error {
	switch a.Cfg.Queue.Provider {
	case "pubsub":
		pub, err := pubsub.NewPublisher(ctx, a.Cfg.Queue.ProjectID)
		if err != nil {
			return err
		}
		a.publisher = pub
	default:
		a.broker = memory.NewBroker(0)
		a.publisher = a.broker.Publisher()
	}
	return nil
}

func (a *App) buildFetcher() error {
	static := fetch.NewStatic(fetch.StaticConfig{
		UserAgent:      a.Cfg.Fetch.UserAgent,
		AcceptLanguage: a.Cfg.Fetch.AcceptLanguage,
		Timeout:        a.Cfg.FetchTimeout(),
	})

	var renderer fetch.PageRenderer
	if a.Cfg.Render.Enabled {
		r, err := fetch.NewRenderer(fetch.RenderConfig{
			UserAgent:      a.Cfg.Fetch.UserAgent,
			AcceptLanguage: a.Cfg.Fetch.AcceptLanguage,
			NavTimeout:     a.Cfg.NavTimeout(),
			MaxParallel:    a.Cfg.Render.MaxParallel,
			DomainQPS:      a.Cfg.Render.DomainQPS,
		})
		if err != nil {
			return err
		}
		a.renderer = r
		renderer = r
	}

	a.Fetcher = fetch.NewOrchestrator(static, renderer, extract.NewChain(), fetch.OrchestratorConfig{
		MaxRetries:    a.Cfg.Fetch.MaxRetries,
		MinConfidence: a.Cfg.Render.MinConfidence,
	}, a.Logger.Named("fetch"))
	return nil
}

// NewWorker builds a queue worker wired to this App's components.
func (a *App) NewWorker(ctx context.Context) (*worker.Worker, error) {
	consumer, err := a.newConsumer(ctx)
	if err != nil {
		return nil, err
	}
	cfg := worker.Config{
		Topic:       a.Cfg.Queue.Topic,
		DLQTopic:    a.Cfg.Queue.DLQTopic,
		MaxRetries:  a.Cfg.Jobs.MaxRetries,
		BackoffBase: a.Cfg.BackoffBase(),
		MaxBackoff:  a.Cfg.BackoffMax(),
	}
	// The worker fetches through the facade so queue jobs get the same
	// canonicalization and policy admission as API callers; the topic can
	// carry jobs from producers other than this process.
	return worker.New(consumer, a.publisher, a.Service, a.Competitors, a.Audit, a.Clock, cfg, a.Logger.Named("worker")), nil
}

func (a *App) newConsumer(ctx context.Context) (queue.Consumer, error) {
	switch a.Cfg.Queue.Provider {
	case "pubsub":
		return pubsub.NewConsumer(ctx, pubsub.Config{
			ProjectID:      a.Cfg.Queue.ProjectID,
			SubscriptionID: a.Cfg.Queue.Subscription,
			Prefetch:       a.Cfg.Jobs.Prefetch,
		})
	default:
		return a.broker.Consumer(a.Cfg.Queue.Topic, a.Cfg.Jobs.Prefetch), nil
	}
}

// Close releases every owned resource. Safe on a partially built App.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// Broker exposes the in-memory broker, or nil when the pubsub provider is
// active. Used to inspect queue contents in local runs and tests.
func (a *App) Broker() *memory.Broker {
	return a.broker
}
