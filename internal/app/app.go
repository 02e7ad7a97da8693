package app

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/db"
	"github.com/yungbote/docprov-backend/internal/data/graph"
	"github.com/yungbote/docprov-backend/internal/data/repos"
	httpserver "github.com/yungbote/docprov-backend/internal/http"
	httpH "github.com/yungbote/docprov-backend/internal/http/handlers"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/pkg/neo4jdb"
	"github.com/yungbote/docprov-backend/internal/realtime"
	"github.com/yungbote/docprov-backend/internal/realtime/bus"
	"github.com/yungbote/docprov-backend/internal/services"
	"github.com/yungbote/docprov-backend/internal/temporalx"
	"github.com/yungbote/docprov-backend/internal/temporalx/processingrun"
	"github.com/yungbote/docprov-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Repos   repos.Set
	Metrics *observability.Metrics

	Aggregates Aggregates
	Processing services.ProcessingService
	Documents  services.DocumentService

	Bus        bus.Bus
	Neo4j      *neo4jdb.Client
	Temporal   temporalsdkclient.Client
	Dispatcher *processingrun.Dispatcher
	Worker     *temporalworker.Runner
	Server     *httpserver.Server

	store        *db.Service
	otelShutdown func(context.Context) error
}

// New wires the whole service. Redis, Temporal and Neo4j are only dialed when configured.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	otelCfg := cfg.Otel
	otelCfg.ServiceName, otelCfg.Environment, otelCfg.Version = cfg.ServiceName, cfg.Environment, cfg.Version
	a.otelShutdown = observability.InitOTel(ctx, log, otelCfg)
	a.Metrics = observability.Init(log, cfg.Metrics)

	store, err := db.NewService(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.store = store
	if err := store.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	a.DB = store.DB()

	log.Info("Wiring repos...")
	a.Repos = repos.NewSet(a.DB, log)
	a.Aggregates = wireAggregates(a.DB, log, cfg, a.Repos, a.Metrics)

	if cfg.Events.Addr != "" {
		b, err := bus.NewRedisBus(log, cfg.Events)
		if err != nil {
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		a.Bus = b
	} else {
		a.Bus = bus.NewMemoryBus(log)
	}

	neo, err := neo4jdb.New(log, cfg.Neo4j)
	if err != nil {
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	a.Neo4j = neo
	mirror := graph.NewProvenanceMirror(neo, log, a.Aggregates.Provenance)

	a.Processing = services.NewProcessingService(services.ProcessingServiceDeps{
		DB:                    a.DB,
		Log:                   log,
		Repos:                 a.Repos,
		Metrics:               a.Metrics,
		Versioning:            a.Aggregates.Versioning,
		Registry:              a.Aggregates.Registry,
		Composite:             a.Aggregates.Composite,
		Provenance:            a.Aggregates.Provenance,
		Bus:                   a.Bus,
		Mirror:                mirror,
		AutoRefreshComposites: cfg.Composite.AutoRefresh,
	})
	a.Documents = services.NewDocumentService(services.DocumentServiceDeps{
		Log:        log,
		Repos:      a.Repos,
		Metrics:    a.Metrics,
		Versioning: a.Aggregates.Versioning,
		Registry:   a.Aggregates.Registry,
		Composite:  a.Aggregates.Composite,
		Provenance: a.Aggregates.Provenance,
		Purger:     a.Aggregates.Purger,
		Bus:        a.Bus,
		Mirror:     mirror,
	})

	if cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			return nil, fmt.Errorf("init temporal: %w", err)
		}
		a.Temporal = tc
		a.Dispatcher = processingrun.NewDispatcher(tc, cfg.Temporal)
		runner, err := temporalworker.NewRunner(log, cfg.Temporal, tc, a.Processing, a.Metrics)
		if err != nil {
			return nil, err
		}
		a.Worker = runner
	}

	a.Server = httpserver.NewServer(httpserver.RouterConfig{
		Log:               log,
		Metrics:           a.Metrics,
		CORSOrigins:       cfg.CORSOrigins,
		ServiceName:       cfg.ServiceName,
		DocumentHandler:   httpH.NewDocumentHandler(a.Documents),
		ProcessingHandler: httpH.NewProcessingHandler(a.Processing, a.Dispatcher),
		HealthHandler:     httpH.NewHealthHandler(a.DB),
	})

	ok = true
	return a, nil
}

// Run serves HTTP and the Temporal worker until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Bus.StartForwarder(ctx, func(ev realtime.Event) {
		a.Log.Debug("event", "type", ev.Type, "document_id", ev.DocumentID)
	}); err != nil {
		a.Log.Warn("event forwarder failed to start", "error", err)
	}
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)

	g, gctx := errgroup.WithContext(ctx)
	if a.Worker != nil {
		g.Go(func() error { return a.Worker.Start(gctx) })
	}
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return a.Server.Run(gctx, a.Cfg.HTTPAddr)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Neo4j != nil {
		if err := a.Neo4j.Close(ctx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
