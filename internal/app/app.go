package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dynetl/internal/config"
	"dynetl/internal/domain"
	"dynetl/internal/etl"
	_ "dynetl/internal/etl/sources"
	"dynetl/internal/query"
	"dynetl/internal/secret"
	"dynetl/internal/service"
	"dynetl/internal/storage"
)

// MemoryURI selects the in-process document store instead of MongoDB.
const MemoryURI = "memory"

// App is the composition root. It owns every shared handle (catalog, Mongo
// client, relational pool) and the services built on top of them.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	catalog *storage.Catalog
	mongo   *storage.MongoStore // nil in memory mode
	docs    domain.DocumentStore
	rel     *storage.RelationalPool

	Ingest  *service.IngestService
	Queries *service.QueryService
	Schemas *service.SchemaService
}

// Open wires the application from cfg. Close must be called when done.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	catalog, err := storage.OpenCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.catalog = catalog

	if cfg.Mongo.URI == MemoryURI {
		logger.Warn("using in-memory document store; documents are lost on exit")
		a.docs = storage.NewMemoryStore()
	} else {
		mongoStore, err := storage.ConnectMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			catalog.Close()
			return nil, err
		}
		a.mongo = mongoStore
		a.docs = mongoStore
	}

	secrets, err := secret.New(cfg.Secrets.Backend)
	if err != nil {
		_ = a.closeStores(ctx)
		return nil, err
	}
	a.rel = storage.NewRelationalPool(cfg.SQLite.BaseDir, logger)

	schemas := storage.NewSchemaStore(catalog)
	engine := etl.NewEngine(schemas, a.docs, a.rel, etl.Options{
		BatchSize:       cfg.Ingest.BatchSize,
		MaxSchemaFields: cfg.Ingest.MaxSchemaFields,
	}, logger)
	executor := query.NewExecutor(schemas, a.docs, a.rel, query.Options{
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		Timeout:      cfg.Query.Timeout,
	}, logger)

	emitter := service.LogEmitter{Logger: logger.Named("events")}
	a.Ingest = service.NewIngestService(engine, storage.NewJobStore(catalog), emitter, cfg.Ingest.Timeout, logger)
	a.Ingest.SetSecrets(secrets)
	a.Queries = service.NewQueryService(executor, schemas, a.docs, logger)
	a.Schemas = service.NewSchemaService(schemas)
	return a, nil
}

// Close stops triggers, waits briefly for running passes and releases every
// handle.
func (a *App) Close(ctx context.Context) error {
	a.Ingest.Stop()
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a.Ingest.WaitRunning(waitCtx)
	cancel()

	var errs []error
	if err := a.rel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relational pool: %w", err))
	}
	if err := a.closeStores(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStores(ctx context.Context) error {
	var errs []error
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
	}
	if err := a.catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close catalog: %w", err))
	}
	return errors.Join(errs...)
}

// HealthStatus reports reachability of each backing store.
type HealthStatus struct {
	Status   string `json:"status"`
	Document string `json:"document_store"`
	Catalog  string `json:"catalog"`
}

// Health pings the document store and the catalog DB.
func (a *App) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	h := &HealthStatus{Status: "ok", Document: "ok", Catalog: "ok"}
	var errs []error
	if err := a.docs.Ping(ctx); err != nil {
		h.Document = err.Error()
		errs = append(errs, fmt.Errorf("document store: %w", err))
	}
	if err := a.catalog.Ping(ctx); err != nil {
		h.Catalog = err.Error()
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if len(errs) > 0 {
		h.Status = "degraded"
	}
	return h, errors.Join(errs...)
}
