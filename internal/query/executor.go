package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
)

// Options tunes an Executor.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	Timeout      time.Duration
}

// Executor translates and runs queries against either engine.
type Executor struct {
	schemas    domain.SchemaStore
	docs       domain.DocumentStore
	rel        domain.RelationalStore
	translator *Translator
	timeout    time.Duration
	logger     *zap.Logger
}

func NewExecutor(schemas domain.SchemaStore, docs domain.DocumentStore, rel domain.RelationalStore, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		schemas:    schemas,
		docs:       docs,
		rel:        rel,
		translator: NewTranslator(opts.DefaultLimit, opts.MaxLimit),
		timeout:    opts.Timeout,
		logger:     logger,
	}
}

// Execute runs req for sourceID. The relational engine targets the version
// given in req["version"], or the latest schema version.
func (e *Executor) Execute(ctx context.Context, sourceID string, req domain.QueryRequest) (*domain.QueryResult, error) {
	if sourceID == "" {
		return nil, invalid("source_id is required")
	}
	engine, ok := req.Engine()
	if !ok {
		return nil, invalid("engine must be a string")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	switch engine {
	case domain.EngineDocument:
		return e.document(ctx, sourceID, req)
	case domain.EngineRelational:
		return e.relational(ctx, sourceID, req)
	default:
		return nil, invalid("unknown engine %q", engine)
	}
}

func (e *Executor) document(ctx context.Context, sourceID string, req domain.QueryRequest) (*domain.QueryResult, error) {
	q, err := e.translator.Document(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &domain.QueryResult{Query: q, Results: []map[string]any{}}
	if q.Limit == 0 {
		n, err := e.docs.Count(ctx, sourceID, q.Filter)
		if err != nil {
			return nil, apperrors.QueryExecution("count documents", sourceID, err)
		}
		res.ResultCount = int(n)
	} else {
		docs, err := e.docs.Find(ctx, sourceID, *q)
		if err != nil {
			return nil, apperrors.QueryExecution("find documents", sourceID, err)
		}
		res.Results = docs
		res.ResultCount = len(docs)
	}
	res.ExecutionTimeMS = elapsedMS(start)

	e.logger.Debug("document query",
		zap.String("source_id", sourceID),
		zap.Int("results", res.ResultCount),
		zap.Float64("execution_time_ms", res.ExecutionTimeMS))
	return res, nil
}

func (e *Executor) relational(ctx context.Context, sourceID string, req domain.QueryRequest) (*domain.QueryResult, error) {
	table, err := Table(req)
	if err != nil {
		return nil, err
	}
	version, err := e.version(ctx, sourceID, req)
	if err != nil {
		return nil, err
	}

	columns, err := e.rel.Columns(ctx, sourceID, version, table)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, invalid("unknown table %q for %s v%d", table, sourceID, version)
		}
		return nil, apperrors.QueryExecution("list columns", table, err)
	}

	q, err := e.translator.Relational(req, columns)
	if err != nil {
		return nil, err
	}

	res := &domain.QueryResult{Query: q}
	for _, hit := range AuditParams(q.Params) {
		e.logger.Warn("suspicious query literal",
			zap.String("source_id", sourceID),
			zap.String("table", table),
			zap.Int("param", hit.Index),
			zap.String("fingerprint", hit.Fingerprint))
		res.Warnings = append(res.Warnings, hit.String())
	}

	start := time.Now()
	rows, err := e.rel.Query(ctx, sourceID, version, *q)
	if err != nil {
		return nil, apperrors.QueryExecution("query table", table, err)
	}
	res.Results = rows
	res.ResultCount = len(rows)
	res.ExecutionTimeMS = elapsedMS(start)

	e.logger.Debug("relational query",
		zap.String("source_id", sourceID),
		zap.Int("version", version),
		zap.String("sql", q.SQL),
		zap.Int("results", res.ResultCount))
	return res, nil
}

func (e *Executor) version(ctx context.Context, sourceID string, req domain.QueryRequest) (int, error) {
	if raw, ok := req["version"]; ok && raw != nil {
		v, isInt := asInt(raw)
		if !isInt || v <= 0 {
			return 0, invalid("version must be a positive integer, got %v", raw)
		}
		return v, nil
	}
	latest, err := e.schemas.Latest(ctx, sourceID)
	if err != nil {
		return 0, apperrors.SchemaInference("resolve version", sourceID, fmt.Errorf("latest schema: %w", err))
	}
	return latest.Version, nil
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
