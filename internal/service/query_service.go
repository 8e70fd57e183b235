package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/query"
)

// QueryService runs read queries for a source.
type QueryService struct {
	executor *query.Executor
	schemas  domain.SchemaStore
	docs     domain.DocumentStore
	logger   *zap.Logger
}

func NewQueryService(executor *query.Executor, schemas domain.SchemaStore, docs domain.DocumentStore, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{executor: executor, schemas: schemas, docs: docs, logger: logger.Named("query")}
}

// Execute runs one strict query against the engine it names.
func (s *QueryService) Execute(ctx context.Context, sourceID string, req domain.QueryRequest) (*domain.QueryResult, error) {
	res, err := s.executor.Execute(ctx, sourceID, req)
	if err != nil {
		if !apperrors.IsClientError(err) {
			s.logger.Error("query failed", zap.String("source_id", sourceID), zap.Error(err))
		}
		return nil, err
	}
	return res, nil
}

// Records returns documents of the source's latest schema version.
// limit 0 means the default of 100; anything outside 1..1000 is rejected.
func (s *QueryService) Records(ctx context.Context, sourceID string, limit int) ([]map[string]any, error) {
	if limit == 0 {
		limit = query.DefaultLimit
	}
	if limit < 1 || limit > query.MaxLimit {
		return nil, apperrors.Invalid(apperrors.KindQueryExecution, "list records",
			"limit must be between 1 and %d, got %d", query.MaxLimit, limit)
	}
	latest, err := s.schemas.Latest(ctx, sourceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.SchemaInference("list records", "no schema for source "+sourceID, err)
		}
		return nil, err
	}
	docs, err := s.docs.Find(ctx, sourceID, domain.DocumentQuery{
		Filter: map[string]any{domain.DocFieldSchemaVersion: latest.Version},
		Limit:  limit,
	})
	if err != nil {
		return nil, apperrors.QueryExecution("list records", sourceID, err)
	}
	return docs, nil
}
