package service

import (
	"context"
	"errors"
	"fmt"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/inference"
)

// SchemaService exposes read access to stored schema versions.
type SchemaService struct {
	schemas domain.SchemaStore
}

func NewSchemaService(schemas domain.SchemaStore) *SchemaService {
	return &SchemaService{schemas: schemas}
}

func notFound(op, sourceID string, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.SchemaInference(op, "no schema for source "+sourceID, err)
	}
	return err
}

// Latest returns the newest schema version of sourceID.
func (s *SchemaService) Latest(ctx context.Context, sourceID string) (*domain.SchemaMetadata, error) {
	schema, err := s.schemas.Latest(ctx, sourceID)
	if err != nil {
		return nil, notFound("get latest schema", sourceID, err)
	}
	return schema, nil
}

// Get returns one version; version 0 means latest.
func (s *SchemaService) Get(ctx context.Context, sourceID string, version int) (*domain.SchemaMetadata, error) {
	if version == 0 {
		return s.Latest(ctx, sourceID)
	}
	schema, err := s.schemas.Get(ctx, sourceID, version)
	if err != nil {
		return nil, notFound("get schema", sourceID, err)
	}
	return schema, nil
}

// History returns every stored version in ascending order.
func (s *SchemaService) History(ctx context.Context, sourceID string) ([]domain.SchemaMetadata, error) {
	history, err := s.schemas.History(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, notFound("schema history", sourceID, apperrors.ErrNotFound)
	}
	return history, nil
}

// Diff compares two stored versions of a source.
func (s *SchemaService) Diff(ctx context.Context, sourceID string, from, to int) (*domain.SchemaDiff, error) {
	if from <= 0 || to <= 0 {
		return nil, apperrors.Invalid(apperrors.KindSchemaInference, "diff schema",
			"versions must be positive, got %d and %d", from, to)
	}
	prev, err := s.Get(ctx, sourceID, from)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", from, err)
	}
	next, err := s.Get(ctx, sourceID, to)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", to, err)
	}
	diff := inference.DetectSchemaChange(prev, next)
	return &diff, nil
}

func (s *SchemaService) Sources(ctx context.Context) ([]string, error) {
	return s.schemas.Sources(ctx)
}
