package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
)

// SchemaStore persists SchemaMetadata versions in the catalog. It
// implements domain.SchemaStore.
type SchemaStore struct {
	catalog *Catalog
}

// NewSchemaStore creates a new SchemaStore.
func NewSchemaStore(catalog *Catalog) *SchemaStore {
	return &SchemaStore{catalog: catalog}
}

var _ domain.SchemaStore = (*SchemaStore)(nil)

// Put inserts the schema, replacing an existing row for the same
// (source_id, version).
func (s *SchemaStore) Put(ctx context.Context, schema *domain.SchemaMetadata) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	_, err = s.catalog.conn.ExecContext(ctx,
		`INSERT INTO schema_versions (source_id, version, schema_id, signature, schema_json, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, version) DO UPDATE SET
		   schema_id = excluded.schema_id,
		   signature = excluded.signature,
		   schema_json = excluded.schema_json,
		   generated_at = excluded.generated_at`,
		schema.SourceID, schema.Version, schema.SchemaID, schema.Signature, string(data), schema.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save schema %s v%d: %w", schema.SourceID, schema.Version, err)
	}
	return nil
}

func (s *SchemaStore) Latest(ctx context.Context, sourceID string) (*domain.SchemaMetadata, error) {
	row := s.catalog.conn.QueryRowContext(ctx,
		`SELECT schema_json FROM schema_versions WHERE source_id = ? ORDER BY version DESC LIMIT 1`, sourceID)
	return scanSchema(row, sourceID)
}

func (s *SchemaStore) Get(ctx context.Context, sourceID string, version int) (*domain.SchemaMetadata, error) {
	row := s.catalog.conn.QueryRowContext(ctx,
		`SELECT schema_json FROM schema_versions WHERE source_id = ? AND version = ?`, sourceID, version)
	return scanSchema(row, fmt.Sprintf("%s v%d", sourceID, version))
}

// History returns every version of a source, oldest first.
func (s *SchemaStore) History(ctx context.Context, sourceID string) ([]domain.SchemaMetadata, error) {
	rows, err := s.catalog.conn.QueryContext(ctx,
		`SELECT schema_json FROM schema_versions WHERE source_id = ? ORDER BY version ASC`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.SchemaMetadata
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var schema domain.SchemaMetadata
		if err := json.Unmarshal([]byte(data), &schema); err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		history = append(history, schema)
	}
	return history, rows.Err()
}

// Sources lists every source with at least one schema version.
func (s *SchemaStore) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.catalog.conn.QueryContext(ctx,
		`SELECT DISTINCT source_id FROM schema_versions ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanSchema(row *sql.Row, what string) (*domain.SchemaMetadata, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("schema for %s: %w", what, apperrors.ErrNotFound)
		}
		return nil, err
	}
	var schema domain.SchemaMetadata
	if err := json.Unmarshal([]byte(data), &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &schema, nil
}
