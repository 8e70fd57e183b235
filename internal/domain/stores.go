package domain

import "context"

// Document bookkeeping fields written alongside every stored document.
const (
	DocFieldSchemaVersion = "_schema_version"
	DocFieldIngestedAt    = "_ingested_at"
	DocFieldUploadID      = "_upload_id"
)

// Relational bookkeeping columns present on every generated table.
const (
	ColumnRowID      = "_id"
	ColumnSourceID   = "_source_id"
	ColumnIngestedAt = "_ingested_at"
)

// SchemaStore persists schema versions. Latest and Get return an error
// wrapping apperrors.ErrNotFound when nothing is stored.
type SchemaStore interface {
	Latest(ctx context.Context, sourceID string) (*SchemaMetadata, error)
	Get(ctx context.Context, sourceID string, version int) (*SchemaMetadata, error)
	// History returns every version for the source in ascending order.
	History(ctx context.Context, sourceID string) ([]SchemaMetadata, error)
	// Put inserts or replaces the (source_id, version) entry.
	Put(ctx context.Context, s *SchemaMetadata) error
	Sources(ctx context.Context) ([]string, error)
}

// DocumentStore is the schema-flexible arm. One collection per source.
type DocumentStore interface {
	// Prepare creates the source's collection when it does not exist.
	Prepare(ctx context.Context, sourceID string) error
	// InsertBatch writes docs and reports how many were stored.
	InsertBatch(ctx context.Context, sourceID string, docs []map[string]Value) (int, error)
	// Evolve applies an additive, idempotent migration for diff.
	Evolve(ctx context.Context, sourceID string, diff *SchemaDiff) error
	Find(ctx context.Context, sourceID string, q DocumentQuery) ([]map[string]any, error)
	Count(ctx context.Context, sourceID string, filter map[string]any) (int64, error)
	Ping(ctx context.Context) error
}

// RelationalStore is the strict arm. Each (source, version) pair is a
// separate database holding one table per tabular group.
type RelationalStore interface {
	// EnsureTable creates the group's table and suggested indexes.
	EnsureTable(ctx context.Context, sourceID string, version int, group TabularSchemaGroup) error
	// InsertRows writes rows one by one and returns inserted and dropped counts.
	InsertRows(ctx context.Context, sourceID string, version int, table string, rows []map[string]Value) (inserted, dropped int, err error)
	// Columns lists the table's columns in declaration order.
	Columns(ctx context.Context, sourceID string, version int, table string) ([]string, error)
	Tables(ctx context.Context, sourceID string, version int) ([]string, error)
	Query(ctx context.Context, sourceID string, version int, q RelationalQuery) ([]map[string]any, error)
}
