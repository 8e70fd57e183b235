package domain

import (
	"time"
)

// ── Type tags ───────────────────────────────────────────────

const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeUnknown = "unknown"
)

// ── Storage engines ─────────────────────────────────────────

const (
	EngineDocument   = "document"
	EngineRelational = "relational"
)

// CoercionStringsMostlyNumeric flags string fields whose values mostly look
// like numbers.
const CoercionStringsMostlyNumeric = "strings_mostly_numeric"

// ── Schema ──────────────────────────────────────────────────

// SchemaField describes one field path in a generated schema.
type SchemaField struct {
	Name                string  `json:"name"`
	Path                string  `json:"path,omitempty"`
	Type                string  `json:"type"`
	Nullable            bool    `json:"nullable"`
	ExampleValue        *Value  `json:"example_value,omitempty"`
	Confidence          float64 `json:"confidence"`
	PrimaryKeyCandidate bool    `json:"primary_key_candidate,omitempty"`
	SuggestedIndex      bool    `json:"suggested_index,omitempty"`
	Enum                []Value `json:"enum,omitempty"`
	CoercionHint        string  `json:"coercion_hint,omitempty"`
}

// TabularSchemaGroup is one relational table derived from a cluster of
// similarly shaped records.
type TabularSchemaGroup struct {
	GroupID      string        `json:"group_id"`
	TableName    string        `json:"table_name"`
	Signature    string        `json:"signature"`
	Fields       []SchemaField `json:"fields"`
	RecordCount  int           `json:"record_count"`
	EntityLabels []string      `json:"entity_labels,omitempty"`
}

// SchemaMetadata is one immutable schema version for a source.
type SchemaMetadata struct {
	SchemaID          string               `json:"schema_id"`
	SourceID          string               `json:"source_id"`
	Version           int                  `json:"version"`
	Fields            []SchemaField        `json:"fields"`
	GeneratedAt       time.Time            `json:"generated_at"`
	CompatibleEngines []string             `json:"compatible_engines"`
	RecordCount       int                  `json:"record_count"`
	ExtractionStats   map[string]int       `json:"extraction_stats"`
	TabularGroups     []TabularSchemaGroup `json:"tabular_groups,omitempty"`
	Signature         string               `json:"signature,omitempty"`
}

// Field returns the field with the given name.
func (s *SchemaMetadata) Field(name string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

// FieldNames returns field names in schema order.
func (s *SchemaMetadata) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Group returns the tabular group backing the given table.
func (s *SchemaMetadata) Group(table string) (TabularSchemaGroup, bool) {
	for _, g := range s.TabularGroups {
		if g.TableName == table {
			return g, true
		}
	}
	return TabularSchemaGroup{}, false
}

// TypeChange records a field whose canonical type differs between versions.
type TypeChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// SchemaDiff is the structural difference between two schema versions.
type SchemaDiff struct {
	AddedFields   []string              `json:"added_fields"`
	RemovedFields []string              `json:"removed_fields"`
	TypeChanges   map[string]TypeChange `json:"type_changes"`
	MigrationNote string                `json:"migration_note"`
}

// IsEmpty reports whether the diff carries no structural change.
func (d *SchemaDiff) IsEmpty() bool {
	return d == nil || (len(d.AddedFields) == 0 && len(d.RemovedFields) == 0 && len(d.TypeChanges) == 0)
}
