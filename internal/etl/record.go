package etl

import (
	"fmt"

	"dynetl/internal/domain"
)

// ── Record ─────────────────────────────────────────────────
// Sources emit plain decoded maps tagged with the shape they came from. They
// are converted to domain.NormalizedRecord once, at the ingestion boundary.

// Field describes a single column a source expects to produce.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the shape a source reports from Discover.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single extracted document flowing out of a source.
type Record struct {
	Data       map[string]any    `json:"data"`
	SourceType string            `json:"source_type"`
	Provenance map[string]string `json:"provenance,omitempty"`
}

// Normalize converts source records into NormalizedRecords.
func Normalize(records []Record) ([]domain.NormalizedRecord, error) {
	out := make([]domain.NormalizedRecord, 0, len(records))
	for i, r := range records {
		nr, err := domain.NewRecordFromMap(r.SourceType, r.Data, r.Provenance)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, nr)
	}
	return out, nil
}
