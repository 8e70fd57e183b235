package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dynetl/internal/domain"
)

func rec(sourceType string, fields map[string]any) domain.NormalizedRecord {
	r, err := domain.NewRecordFromMap(sourceType, fields, nil)
	if err != nil {
		panic(err)
	}
	return r
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.NormalizedRecord
		want string
	}{
		{"json tag", rec("json", map[string]any{"a": 1}), domain.EngineDocument},
		{"yaml tag", rec("yaml_block", map[string]any{"a": 1}), domain.EngineDocument},
		{"csv tag", rec("csv_block", map[string]any{"a": 1}), domain.EngineRelational},
		{"html tag", rec("html_table", map[string]any{"a": 1}), domain.EngineRelational},
		{"kv tag", rec("kv", map[string]any{"a": 1}), domain.EngineRelational},
		{"csv tag wins over nesting", rec("csv_block", map[string]any{"a": map[string]any{"b": 1}}), domain.EngineRelational},
		{"unknown flat", rec("db_row", map[string]any{"a": 1, "b": []any{1, 2}}), domain.EngineRelational},
		{"unknown nested object", rec("db_row", map[string]any{"a": map[string]any{"b": 1}}), domain.EngineDocument},
		{"unknown list of objects", rec("", map[string]any{"a": []any{map[string]any{"b": 1}}}), domain.EngineDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.rec))
		})
	}
}

func TestCategorize_KeepsOrder(t *testing.T) {
	records := []domain.NormalizedRecord{
		rec("csv_block", map[string]any{"i": 1}),
		rec("json", map[string]any{"i": 2}),
		rec("csv_block", map[string]any{"i": 3}),
	}
	routed := Categorize(records)
	assert.Len(t, routed.Document, 1)
	assert.Len(t, routed.Relational, 2)
	assert.Equal(t, domain.Int(1), routed.Relational[0].Fields["i"])
	assert.Equal(t, domain.Int(3), routed.Relational[1].Fields["i"])
}

func TestCompatibleEngines(t *testing.T) {
	flat := &domain.SchemaMetadata{Fields: []domain.SchemaField{{Name: "a", Type: domain.TypeInteger}}}
	nested := &domain.SchemaMetadata{Fields: []domain.SchemaField{{Name: "a", Type: domain.TypeObject}}}

	assert.Equal(t, []string{domain.EngineDocument, domain.EngineRelational}, CompatibleEngines(flat, nil))
	assert.Equal(t, []string{domain.EngineDocument}, CompatibleEngines(nested, nil))
	// The relational slice decides when present.
	assert.Equal(t, []string{domain.EngineDocument, domain.EngineRelational}, CompatibleEngines(nested, flat))
}
