package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/domain"
)

func TestNewRecord_LiftsEntities(t *testing.T) {
	rec, err := domain.NewRecordFromMap("kv", map[string]any{
		"name": "Alice",
		"ner": map[string]any{
			"PERSON": []any{"Alice"},
			"ORG":    []any{},
		},
	}, nil)
	require.NoError(t, err)

	assert.NotContains(t, rec.Fields, "ner")
	assert.Equal(t, []string{"PERSON"}, rec.EntityLabels())
	assert.Equal(t, map[string][]string{"PERSON": {"Alice"}}, rec.Entities)

	doc := rec.Document()
	assert.Contains(t, doc, "ner")
	assert.Contains(t, doc, "name")
}

func TestNewRecord_NonObjectNERStaysAField(t *testing.T) {
	rec := domain.NewRecord("kv", map[string]domain.Value{"ner": domain.String("n/a")}, nil)
	assert.Contains(t, rec.Fields, "ner")
	assert.Empty(t, rec.EntityLabels())
}

func TestIsFlat(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want bool
	}{
		{"scalars", map[string]any{"a": 1, "b": "x"}, true},
		{"scalar list", map[string]any{"tags": []any{"a", "b"}}, true},
		{"nested object", map[string]any{"a": map[string]any{"b": 1}}, false},
		{"list of objects", map[string]any{"items": []any{map[string]any{"x": 1}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := domain.NewRecordFromMap("unknown", tt.data, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.IsFlat())
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "acme_crm", domain.SanitizeIdentifier("acme-crm"))
	assert.Equal(t, "a_b_c", domain.SanitizeIdentifier("__a.b c__"))
	assert.Equal(t, "source", domain.SanitizeIdentifier("--"))
	assert.Equal(t, "acme_crm_v2_0123abcd", domain.TableName("acme-crm", 2, "0123abcdef99"))
}
