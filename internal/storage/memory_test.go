package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/domain"
)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Prepare(ctx, "people"))
	docs := []map[string]domain.Value{
		{"name": domain.String("ada"), "age": domain.Int(36), "address": domain.MustFromAny(map[string]any{"city": "london"}), "tags": domain.MustFromAny([]any{"math"})},
		{"name": domain.String("grace"), "age": domain.Int(45), "address": domain.MustFromAny(map[string]any{"city": "nyc"})},
		{"name": domain.String("linus"), "age": domain.String("unknown")},
	}
	n, err := s.InsertBatch(ctx, "people", docs)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return s
}

func names(docs []map[string]any) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["name"].(string)
	}
	return out
}

func TestMemoryStore_Filters(t *testing.T) {
	ctx := context.Background()
	s := seedMemory(t)

	tests := []struct {
		name   string
		filter map[string]any
		want   []string
	}{
		{"all", map[string]any{}, []string{"ada", "grace", "linus"}},
		{"equality", map[string]any{"name": "grace"}, []string{"grace"}},
		{"numeric cross type", map[string]any{"age": float64(36)}, []string{"ada"}},
		{"gt", map[string]any{"age": map[string]any{"$gt": 40}}, []string{"grace"}},
		{"range", map[string]any{"age": map[string]any{"$gte": 36, "$lte": 45}}, []string{"ada", "grace"}},
		{"ne includes missing", map[string]any{"tags": map[string]any{"$ne": "math"}}, []string{"grace", "linus"}},
		{"in", map[string]any{"name": map[string]any{"$in": []any{"ada", "linus"}}}, []string{"ada", "linus"}},
		{"exists", map[string]any{"address": map[string]any{"$exists": false}}, []string{"linus"}},
		{"dotted path", map[string]any{"address.city": "nyc"}, []string{"grace"}},
		{"array element", map[string]any{"tags": "math"}, []string{"ada"}},
		{"or", map[string]any{"$or": []any{map[string]any{"name": "ada"}, map[string]any{"name": "linus"}}}, []string{"ada", "linus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "people", domain.DocumentQuery{Filter: tt.filter, Sort: []domain.SortKey{{Field: "name", Direction: 1}}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(docs))

			n, err := s.Count(ctx, "people", tt.filter)
			require.NoError(t, err)
			assert.EqualValues(t, len(tt.want), n)
		})
	}
}

func TestMemoryStore_SortLimitAndIDs(t *testing.T) {
	ctx := context.Background()
	s := seedMemory(t)

	docs, err := s.Find(ctx, "people", domain.DocumentQuery{
		Filter: map[string]any{"age": map[string]any{"$exists": true}},
		Sort:   []domain.SortKey{{Field: "age", Direction: -1}},
		Limit:  2,
	})
	require.NoError(t, err)
	// Strings sort above numbers.
	assert.Equal(t, []string{"linus", "grace"}, names(docs))
	for _, d := range docs {
		id, ok := d["_id"].(string)
		assert.True(t, ok)
		assert.Len(t, id, 24)
	}

	// Results are copies.
	docs[0]["name"] = "changed"
	again, err := s.Find(ctx, "people", domain.DocumentQuery{Filter: map[string]any{"name": "changed"}})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMemoryStore_Evolve(t *testing.T) {
	ctx := context.Background()
	s := seedMemory(t)

	diff := &domain.SchemaDiff{
		AddedFields: []string{"email", "address.zip", "tags", "tags[]"},
		TypeChanges: map[string]domain.TypeChange{"age": {Old: domain.TypeString, New: domain.TypeInteger}},
	}
	require.NoError(t, s.Evolve(ctx, "people", diff))
	// Running again changes nothing.
	require.NoError(t, s.Evolve(ctx, "people", diff))

	docs, err := s.Find(ctx, "people", domain.DocumentQuery{Sort: []domain.SortKey{{Field: "name", Direction: 1}}})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	for _, d := range docs {
		v, ok := d["email"]
		assert.True(t, ok, "email back-filled on %v", d["name"])
		assert.Nil(t, v)
		assert.Contains(t, d, "tags")
		assert.NotContains(t, d, "tags[]", "list-element paths are not keys")
	}
	addr := docs[0]["address"].(map[string]any)
	assert.NotContains(t, addr, "zip", "nested paths are not back-filled")

	assert.NotContains(t, docs[0], "age_legacy")
	assert.NotContains(t, docs[1], "age_legacy")
	assert.Equal(t, domain.TypeString, docs[2]["age_legacy"])
	assert.Equal(t, "unknown", docs[2]["age"], "original value untouched")
}
