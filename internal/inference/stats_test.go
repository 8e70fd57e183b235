package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/domain"
)

func rec(m map[string]any) map[string]domain.Value {
	obj, err := domain.ObjectFromMap(m)
	if err != nil {
		panic(err)
	}
	return obj
}

func TestCollector_Paths(t *testing.T) {
	c := CollectStats([]map[string]domain.Value{
		rec(map[string]any{
			"user":  map[string]any{"name": "a"},
			"tags":  []any{"x", "y"},
			"items": []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
		}),
	})

	assert.Equal(t, []string{"items", "items[]", "items[].id", "tags", "tags[]", "user", "user.name"}, c.Paths())

	tags := c.Stats("tags[]")
	require.NotNil(t, tags)
	assert.Equal(t, 2, tags.PresenceCount)
	assert.Equal(t, 1, tags.RecordCount)
	assert.Equal(t, domain.TypeArray, c.Stats("tags").DominantType())
	assert.Equal(t, domain.TypeObject, c.Stats("user").DominantType())
	assert.Empty(t, c.Stats("user").Sample, "containers are not sampled")
}

func TestCollector_ExamplesAndNumeric(t *testing.T) {
	var records []map[string]domain.Value
	for _, v := range []any{3, 3, 1.5, 7, 9} {
		records = append(records, rec(map[string]any{"n": v}))
	}
	fs := CollectStats(records).Stats("n")

	assert.Len(t, fs.Examples, 3)
	assert.True(t, fs.Examples[0].Equal(domain.Int(3)))
	assert.Equal(t, 1.5, fs.Numeric.Min)
	assert.Equal(t, 9.0, fs.Numeric.Max)
	assert.Equal(t, 5, fs.Numeric.Count)
	assert.Equal(t, domain.TypeNumber, fs.DominantType())
}

func TestCollector_SampleCap(t *testing.T) {
	records := make([]map[string]domain.Value, 0, 600)
	for i := 0; i < 600; i++ {
		records = append(records, rec(map[string]any{"id": i}))
	}
	fs := CollectStats(records).Stats("id")
	assert.Len(t, fs.Sample, 500)
	assert.Equal(t, 600, fs.PresenceCount)
}

func TestIsPrimaryKeyCandidate(t *testing.T) {
	unique := &FieldStats{TypeCounts: map[string]int{"integer": 3}, Sample: []domain.Value{domain.Int(1), domain.Int(2), domain.Int(3)}}
	assert.True(t, IsPrimaryKeyCandidate(unique, 1.0))
	assert.False(t, IsPrimaryKeyCandidate(unique, 0.8), "too sparse")

	repeated := &FieldStats{TypeCounts: map[string]int{"string": 3}, Sample: []domain.Value{domain.String("A"), domain.String("A"), domain.String("B")}}
	assert.False(t, IsPrimaryKeyCandidate(repeated, 1.0))

	obj := &FieldStats{TypeCounts: map[string]int{"object": 3}, Sample: nil}
	assert.False(t, IsPrimaryKeyCandidate(obj, 1.0))
}

func TestSuggestEnum(t *testing.T) {
	fs := &FieldStats{Sample: []domain.Value{
		domain.String("pending"), domain.String("active"), domain.String("inactive"), domain.String("active"),
	}}
	got := SuggestEnum(fs, 0.8)
	require.Len(t, got, 3)
	assert.Equal(t, "active", got[0].Text())
	assert.Equal(t, "pending", got[2].Text())

	assert.Nil(t, SuggestEnum(fs, 0.4))

	many := &FieldStats{}
	for i := 0; i < 11; i++ {
		many.Sample = append(many.Sample, domain.Int(int64(i)))
	}
	assert.Nil(t, SuggestEnum(many, 1.0))

	mixed := &FieldStats{Sample: []domain.Value{domain.String("b"), domain.Int(2), domain.Null()}}
	got = SuggestEnum(mixed, 1.0)
	assert.Equal(t, []string{"2", "b", "null"}, []string{got[0].Text(), got[1].Text(), got[2].Text()})
}

func TestSuggestCoercion(t *testing.T) {
	fs := &FieldStats{TypeCounts: map[string]int{"string": 10}, Semantics: SemanticCounts{LooksLikeNumber: 8}}
	assert.Equal(t, domain.CoercionStringsMostlyNumeric, SuggestCoercion(fs))

	fs.Semantics.LooksLikeNumber = 2
	assert.Empty(t, SuggestCoercion(fs))

	ints := &FieldStats{TypeCounts: map[string]int{"integer": 10, "string": 1}, Semantics: SemanticCounts{LooksLikeNumber: 1}}
	assert.Empty(t, SuggestCoercion(ints), "dominant type must be string")
}
