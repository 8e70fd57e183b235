package inference

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/domain"
)

func aliceBob() []map[string]domain.Value {
	return []map[string]domain.Value{
		rec(map[string]any{"id": 1, "name": "Alice"}),
		rec(map[string]any{"id": 2, "name": "Bob"}),
		rec(map[string]any{"id": 3}),
	}
}

func TestGenerate_FlatBatch(t *testing.T) {
	schema := NewGenerator().Generate(aliceBob(), "people")

	require.Len(t, schema.Fields, 2)
	id, ok := schema.Field("id")
	require.True(t, ok)
	assert.Equal(t, domain.TypeInteger, id.Type)
	assert.False(t, id.Nullable)
	assert.Equal(t, 1.0, id.Confidence)
	assert.True(t, id.PrimaryKeyCandidate)
	assert.True(t, id.SuggestedIndex)
	assert.Empty(t, id.Path)

	name, ok := schema.Field("name")
	require.True(t, ok)
	assert.Equal(t, domain.TypeString, name.Type)
	assert.True(t, name.Nullable)
	assert.Equal(t, 1.0, name.Confidence)
	require.NotNil(t, name.ExampleValue)
	assert.Equal(t, "Alice", name.ExampleValue.Text())

	assert.Equal(t, 1, schema.Version)
	assert.Equal(t, 3, schema.RecordCount)
	assert.Equal(t, "people", schema.SourceID)
	assert.Contains(t, schema.SchemaID, "people_v1_")
	assert.NotEmpty(t, schema.Signature)
}

func TestGenerate_ExplicitNullIsNullable(t *testing.T) {
	withNull := NewGenerator().Generate([]map[string]domain.Value{
		rec(map[string]any{"id": 1, "email": "a@example.com"}),
		rec(map[string]any{"id": 2, "email": nil}),
	}, "contacts")
	email, ok := withNull.Field("email")
	require.True(t, ok)
	assert.True(t, email.Nullable)

	filled := NewGenerator().Generate([]map[string]domain.Value{
		rec(map[string]any{"id": 1, "email": "a@example.com"}),
		rec(map[string]any{"id": 2, "email": "b@example.com"}),
	}, "contacts")
	email, ok = filled.Field("email")
	require.True(t, ok)
	assert.False(t, email.Nullable)
	assert.NotEqual(t, filled.Signature, withNull.Signature)
}

func TestGenerate_Empty(t *testing.T) {
	schema := NewGenerator().Generate(nil, "empty")
	assert.Empty(t, schema.Fields)
	assert.Equal(t, 0, schema.RecordCount)
	assert.Equal(t, 1, schema.Version)
}

func TestGenerate_NestedPaths(t *testing.T) {
	schema := NewGenerator().Generate([]map[string]domain.Value{
		rec(map[string]any{"user": map[string]any{"city": "Lisbon"}}),
	}, "nested")

	city, ok := schema.Field("user.city")
	require.True(t, ok)
	assert.Equal(t, "user.city", city.Path)
	assert.False(t, IsRelationalCompatible(schema.Fields))
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator()
	a := g.Generate(aliceBob(), "people")
	b := g.Generate(aliceBob(), "people")

	assert.Equal(t, a.Fields, b.Fields)
	assert.Equal(t, a.Signature, b.Signature)
	assert.True(t, IsDuplicate(a, b))
}

func TestSignature_OrderIndependent(t *testing.T) {
	records := []map[string]domain.Value{
		rec(map[string]any{"a": 1, "b": "x", "c": true}),
		rec(map[string]any{"c": false, "a": 2}),
		rec(map[string]any{"b": "y", "a": 3, "c": true}),
		rec(map[string]any{"a": 4.5}),
	}
	g := NewGenerator()
	base := g.Generate(records, "s").Signature

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]map[string]domain.Value(nil), records...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, base, g.Generate(shuffled, "s").Signature)
	}

	fields := g.Generate(records, "s").Fields
	reversed := make([]domain.SchemaField, len(fields))
	for i, f := range fields {
		f.Confidence = 0.1
		reversed[len(fields)-1-i] = f
	}
	assert.Equal(t, Signature(fields), Signature(reversed))
}

func TestDetectSchemaChange(t *testing.T) {
	g := NewGenerator()
	v1 := g.Generate(aliceBob(), "people")
	withEmail := append(aliceBob(), rec(map[string]any{"id": 4, "name": "Dan", "email": "d@x.io"}))
	v2 := g.Generate(withEmail, "people")

	diff := DetectSchemaChange(v1, v2)
	assert.Equal(t, []string{"email"}, diff.AddedFields)
	assert.Empty(t, diff.RemovedFields)
	assert.Empty(t, diff.TypeChanges)
	assert.False(t, IsDuplicate(v1, v2))

	retyped := g.Generate([]map[string]domain.Value{
		rec(map[string]any{"id": "a", "name": "x"}),
		rec(map[string]any{"id": "b", "name": "y"}),
	}, "people")
	diff = DetectSchemaChange(v1, retyped)
	assert.Equal(t, domain.TypeChange{Old: "integer", New: "string"}, diff.TypeChanges["id"])
	assert.Contains(t, diff.MigrationNote, "id_legacy")

	none := DetectSchemaChange(v1, v1)
	assert.True(t, none.IsEmpty())
	assert.Equal(t, "schema structure unchanged", none.MigrationNote)
}
