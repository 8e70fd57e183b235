package etl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/domain"
)

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard(toSet(nil), toSet(nil)))
	assert.Equal(t, 0.0, Jaccard(toSet([]string{"a"}), toSet(nil)))
	assert.InDelta(t, 0.5, Jaccard(toSet([]string{"a", "b"}), toSet([]string{"b", "c", "a", "d"})), 1e-9)
	assert.Equal(t, 1.0, Jaccard(toSet([]string{"a", "b"}), toSet([]string{"b", "a"})))
}

func TestGroup_DisjointShapesSplit(t *testing.T) {
	records := []domain.NormalizedRecord{
		rec("csv_block", map[string]any{"id": 1, "name": "ada", "email": "a@x"}),
		rec("csv_block", map[string]any{"sku": "k1", "price": 9.5, "qty": 2}),
		rec("csv_block", map[string]any{"id": 2, "name": "bob", "email": "b@x"}),
		rec("csv_block", map[string]any{"sku": "k2", "price": 3.25, "qty": 1}),
	}
	plans := NewTabularGrouper().Group(records, "shop", 2)
	require.Len(t, plans, 2)

	people, items := plans[0].Group, plans[1].Group
	assert.Equal(t, "grp_01", people.GroupID)
	assert.Equal(t, 2, people.RecordCount)
	assert.Equal(t, []string{"email", "id", "name"}, fieldNames(people.Fields))
	assert.Equal(t, []string{"price", "qty", "sku"}, fieldNames(items.Fields))
	assert.True(t, strings.HasPrefix(people.TableName, "shop_v2_"))
	assert.NotEqual(t, people.TableName, items.TableName)

	f, ok := fieldByName(items.Fields, "price")
	require.True(t, ok)
	assert.Equal(t, domain.TypeNumber, f.Type)
	assert.False(t, f.Nullable)
}

func TestGroup_OverlappingShapesMerge(t *testing.T) {
	records := []domain.NormalizedRecord{
		rec("kv", map[string]any{"host": "a", "port": 80, "tls": false, "owner": "ops", "zone": "eu", "env": "prod"}),
		rec("kv", map[string]any{"host": "b", "port": 443, "tls": true, "owner": "ops", "zone": "eu", "env": "prod", "note": nil}),
		rec("kv", map[string]any{"host": "c", "port": 22, "tls": false, "zone": "us", "env": "dev"}),
	}
	plans := NewTabularGrouper().Group(records, "hosts", 1)
	require.Len(t, plans, 1)

	g := plans[0].Group
	assert.Equal(t, 3, g.RecordCount)
	note, _ := fieldByName(g.Fields, "note")
	assert.True(t, note.Nullable)
	assert.Equal(t, domain.TypeString, note.Type, "all-null columns are text")
	owner, _ := fieldByName(g.Fields, "owner")
	assert.True(t, owner.Nullable, "missing from one record")
	host, _ := fieldByName(g.Fields, "host")
	assert.False(t, host.Nullable)
}

func TestGroup_EntityLabelsSeparateGroups(t *testing.T) {
	withPeople := rec("csv_block", map[string]any{"a": 1, "b": 2, "ner": map[string]any{"PERSON": []any{"Ada"}}})
	withOrgs := rec("csv_block", map[string]any{"a": 3, "b": 4, "ner": map[string]any{"ORG": []any{"ACME"}}})

	plans := NewTabularGrouper().Group([]domain.NormalizedRecord{withPeople, withOrgs}, "s", 1)
	require.Len(t, plans, 2)
	assert.Equal(t, []string{"PERSON"}, plans[0].Group.EntityLabels)
	assert.Equal(t, []string{"ORG"}, plans[1].Group.EntityLabels)
	// ner never becomes a column.
	assert.Equal(t, []string{"a", "b"}, fieldNames(plans[0].Group.Fields))
}

func TestGroupSignature_OrderIndependent(t *testing.T) {
	a := []domain.SchemaField{{Name: "x", Type: domain.TypeInteger}, {Name: "y", Type: domain.TypeString}}
	b := []domain.SchemaField{{Name: "y", Type: domain.TypeString}, {Name: "x", Type: domain.TypeInteger}}
	assert.Equal(t, GroupSignature(a, []string{"P", "O"}), GroupSignature(b, []string{"O", "P"}))
	assert.NotEqual(t, GroupSignature(a, nil), GroupSignature(a, []string{"P"}))
	assert.Len(t, GroupSignature(a, nil), 40)
}

func TestGroupSignature_TokenBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		fieldsA []domain.SchemaField
		labelsA []string
		fieldsB []domain.SchemaField
		labelsB []string
	}{
		{"name runs into type",
			[]domain.SchemaField{{Name: "a", Type: domain.TypeInteger}, {Name: "b", Type: domain.TypeString}}, nil,
			[]domain.SchemaField{{Name: "aintegerb", Type: domain.TypeString}}, nil},
		{"labels split differently",
			[]domain.SchemaField{{Name: "a", Type: domain.TypeString}}, []string{"ORG", "PERSON"},
			[]domain.SchemaField{{Name: "a", Type: domain.TypeString}}, []string{"ORGPERSON"}},
		{"label looks like a field",
			[]domain.SchemaField{{Name: "a", Type: domain.TypeString}}, []string{"bstring"},
			[]domain.SchemaField{{Name: "a", Type: domain.TypeString}, {Name: "b", Type: domain.TypeString}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, GroupSignature(tt.fieldsA, tt.labelsA), GroupSignature(tt.fieldsB, tt.labelsB))
		})
	}
}

func fieldNames(fields []domain.SchemaField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func fieldByName(fields []domain.SchemaField, name string) (domain.SchemaField, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return domain.SchemaField{}, false
}
