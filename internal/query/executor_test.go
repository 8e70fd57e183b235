package query_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/etl"
	"dynetl/internal/query"
	"dynetl/internal/storage"
)

type fixture struct {
	exec   *query.Executor
	engine *etl.Engine
	table  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	catalog, err := storage.OpenCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	schemas := storage.NewSchemaStore(catalog)
	docs := storage.NewMemoryStore()
	rel := storage.NewRelationalPool(filepath.Join(dir, "sqlite"), nil)
	t.Cleanup(func() { rel.Close() })

	engine := etl.NewEngine(schemas, docs, rel, etl.Options{}, nil)

	var recs []domain.NormalizedRecord
	for _, row := range []map[string]any{
		{"id": 1, "status": "active", "owner": "ada"},
		{"id": 2, "status": "pending", "owner": "bob"},
		{"id": 3, "status": "closed", "owner": "cy"},
		{"id": 4, "status": "active", "owner": "dee"},
		{"id": 5, "status": "pending", "owner": "eve"},
		{"id": 6, "status": "active", "owner": "fay"},
		{"id": 7, "status": "active", "owner": "gus"},
		{"id": 8, "status": "pending", "owner": "hal"},
	} {
		r, err := domain.NewRecordFromMap("csv_block", row, nil)
		require.NoError(t, err)
		recs = append(recs, r)
	}
	docRec, err := domain.NewRecordFromMap("json", map[string]any{"ticket": map[string]any{"id": 1}, "priority": 3}, nil)
	require.NoError(t, err)
	recs = append(recs, docRec)

	res, err := engine.Ingest(ctx, domain.IngestRequest{SourceID: "tickets", Records: recs})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)

	return &fixture{
		exec:   query.NewExecutor(schemas, docs, rel, query.Options{}, nil),
		engine: engine,
		table:  res.Tables[0],
	}
}

func TestExecute_RelationalIn(t *testing.T) {
	f := newFixture(t)
	res, err := f.exec.Execute(context.Background(), "tickets", domain.QueryRequest{
		"engine": "relational",
		"table":  f.table,
		"where":  map[string]any{"status": map[string]any{"$in": []any{"active", "pending"}}},
		"limit":  5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.ResultCount)
	require.Len(t, res.Results, 5)
	for _, row := range res.Results {
		assert.Contains(t, []any{"active", "pending"}, row["status"])
	}

	q, ok := res.Query.(*domain.RelationalQuery)
	require.True(t, ok)
	assert.Contains(t, q.SQL, `"status" IN (?, ?)`)
	assert.NotContains(t, q.SQL, "active")
	assert.GreaterOrEqual(t, res.ExecutionTimeMS, 0.0)
}

func TestExecute_RelationalErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exec.Execute(ctx, "tickets", domain.QueryRequest{"engine": "relational", "table": f.table, "select": []any{"nope"}})
	assert.True(t, apperrors.IsClientError(err))

	_, err = f.exec.Execute(ctx, "tickets", domain.QueryRequest{"engine": "relational", "table": "missing"})
	assert.True(t, apperrors.IsClientError(err))

	_, err = f.exec.Execute(ctx, "nobody", domain.QueryRequest{"engine": "relational", "table": f.table})
	assert.True(t, apperrors.IsSchemaInference(err))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.exec.Execute(ctx, "tickets", domain.QueryRequest{"engine": "graph"})
	assert.True(t, apperrors.IsClientError(err))

	_, err = f.exec.Execute(ctx, "tickets", domain.QueryRequest{"engine": 7})
	assert.True(t, apperrors.IsClientError(err))
}

func TestExecute_RelationalInjectionWarning(t *testing.T) {
	f := newFixture(t)
	res, err := f.exec.Execute(context.Background(), "tickets", domain.QueryRequest{
		"engine": "relational",
		"table":  f.table,
		"where":  map[string]any{"owner": "' OR 1=1 --"},
	})
	require.NoError(t, err)
	assert.Zero(t, res.ResultCount, "literal is bound, not interpolated")
	assert.NotEmpty(t, res.Warnings)
}

func TestExecute_Document(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.exec.Execute(ctx, "tickets", domain.QueryRequest{
		"filter": map[string]any{"ticket.id": 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.ResultCount)
	assert.EqualValues(t, 3, res.Results[0]["priority"])
	_, ok := res.Query.(*domain.DocumentQuery)
	assert.True(t, ok)

	res, err = f.exec.Execute(ctx, "tickets", domain.QueryRequest{"engine": "document", "limit": 0})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ResultCount, "limit 0 counts")
	assert.Empty(t, res.Results)

	_, err = f.exec.Execute(ctx, "tickets", domain.QueryRequest{"sort": []any{[]any{"priority", "sideways"}}})
	assert.True(t, apperrors.IsClientError(err))
}
