package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
)

func ordersGroup() domain.TabularSchemaGroup {
	return domain.TabularSchemaGroup{
		GroupID:   "g1",
		TableName: "orders_v1_abcd1234",
		Fields: []domain.SchemaField{
			{Name: "id", Type: domain.TypeInteger, SuggestedIndex: true},
			{Name: "customer", Type: domain.TypeString, Nullable: true},
			{Name: "paid", Type: domain.TypeBoolean, Nullable: true},
			{Name: "tags", Type: domain.TypeArray, Nullable: true},
		},
	}
}

func TestRelationalPool_EnsureInsertQuery(t *testing.T) {
	ctx := context.Background()
	pool := NewRelationalPool(t.TempDir(), nil)
	t.Cleanup(func() { pool.Close() })

	group := ordersGroup()
	require.NoError(t, pool.EnsureTable(ctx, "orders", 1, group))
	// Idempotent.
	require.NoError(t, pool.EnsureTable(ctx, "orders", 1, group))

	_, err := os.Stat(pool.Path("orders", 1))
	require.NoError(t, err)

	rows := []map[string]domain.Value{
		{"id": domain.Int(1), "customer": domain.String("ada"), "paid": domain.Bool(true), "tags": domain.MustFromAny([]any{"a", "b"})},
		{"id": domain.Int(2), "customer": domain.Null(), "paid": domain.Bool(false), "tags": domain.Null()},
		// id is NOT NULL, so this row is dropped.
		{"id": domain.Null(), "customer": domain.String("bob"), "paid": domain.Null(), "tags": domain.Null()},
	}
	inserted, dropped, err := pool.InsertRows(ctx, "orders", 1, group.TableName, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, dropped)

	cols, err := pool.Columns(ctx, "orders", 1, group.TableName)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "id", "customer", "paid", "tags", "_source_id", "_ingested_at"}, cols)

	tables, err := pool.Tables(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{group.TableName}, tables)

	res, err := pool.Query(ctx, "orders", 1, domain.RelationalQuery{
		Table:  group.TableName,
		SQL:    `SELECT "id", "customer", "paid", "tags", "_source_id" FROM "orders_v1_abcd1234" WHERE "id" >= ? ORDER BY "id"`,
		Params: []any{1},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.EqualValues(t, 1, res[0]["id"])
	assert.Equal(t, "ada", res[0]["customer"])
	assert.EqualValues(t, 1, res[0]["paid"])
	assert.Equal(t, `["a","b"]`, res[0]["tags"])
	assert.Equal(t, "orders", res[0]["_source_id"])
	assert.Nil(t, res[1]["customer"])
}

func TestRelationalPool_MissingDatabase(t *testing.T) {
	ctx := context.Background()
	pool := NewRelationalPool(t.TempDir(), nil)

	_, err := pool.Columns(ctx, "ghost", 3, "t")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = pool.Tables(ctx, "ghost", 3)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Reads never create the file.
	_, statErr := os.Stat(pool.Path("ghost", 3))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRelationalPool_MissingTable(t *testing.T) {
	ctx := context.Background()
	pool := NewRelationalPool(t.TempDir(), nil)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.EnsureTable(ctx, "orders", 1, ordersGroup()))

	_, err := pool.Columns(ctx, "orders", 1, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRelationalPool_PathSanitisesSource(t *testing.T) {
	pool := NewRelationalPool("/data", nil)
	assert.Equal(t, "/data/acme_orders/v4.db", pool.Path("acme/orders", 4))
}

func TestCreateTableSQL(t *testing.T) {
	ddl := CreateTableSQL(ordersGroup())
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "orders_v1_abcd1234"`)
	assert.Contains(t, ddl, `"_id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, ddl, `"id" INTEGER NOT NULL`)
	assert.Contains(t, ddl, `"customer" TEXT,`)
	assert.Contains(t, ddl, `"paid" INTEGER,`)
	assert.Contains(t, ddl, `"_ingested_at" TIMESTAMP DEFAULT CURRENT_TIMESTAMP`)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteIdent("plain"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}
