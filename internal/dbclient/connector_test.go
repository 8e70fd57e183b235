package dbclient

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"dynetl/internal/domain"
)

func TestIsReadQuery(t *testing.T) {
	assert.True(t, isReadQuery("  select * from t"))
	assert.True(t, isReadQuery("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.True(t, isReadQuery("pragma table_info(t)"))
	assert.False(t, isReadQuery("DELETE FROM t"))
	assert.False(t, isReadQuery("insert into t values (1)"))
}

func TestBuildDSNs(t *testing.T) {
	conn := &domain.DatabaseConnection{Host: "db", Database: "shop", Username: "etl", Password: "pw"}

	assert.Equal(t, "host=db port=5432 user=etl password=pw dbname=shop sslmode=disable", buildPostgresDSN(conn))
	assert.Equal(t, "etl:pw@tcp(db:3306)/shop?parseTime=true&charset=utf8mb4", buildMySQLDSN(conn))
	assert.Equal(t, "mongodb://etl:pw@db:27017", mongoURI(conn))

	conn.URI = "postgres://etl:pw@db/shop"
	assert.Equal(t, conn.URI, buildPostgresDSN(conn))
}

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "shop", mongoDatabaseName(&domain.DatabaseConnection{Database: "shop"}, "mongodb://h/other"))
	assert.Equal(t, "other", mongoDatabaseName(&domain.DatabaseConnection{}, "mongodb+srv://u:p@h/other?retryWrites=true"))
	assert.Equal(t, "test", mongoDatabaseName(&domain.DatabaseConnection{}, "mongodb://localhost:27017"))
}

func TestPlainBSON(t *testing.T) {
	oid := bson.NewObjectID()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	got := PlainBSON(bson.D{
		{Key: "_id", Value: oid},
		{Key: "at", Value: bson.NewDateTimeFromTime(at)},
		{Key: "tags", Value: bson.A{"a", int32(2)}},
	})

	assert.Equal(t, map[string]any{
		"_id":  oid.Hex(),
		"at":   "2024-03-01T12:00:00Z",
		"tags": []any{"a", int32(2)},
	}, got)
}

func TestSQLiteConnector_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, name) VALUES (1, 'ana'), (2, 'bo'), (3, 'cy')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	c, err := NewConnector(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Database: path}, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.TestConnection(ctx))

	page, err := c.Execute(ctx, "SELECT id, name FROM users ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, page.Columns)
	assert.Len(t, page.Rows, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "ana", page.Rows[0][1])

	page, err = c.FetchMore(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, 3, page.TotalFetched)

	_, err = c.Execute(ctx, "DELETE FROM users", 10)
	assert.Error(t, err)

	schema, err := c.Introspect(ctx)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "users", schema.Tables[0].Name)
	assert.Len(t, schema.Tables[0].Columns, 2)
}
