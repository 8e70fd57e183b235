package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/domain"
	"dynetl/internal/etl"
)

func TestSourceConfigFromArgs(t *testing.T) {
	abs, err := filepath.Abs("data/people.csv")
	require.NoError(t, err)

	tests := []struct {
		name     string
		typ      string
		target   string
		sets     []string
		wantType string
		wantCfg  etl.SourceConfig
		wantErr  bool
	}{
		{name: "csv by extension", target: "data/people.csv", wantType: "csv_file", wantCfg: etl.SourceConfig{"filePath": abs}},
		{name: "url", target: "https://api.example.com/items", wantType: "http", wantCfg: etl.SourceConfig{"url": "https://api.example.com/items"}},
		{name: "database query with sets", typ: "database", target: "SELECT * FROM t", sets: []string{"driver=sqlite", "host=/tmp/x.db"},
			wantType: "database", wantCfg: etl.SourceConfig{"query": "SELECT * FROM t", "driver": "sqlite", "host": "/tmp/x.db"}},
		{name: "unknown extension", target: "notes.pdf", wantErr: true},
		{name: "bad set", typ: "http", target: "http://x", sets: []string{"novalue"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, cfg, err := SourceConfigFromArgs(tt.typ, tt.target, tt.sets)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantCfg, cfg)
		})
	}
}

func runCLI(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand(&out)
	require.NoError(t, cmd.Run(context.Background(), append([]string{"dynetl"}, args...)))
	return out.Bytes()
}

func TestCLI_IngestSchemaHealth(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ETL_MONGODB_URI", MemoryURI)
	t.Setenv("ETL_CATALOG_PATH", filepath.Join(dir, "catalog.db"))
	t.Setenv("ETL_SQLITE_BASE_DIR", filepath.Join(dir, "sqlite"))
	t.Setenv("ETL_LOG_LEVEL", "error")
	configPath := filepath.Join(dir, "missing.yaml")

	csvPath := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,name\n1,Alice\n2,Bob\n"), 0o644))

	var upload domain.UploadResult
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath, "ingest", "--source", "people", csvPath), &upload))
	assert.Equal(t, 1, upload.Version)
	assert.Equal(t, domain.StatusSuccess, upload.Status)
	assert.Equal(t, 2, upload.RowsInserted)

	var schema domain.SchemaMetadata
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath, "schema", "--source", "people"), &schema))
	assert.Equal(t, 1, schema.Version)
	assert.Equal(t, "people", schema.SourceID)

	// Relational rows live on disk, so a fresh process can query them.
	require.Len(t, upload.Tables, 1)
	q := `{"engine":"relational","table":"` + upload.Tables[0] + `","where":{"name":"Bob"}}`
	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath, "query", "--source", "people", q), &result))
	assert.Equal(t, 1, result.ResultCount)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath, "health"), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestCLI_Jobs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ETL_MONGODB_URI", MemoryURI)
	t.Setenv("ETL_CATALOG_PATH", filepath.Join(dir, "catalog.db"))
	t.Setenv("ETL_SQLITE_BASE_DIR", filepath.Join(dir, "sqlite"))
	t.Setenv("ETL_LOG_LEVEL", "error")
	configPath := filepath.Join(dir, "missing.yaml")

	jsonPath := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"kind":"click"},{"kind":"view"}]`), 0o644))

	var job domain.IngestJob
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath,
		"jobs", "create", "--name", "events", "--source", "events",
		"--transforms", `[{"type":"limit","config":{"count":1}}]`, jsonPath), &job))
	assert.Equal(t, "json_file", job.SourceType)
	assert.Equal(t, domain.TriggerManual, job.TriggerType)

	var res domain.UploadResult
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath, "jobs", "run", job.ID), &res))
	assert.Equal(t, 1, res.DocumentsInserted)

	var logs []domain.IngestRunLog
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath, "jobs", "logs", job.ID), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, domain.StatusSuccess, logs[0].Status)
}

func TestCLI_Tables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ETL_MONGODB_URI", MemoryURI)
	t.Setenv("ETL_CATALOG_PATH", filepath.Join(dir, "catalog.db"))
	t.Setenv("ETL_SQLITE_BASE_DIR", filepath.Join(dir, "sqlite"))
	t.Setenv("ETL_LOG_LEVEL", "error")
	configPath := filepath.Join(dir, "missing.yaml")

	dbPath := filepath.Join(dir, "erp.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE invoices (id INTEGER, total REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE customers (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var tables []etl.Table
	require.NoError(t, json.Unmarshal(runCLI(t, "--config", configPath,
		"tables", "--set", "driver=sqlite", "--set", "host="+dbPath), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "customers", tables[0].Name)
	assert.Equal(t, "invoices", tables[1].Name)
}
