package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/etl"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, typ string, cfg etl.SourceConfig) []etl.Record {
	t.Helper()
	src, err := etl.GetSource(typ)
	require.NoError(t, err)
	records, read, err := etl.ReadAll(context.Background(), src, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, len(records), read)
	return records
}

func TestRegisteredSources(t *testing.T) {
	tags := map[string]string{}
	for _, spec := range etl.ListSources() {
		tags[spec.Type] = spec.RecordTag
	}
	assert.Equal(t, map[string]string{
		"csv_file":   "csv_block",
		"database":   "db_row",
		"html_table": "html_table",
		"http":       "json",
		"json_file":  "json",
		"kv_file":    "kv",
		"yaml_file":  "yaml_block",
	}, tags)
}

func TestJSONFileSource_KeepsNesting(t *testing.T) {
	path := writeFile(t, "data.json", `{"data": {"items": [
		{"id": 1, "user": {"name": "ana"}, "tags": ["a", "b"]},
		{"id": 2, "price": 9.5},
		"skipped"
	]}}`)

	records := readAll(t, "json_file", etl.SourceConfig{"filePath": path, "dataPath": "data.items"})
	require.Len(t, records, 2)
	assert.Equal(t, "json", records[0].SourceType)
	assert.Equal(t, map[string]any{"name": "ana"}, records[0].Data["user"])
	assert.Equal(t, json.Number("1"), records[0].Data["id"])
	assert.Equal(t, "1", records[1].Provenance["record_index"])

	normalized, err := etl.Normalize(records)
	require.NoError(t, err)
	id, ok := normalized[0].Fields["id"].AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestJSONFileSource_BadPath(t *testing.T) {
	path := writeFile(t, "data.json", `{"data": []}`)
	src, err := etl.GetSource("json_file")
	require.NoError(t, err)
	_, _, err = etl.ReadAll(context.Background(), src, etl.SourceConfig{"filePath": path, "dataPath": "missing"}, nil)
	assert.Error(t, err)
}

func TestCSVFileSource(t *testing.T) {
	path := writeFile(t, "users.csv", "User ID,Full Name,Active,Score\n1,Ana,yes,9.5\n2,Bo,no,\n")

	records := readAll(t, "csv_file", etl.SourceConfig{"filePath": path})
	require.Len(t, records, 2)
	assert.Equal(t, "csv_block", records[0].SourceType)
	assert.Equal(t, map[string]any{"user_id": int64(1), "full_name": "Ana", "active": true, "score": 9.5}, records[0].Data)
	assert.Nil(t, records[1].Data["score"])
	assert.Equal(t, "1", records[1].Provenance["row_index"])
}

func TestYAMLFileSource_MultiDocument(t *testing.T) {
	path := writeFile(t, "svc.yaml", "name: api\nreplicas: 3\nlabels:\n  tier: web\n---\n- name: worker\n  replicas: 1\n- name: cron\n")

	records := readAll(t, "yaml_file", etl.SourceConfig{"filePath": path})
	require.Len(t, records, 3)
	assert.Equal(t, "yaml_block", records[0].SourceType)
	assert.Equal(t, "api", records[0].Data["name"])
	assert.Equal(t, "1", records[1].Provenance["document_index"])

	normalized, err := etl.Normalize(records)
	require.NoError(t, err)
	_, ok := normalized[0].Fields["labels"].AsObject()
	assert.True(t, ok)
}

func TestKVFileSource(t *testing.T) {
	path := writeFile(t, "hosts.txt", "# inventory\nHost Name: alpha\nport=22\nnot a pair\n\nHost Name: beta\nport = 2222\nenabled: false\n")

	records := readAll(t, "kv_file", etl.SourceConfig{"filePath": path})
	require.Len(t, records, 2)
	assert.Equal(t, "kv", records[0].SourceType)
	assert.Equal(t, map[string]any{"host_name": "alpha", "port": int64(22)}, records[0].Data)
	assert.Equal(t, map[string]any{"host_name": "beta", "port": int64(2222), "enabled": false}, records[1].Data)
	assert.Equal(t, "6", records[1].Provenance["line"])
}

func TestHTMLTableSource(t *testing.T) {
	path := writeFile(t, "page.html", `<html><body>
<table>
  <thead><tr><th>SKU</th><th>Unit Price</th></tr></thead>
  <tbody><tr><td>A-1</td><td>1,5</td></tr><tr><td>B-2</td><td>3</td></tr></tbody>
</table>
<table>
  <tr><th>City</th><th>Pop</th></tr>
  <tr><td>Lisbon</td><td>545000</td></tr>
  <tr><td>odd</td><td>row</td><td>width</td></tr>
</table>
<table></table>
</body></html>`)

	records := readAll(t, "html_table", etl.SourceConfig{"filePath": path})
	require.Len(t, records, 4)

	assert.Equal(t, "html_table", records[0].SourceType)
	assert.Equal(t, "html_table_1", records[0].Provenance["table_id"])
	assert.Equal(t, map[string]any{"sku": "A-1", "unit_price": "1,5"}, records[0].Data)
	assert.Equal(t, map[string]any{"sku": "B-2", "unit_price": int64(3)}, records[1].Data)

	assert.Equal(t, "html_table_2", records[2].Provenance["table_id"])
	assert.Equal(t, map[string]any{"city": "Lisbon", "pop": int64(545000)}, records[2].Data)
	assert.Equal(t, map[string]any{"col_0": "odd", "col_1": "row", "col_2": "width"}, records[3].Data)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"id": 7, "meta": {"ok": true}}]}`))
	}))
	defer srv.Close()

	records := readAll(t, "http", etl.SourceConfig{
		"url":      srv.URL,
		"headers":  `{"X-Api-Key": "token"}`,
		"dataPath": "results",
	})
	require.Len(t, records, 1)
	assert.Equal(t, "json", records[0].SourceType)
	assert.Equal(t, map[string]any{"ok": true}, records[0].Data["meta"])
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src, err := etl.GetSource("http")
	require.NoError(t, err)
	_, _, err = etl.ReadAll(context.Background(), src, etl.SourceConfig{"url": srv.URL}, nil)
	assert.ErrorContains(t, err, "http 401")
}

func TestDatabaseSource_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	seedSQLite(t, path)

	records := readAll(t, "database", etl.SourceConfig{
		"driver":    "sqlite",
		"host":      path,
		"query":     "SELECT id, name FROM products ORDER BY id",
		"fetchSize": 2,
	})
	require.Len(t, records, 3)
	assert.Equal(t, "db_row", records[0].SourceType)
	assert.Equal(t, "widget", records[0].Data["name"])
	assert.Equal(t, "2", records[2].Provenance["row_index"])
}

func TestDatabaseSource_RequiresQueryOrTable(t *testing.T) {
	_, _, err := connectionFromConfig(etl.SourceConfig{"driver": "sqlite"})
	assert.ErrorContains(t, err, "query or table is required")

	_, query, err := connectionFromConfig(etl.SourceConfig{"driver": "sqlite", "table": "products"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "products"`, query)

	_, query, err = connectionFromConfig(etl.SourceConfig{"driver": "mongodb", "table": "orders"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection":"orders"}`, query)
}

func TestDatabaseSource_TablesAndWholeTableRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shop.db")
	seedSQLite(t, path)

	tables, err := etl.ListTables(ctx, "database", etl.SourceConfig{"driver": "sqlite", "host": path})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "products", tables[0].Name)
	assert.Equal(t, []etl.Field{{Name: "id", Type: "INTEGER"}, {Name: "name", Type: "TEXT"}}, tables[0].Fields)

	records := readAll(t, "database", etl.SourceConfig{"driver": "sqlite", "host": path, "table": "products"})
	assert.Len(t, records, 3)

	_, err = etl.ListTables(ctx, "json_file", etl.SourceConfig{})
	assert.ErrorContains(t, err, "cannot list tables")
}

func TestDatabaseSource_UnreachableFailsOnOpen(t *testing.T) {
	src, err := etl.GetSource("database")
	require.NoError(t, err)
	_, err = src.Discover(context.Background(), etl.SourceConfig{
		"driver": "sqlite",
		"host":   filepath.Join(t.TempDir(), "missing", "nested", "x.db"),
		"query":  "SELECT 1",
	})
	assert.ErrorContains(t, err, "connect sqlite")
}

func TestInferScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"N/A", nil},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"2.5", 2.5},
		{"1e3", 1000.0},
		{"yes", true},
		{"False", false},
		{"NaN", "NaN"},
		{"1,5", "1,5"},
		{"2024-01-02", "2024-01-02"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, inferScalar(tt.in))
		})
	}
}

func TestStandardizeKey(t *testing.T) {
	assert.Equal(t, "unit_price", standardizeKey(" Unit Price ($) "))
	assert.Equal(t, "unknown", standardizeKey("---"))
}
