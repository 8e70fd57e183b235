package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/etl"
)

// ── Relational pool ─────────────────────────────────────────
// One SQLite file per (source, version) under BaseDir:
//   <base>/<sanitized source>/v<version>.db
// Handles are opened lazily and shared; opening is serialised by mu so two
// first callers never create duplicate handles for the same file.

// RelationalPool implements domain.RelationalStore on SQLite files.
type RelationalPool struct {
	baseDir string
	logger  *zap.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ domain.RelationalStore = (*RelationalPool)(nil)

// NewRelationalPool creates a pool rooted at baseDir.
func NewRelationalPool(baseDir string, logger *zap.Logger) *RelationalPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationalPool{baseDir: baseDir, logger: logger, dbs: map[string]*sql.DB{}}
}

// Path returns the database file for a (source, version) pair.
func (p *RelationalPool) Path(sourceID string, version int) string {
	return filepath.Join(p.baseDir, domain.SanitizeIdentifier(sourceID), fmt.Sprintf("v%d.db", version))
}

// handle returns the shared handle for the file. When create is false a
// missing file is reported as apperrors.ErrNotFound instead of created.
func (p *RelationalPool) handle(sourceID string, version int, create bool) (*sql.DB, error) {
	path := p.Path(sourceID, version)

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[path]; ok {
		return db, nil
	}
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("relational store for %s v%d: %w", sourceID, version, apperrors.ErrNotFound)
		}
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	p.dbs[path] = db
	p.logger.Debug("opened relational database", zap.String("path", path))
	return db, nil
}

// Close closes every open handle.
func (p *RelationalPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for path, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(p.dbs, path)
	}
	return errors.Join(errs...)
}

// QuoteIdent quotes a SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnTypes maps schema types onto SQLite column affinities.
var columnTypes = map[string]string{
	domain.TypeString:  "TEXT",
	domain.TypeInteger: "INTEGER",
	domain.TypeNumber:  "REAL",
	domain.TypeBoolean: "INTEGER",
	domain.TypeObject:  "TEXT",
	domain.TypeArray:   "TEXT",
	domain.TypeNull:    "TEXT",
}

func sqlType(schemaType string) string {
	if t, ok := columnTypes[schemaType]; ok {
		return t
	}
	return "TEXT"
}

// CreateTableSQL renders the DDL for a group.
func CreateTableSQL(group domain.TabularSchemaGroup) string {
	cols := []string{QuoteIdent(domain.ColumnRowID) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, f := range group.Fields {
		def := QuoteIdent(f.Name) + " " + sqlType(f.Type)
		if !f.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols,
		QuoteIdent(domain.ColumnSourceID)+" TEXT",
		QuoteIdent(domain.ColumnIngestedAt)+" TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", QuoteIdent(group.TableName), strings.Join(cols, ",\n\t"))
}

func (p *RelationalPool) EnsureTable(ctx context.Context, sourceID string, version int, group domain.TabularSchemaGroup) error {
	db, err := p.handle(sourceID, version, true)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, CreateTableSQL(group)); err != nil {
		return fmt.Errorf("create table %s: %w", group.TableName, err)
	}
	for _, f := range group.Fields {
		if !f.SuggestedIndex {
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			QuoteIdent("idx_"+group.TableName+"_"+f.Name), QuoteIdent(group.TableName), QuoteIdent(f.Name))
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", group.TableName, f.Name, err)
		}
	}
	return nil
}

// InsertRows writes each row with its own statement inside one transaction.
// A row that cannot be serialised or violates a constraint is dropped; the
// rest of the batch still commits.
func (p *RelationalPool) InsertRows(ctx context.Context, sourceID string, version int, table string, rows []map[string]domain.Value) (inserted, dropped int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	db, err := p.handle(sourceID, version, false)
	if err != nil {
		return 0, 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, row := range rows {
		stmt, args, serr := insertStatement(table, sourceID, row)
		if serr == nil {
			_, serr = tx.ExecContext(ctx, stmt, args...)
		}
		if serr != nil {
			if ctx.Err() != nil {
				return inserted, dropped, ctx.Err()
			}
			dropped++
			p.logger.Debug("dropping row",
				zap.String("table", table),
				zap.Int("index", i),
				zap.Error(serr))
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, len(rows), fmt.Errorf("commit: %w", err)
	}
	return inserted, dropped, nil
}

func insertStatement(table, sourceID string, row map[string]domain.Value) (string, []any, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, 0, len(names)+1)
	marks := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		v, err := etl.SerializeValue(row[name])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols = append(cols, QuoteIdent(name))
		marks = append(marks, "?")
		args = append(args, v)
	}
	cols = append(cols, QuoteIdent(domain.ColumnSourceID))
	marks = append(marks, "?")
	args = append(args, sourceID)

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return stmt, args, nil
}

// Columns lists a table's columns in declaration order, bookkeeping
// columns included.
func (p *RelationalPool) Columns(ctx context.Context, sourceID string, version int, table string) ([]string, error) {
	db, err := p.handle(sourceID, version, false)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, apperrors.ErrNotFound)
	}
	return cols, nil
}

// Tables lists the generated tables of a (source, version) database.
func (p *RelationalPool) Tables(ctx context.Context, sourceID string, version int) ([]string, error) {
	db, err := p.handle(sourceID, version, false)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Query runs a translated, parameterised statement.
func (p *RelationalPool) Query(ctx context.Context, sourceID string, version int, q domain.RelationalQuery) ([]map[string]any, error) {
	db, err := p.handle(sourceID, version, false)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
