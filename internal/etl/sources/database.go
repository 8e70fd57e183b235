package sources

import (
	"context"
	"fmt"

	"dynetl/internal/dbclient"
	"dynetl/internal/domain"
	"dynetl/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads rows from an external database through a read-only dbclient
// connector. Rows are tagged "db_row", which has no fixed engine, so flat
// rows land in the relational store and nested Mongo documents do not.

const dbFetchSize = 500

type databaseSource struct {
	connect func(*domain.DatabaseConnection) (dbclient.Connector, error)
}

func init() {
	etl.RegisterSource(&databaseSource{
		connect: func(conn *domain.DatabaseConnection) (dbclient.Connector, error) {
			return dbclient.NewConnector(conn, nil)
		},
	})
}

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:      "database",
		Label:     "Database Query",
		RecordTag: "db_row",
		ConfigFields: []etl.ConfigField{
			{Key: "driver", Label: "Driver", Type: "select", Required: true, Options: []string{"postgres", "mysql", "sqlite", "mongodb"}},
			{Key: "uri", Label: "Connection URI", Type: "password", Required: false, Help: "Overrides host/port/credentials when set"},
			{Key: "host", Label: "Host", Type: "string", Required: false, Help: "Hostname, or file path for sqlite"},
			{Key: "port", Label: "Port", Type: "int", Required: false},
			{Key: "database", Label: "Database", Type: "string", Required: false},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false},
			{Key: "sslMode", Label: "SSL Mode", Type: "string", Required: false, Default: "disable"},
			{Key: "query", Label: "Query", Type: "textarea", Required: false, Help: "SELECT statement, or a JSON find/aggregate for mongodb"},
			{Key: "table", Label: "Table", Type: "string", Required: false, Help: "Read a whole table or collection when no query is given"},
		},
	}
}

// connectionFromConfig decodes the connection part of a source config and
// its read: "query", or else every row of "table".
func connectionFromConfig(cfg etl.SourceConfig) (*domain.DatabaseConnection, string, error) {
	conn, err := connectionOnly(cfg)
	if err != nil {
		return nil, "", err
	}
	if query := stringOpt(cfg, "query"); query != "" {
		return conn, query, nil
	}
	if table := stringOpt(cfg, "table"); table != "" {
		query, err := dbclient.TableQuery(conn.Driver, table)
		if err != nil {
			return nil, "", err
		}
		return conn, query, nil
	}
	return nil, "", fmt.Errorf("query or table is required")
}

func connectionOnly(cfg etl.SourceConfig) (*domain.DatabaseConnection, error) {
	conn := &domain.DatabaseConnection{
		Driver:   domain.DatabaseDriver(stringOpt(cfg, "driver")),
		Host:     stringOpt(cfg, "host"),
		Port:     intOpt(cfg, "port", 0),
		Database: stringOpt(cfg, "database"),
		Username: stringOpt(cfg, "username"),
		Password: stringOpt(cfg, "password"),
		SSLMode:  stringOpt(cfg, "sslMode"),
		URI:      stringOpt(cfg, "uri"),
	}
	if conn.Driver == "" {
		return nil, fmt.Errorf("driver is required")
	}
	return conn, nil
}

// open connects and checks the database answers, so a bad host fails here
// rather than on the first read.
func (s *databaseSource) open(ctx context.Context, conn *domain.DatabaseConnection) (dbclient.Connector, error) {
	c, err := s.connect(conn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := c.TestConnection(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect %s: %w", conn.Driver, err)
	}
	return c, nil
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	conn, query, err := connectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c, err := s.open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	page, err := c.Execute(ctx, query, 20)
	if err != nil {
		return nil, err
	}
	return inferSchema(pageRecords(page, conn.Driver, 0)), nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		conn, query, err := connectionFromConfig(cfg)
		if err != nil {
			errCh <- err
			return
		}
		c, err := s.open(ctx, conn)
		if err != nil {
			errCh <- err
			return
		}
		defer c.Close()

		fetchSize := intOpt(cfg, "fetchSize", dbFetchSize)
		page, err := c.Execute(ctx, query, fetchSize)
		if err != nil {
			errCh <- fmt.Errorf("execute: %w", err)
			return
		}

		offset := 0
		for {
			for _, rec := range pageRecords(page, conn.Driver, offset) {
				select {
				case out <- rec:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			offset += len(page.Rows)
			if !page.HasMore {
				return
			}
			page, err = c.FetchMore(ctx, fetchSize)
			if err != nil {
				errCh <- fmt.Errorf("fetch more: %w", err)
				return
			}
		}
	}()

	return out, errCh
}

// ListTables reports the tables (collections for mongodb) and their columns.
func (s *databaseSource) ListTables(ctx context.Context, cfg etl.SourceConfig) ([]etl.Table, error) {
	conn, err := connectionOnly(cfg)
	if err != nil {
		return nil, err
	}
	c, err := s.open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	info, err := c.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	tables := make([]etl.Table, 0, len(info.Tables))
	for _, t := range info.Tables {
		fields := make([]etl.Field, 0, len(t.Columns))
		for _, col := range t.Columns {
			fields = append(fields, etl.Field{Name: col.Name, Type: col.Type})
		}
		tables = append(tables, etl.Table{Name: t.Name, Fields: fields})
	}
	return tables, nil
}

func pageRecords(page *dbclient.QueryPage, driver domain.DatabaseDriver, offset int) []etl.Record {
	prov := map[string]string{"driver": string(driver)}
	records := make([]etl.Record, 0, len(page.Rows))
	for i, row := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for j, col := range page.Columns {
			if j < len(row) {
				data[col] = row[j]
			}
		}
		records = append(records, etl.Record{
			Data:       data,
			SourceType: "db_row",
			Provenance: withIndex(prov, "row_index", offset+i),
		})
	}
	return records
}
