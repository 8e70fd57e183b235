package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dynetl/internal/domain"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"total_fetched"`
	HasMore      bool     `json:"has_more"`
}

// SchemaInfo lists the tables (or collections) of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector reads from an external database. Connectors are read-only:
// statements that are not reads are rejected.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a read and returns the first batch of rows.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Introspect lists tables and their columns.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
func NewConnector(conn *domain.DatabaseConnection, logger *zap.Logger) (Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn))
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, logger.Named("mongo-source"))
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}

// TableQuery builds the read-everything query for one table or collection.
func TableQuery(driver domain.DatabaseDriver, table string) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table is required")
	}
	switch driver {
	case domain.DatabaseDriverMongoDB:
		b, err := json.Marshal(mongoQuery{Collection: table})
		return string(b), err
	case domain.DatabaseDriverMySQL:
		return "SELECT * FROM `" + strings.ReplaceAll(table, "`", "``") + "`", nil
	case domain.DatabaseDriverPostgres, domain.DatabaseDriverSQLite:
		return `SELECT * FROM "` + strings.ReplaceAll(table, `"`, `""`) + `"`, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}
