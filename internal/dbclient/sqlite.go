package dbclient

import (
	"dynetl/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector opens an external SQLite file read-only.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	path := conn.Host
	if path == "" {
		path = conn.Database
	}
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	return newSQLConnector("sqlite", dsn)
}
