package dbclient

import (
	"context"
	"database/sql"
	"fmt"

	"bucketadmin/internal/domain"
)

// SchemaInfo describes the tables of a catalog database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector abstracts interaction with an external catalog database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Introspect returns the table and column names of the database.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// DB exposes the pooled handle for catalog queries.
	DB() *sql.DB

	// Dialect reports how placeholders and identifiers are written.
	Dialect() Dialect

	// Close closes the underlying pool.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from SecretStore).
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL, "":
		return newSQLConnector("mysql", DialectMySQL, buildMySQLDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", DialectPostgres, buildPostgresDSN(conn, password))
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
