package dbclient

import (
	_ "modernc.org/sqlite"

	"bucketadmin/internal/domain"
)

// newSQLiteConnector creates a connector for a catalog kept in an SQLite file.
// Host holds the file path. Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	dsn := conn.Host
	if dsn != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	c, err := newSQLConnector("sqlite", DialectSQLite, dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		c.db.SetMaxOpenConns(1)
	}
	return c, nil
}
