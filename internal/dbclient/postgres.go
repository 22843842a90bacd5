package dbclient

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"bucketadmin/internal/domain"
)

// buildPostgresDSN constructs a Postgres connection string from a DatabaseConnection.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pqValue(conn.Host), port, pqValue(conn.Username), pqValue(password), pqValue(conn.Database), sslMode,
	)
}

// pqValue quotes a key/value connection string value when it is empty or
// contains spaces, quotes or backslashes.
func pqValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
