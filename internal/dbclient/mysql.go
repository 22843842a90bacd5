package dbclient

import (
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"bucketadmin/internal/domain"
)

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
// Format: user:password@tcp(host:port)/dbname?parseTime=true&charset=utf8mb4
func buildMySQLDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	host := conn.Host
	if host == "" {
		host = "127.0.0.1"
	}

	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}
