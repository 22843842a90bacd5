package server_test

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"bucketadmin/internal/logging"
	"bucketadmin/internal/secret"
	"bucketadmin/internal/server"
	"bucketadmin/internal/service"
	"bucketadmin/internal/storage"
)

var catalogFixture = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, status TEXT)`,
	`CREATE TABLE buckets (bid INTEGER PRIMARY KEY, bname TEXT, "user" INTEGER, part TEXT)`,
	`CREATE TABLE bucket_files_0a (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize INTEGER, status TEXT)`,
	`CREATE TABLE bucket_files_ff (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize INTEGER, status TEXT)`,
	`INSERT INTO users VALUES (1, 'alice', 'active'), (2, 'bob', 'active')`,
	`INSERT INTO buckets VALUES (100, 'photos', 1, '0a'), (101, 'docs', 1, 'ff'), (200, 'music', 2, '0a')`,
	`INSERT INTO bucket_files_0a VALUES
		(1, 'a.jpg', 100, 1024, 'ok'), (2, 'b.jpg', 100, 2048, 'ok'), (3, 'song.mp3', 200, 5000, 'ok')`,
	`INSERT INTO bucket_files_ff VALUES (10, 'cv.pdf', 101, 100, 'ok')`,
}

func newCatalogFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, stmt := range catalogFixture {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	return path
}

type testEnv struct {
	dbs      *service.DatabaseService
	catalogs *service.CatalogService
	srv      *server.Server
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	dbs := service.NewDatabaseService(
		storage.NewDBConnectionStore(db),
		storage.NewSettingsStore(db),
		secret.NewMemoryStore(),
		logger,
	)
	t.Cleanup(dbs.Close)
	cs := service.NewCatalogService(dbs, storage.NewQueryHistoryStore(db), logger, service.CatalogOptions{Concurrency: 2})

	srv := server.New(server.Options{Databases: dbs, Catalog: cs, Logger: logger})
	return &testEnv{dbs: dbs, catalogs: cs, srv: srv, handler: srv.Handler()}
}

// withCatalog configures the fixture catalog as the default connection.
func (e *testEnv) withCatalog(t *testing.T) string {
	t.Helper()
	conn, err := e.dbs.CreateConnection(service.CreateDBConnInput{
		Name:   "fixture",
		Driver: "sqlite",
		Host:   newCatalogFile(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.dbs.SetDefault(conn.ID); err != nil {
		t.Fatal(err)
	}
	return conn.ID
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func newRecorder(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// sqliteMissing names an SQLite catalog that cannot be opened.
func sqliteMissing(t *testing.T) service.CreateDBConnInput {
	return service.CreateDBConnInput{
		Name:   "broken",
		Driver: "sqlite",
		Host:   filepath.Join(t.TempDir(), "missing", "catalog.db"),
	}
}
