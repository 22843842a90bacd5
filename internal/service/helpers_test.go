package service_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"bucketadmin/internal/logging"
	"bucketadmin/internal/secret"
	"bucketadmin/internal/service"
	"bucketadmin/internal/storage"
)

var catalogFixture = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, status TEXT)`,
	`CREATE TABLE buckets (bid INTEGER PRIMARY KEY, bname TEXT, "user" INTEGER, part TEXT)`,
	`CREATE TABLE bucket_files_0a (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize INTEGER, status TEXT)`,
	`INSERT INTO users VALUES (1, 'alice', 'active'), (2, 'bob', 'active')`,
	`INSERT INTO buckets VALUES (100, 'photos', 1, '0a'), (200, 'music', 2, '0a')`,
	`INSERT INTO bucket_files_0a VALUES
		(1, 'a.jpg', 100, 1024, 'ok'), (2, 'b.jpg', 100, 2048, 'ok'), (3, 'song.mp3', 200, 5000, 'ok')`,
}

// newCatalogFile writes the fixture catalog to an SQLite file and returns
// its path and an open handle for further edits.
func newCatalogFile(t *testing.T) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range catalogFixture {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	return path, db
}

type testEnv struct {
	db       *storage.DB
	secrets  *secret.MemoryStore
	dbs      *service.DatabaseService
	catalogs *service.CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	secrets := secret.NewMemoryStore()
	dbs := service.NewDatabaseService(
		storage.NewDBConnectionStore(db),
		storage.NewSettingsStore(db),
		secrets,
		logging.Discard(),
	)
	t.Cleanup(dbs.Close)

	cs := service.NewCatalogService(dbs, storage.NewQueryHistoryStore(db), logging.Discard(), service.CatalogOptions{
		Concurrency: 2,
	})
	return &testEnv{db: db, secrets: secrets, dbs: dbs, catalogs: cs}
}

func sqliteInput(name, path string) service.CreateDBConnInput {
	return service.CreateDBConnInput{Name: name, Driver: "sqlite", Host: path}
}
