package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/logging"
	"bucketadmin/internal/service"
	"bucketadmin/internal/storage"
)

func TestCatalogService_SearchRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	path, _ := newCatalogFile(t)
	if _, err := env.dbs.ConfigureDB(context.Background(), sqliteInput("", path)); err != nil {
		t.Fatal(err)
	}

	res, err := env.catalogs.Search(context.Background(), "", "100", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.MainData) != 1 || len(res.Details) != 2 {
		t.Errorf("result = %+v", res)
	}

	hist, err := env.catalogs.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("history = %+v", hist)
	}
	if hist[0].BID != "100" || hist[0].MainRows != 1 || hist[0].DetailRows != 2 || hist[0].Error != "" {
		t.Errorf("entry = %+v", hist[0])
	}
}

func TestCatalogService_NoConnection(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.catalogs.Search(context.Background(), "", "1", ""); !errors.Is(err, service.ErrNoConnection) {
		t.Errorf("Search() error = %v, want ErrNoConnection", err)
	}
	if _, err := env.catalogs.Users(context.Background(), "", catalog.StatsFilter{}, false); !errors.Is(err, service.ErrNoConnection) {
		t.Errorf("Users() error = %v, want ErrNoConnection", err)
	}
}

func TestCatalogService_UsersCache(t *testing.T) {
	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	env := newTestEnv(t)
	cs := service.NewCatalogService(env.dbs, storage.NewQueryHistoryStore(db), logging.Discard(), service.CatalogOptions{
		StatsTTL:    time.Hour,
		Concurrency: 2,
	})

	path, cat := newCatalogFile(t)
	if _, err := env.dbs.ConfigureDB(context.Background(), sqliteInput("", path)); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	users, err := cs.Users(ctx, "", catalog.StatsFilter{}, false)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 2 || users[0].TotalSize != 3072 {
		t.Fatalf("users = %+v", users)
	}

	if _, err := cat.Exec(`INSERT INTO bucket_files_0a VALUES (4, 'c.jpg', 100, 1000, 'ok')`); err != nil {
		t.Fatal(err)
	}

	cached, _ := cs.Users(ctx, "", catalog.StatsFilter{}, false)
	if cached[0].TotalSize != 3072 {
		t.Errorf("cached TotalSize = %v, want 3072", cached[0].TotalSize)
	}

	fresh, _ := cs.Users(ctx, "", catalog.StatsFilter{}, true)
	if fresh[0].TotalSize != 4072 || fresh[0].TotalFiles != 3 {
		t.Errorf("refreshed = %+v", fresh[0])
	}

	filtered, err := cs.Users(ctx, "", catalog.StatsFilter{Username: "bob"}, false)
	if err != nil || len(filtered) != 1 || filtered[0].ID != 2 {
		t.Errorf("filtered = %+v, %v", filtered, err)
	}
}

func TestCatalogService_PartitionsAndFiles(t *testing.T) {
	env := newTestEnv(t)
	path, _ := newCatalogFile(t)
	conn, err := env.dbs.CreateConnection(sqliteInput("cat", path))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	parts, err := env.catalogs.Partitions(ctx, conn.ID, 1)
	if err != nil || len(parts) != 1 || parts[0].Partition != "0a" {
		t.Errorf("Partitions() = %+v, %v", parts, err)
	}

	files, err := env.catalogs.Files(ctx, conn.ID, catalog.FileFilter{UserID: 1, Part: "0a"})
	if err != nil || len(files) != 2 {
		t.Errorf("Files() = %+v, %v", files, err)
	}

	if _, err := env.catalogs.Files(ctx, conn.ID, catalog.FileFilter{UserID: 1, Part: "x"}); !errors.Is(err, catalog.ErrInvalidPartition) {
		t.Errorf("invalid partition error = %v", err)
	}
}

// ─────────────────────────────────────────────────────────────
// StatsRefresher
// ─────────────────────────────────────────────────────────────

func TestStatsRefresher_RunOnceEmits(t *testing.T) {
	env := newTestEnv(t)
	path, _ := newCatalogFile(t)
	conn, err := env.dbs.ConfigureDB(context.Background(), sqliteInput("", path))
	if err != nil {
		t.Fatal(err)
	}

	em := &service.MockEmitter{}
	r := service.NewStatsRefresher(env.catalogs, em, logging.Discard())
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	events := em.Snapshot()
	if len(events) != 1 || events[0].Event != service.EventStatsRefreshed {
		t.Fatalf("events = %+v", events)
	}
	data := events[0].Data.(map[string]any)
	if data["connectionId"] != conn.ID || data["users"] != 2 {
		t.Errorf("event data = %+v", data)
	}
	if snap, ok := env.catalogs.CachedStats(conn.ID); !ok || len(snap.Users) != 2 {
		t.Errorf("cache not filled: %+v", snap)
	}
}

func TestStatsRefresher_NoConnection(t *testing.T) {
	env := newTestEnv(t)
	em := &service.MockEmitter{}
	r := service.NewStatsRefresher(env.catalogs, em, logging.Discard())

	if err := r.RunOnce(context.Background()); !errors.Is(err, service.ErrNoConnection) {
		t.Errorf("RunOnce() error = %v", err)
	}
	if len(em.Snapshot()) != 0 {
		t.Error("emitted on failure")
	}
}

func TestStatsRefresher_Reschedule(t *testing.T) {
	env := newTestEnv(t)
	r := service.NewStatsRefresher(env.catalogs, service.NopEmitter{}, logging.Discard())
	defer r.Stop(context.Background())

	if err := r.Reschedule("not a cron"); err == nil {
		t.Error("expected error for invalid expression")
	}
	if err := r.Reschedule("@every 1h"); err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if r.Schedule() != "@every 1h" {
		t.Errorf("Schedule() = %q", r.Schedule())
	}
	if err := r.Reschedule(""); err != nil {
		t.Fatal(err)
	}
	if r.Schedule() != "" {
		t.Errorf("Schedule() after disable = %q", r.Schedule())
	}
}
