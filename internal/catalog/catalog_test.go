package catalog_test

import (
	"context"
	"errors"
	"testing"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/dbclient"
	"bucketadmin/internal/domain"
	"bucketadmin/internal/logging"
)

// fixture builds a small catalog:
//
//	alice (1): photos/0a (2 files, 3072 B), docs/ff (1 file, 100 B)
//	bob   (2): music/0a (1 file, 5000 B), empty/10 (no files), bad/ZZ (invalid label)
//	carol (3): orphan/20 (file table missing)
var fixture = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, status TEXT)`,
	`CREATE TABLE buckets (bid INTEGER PRIMARY KEY, bname TEXT, "user" INTEGER, part TEXT)`,
	`CREATE TABLE bucket_files_0a (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize INTEGER, status TEXT)`,
	`CREATE TABLE bucket_files_ff (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize INTEGER, status TEXT)`,
	`CREATE TABLE bucket_files_10 (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize INTEGER, status TEXT)`,
	`INSERT INTO users VALUES (1, 'alice', 'active'), (2, 'bob', 'active'), (3, 'carol', 'disabled')`,
	`INSERT INTO buckets VALUES
		(100, 'photos', 1, '0a'), (101, 'docs', 1, 'ff'),
		(200, 'music', 2, '0a'), (201, 'empty', 2, '10'), (300, 'bad', 2, 'ZZ'),
		(400, 'orphan', 3, '20')`,
	`INSERT INTO bucket_files_0a VALUES
		(1, 'a.jpg', 100, 1024, 'ok'), (2, 'b.jpg', 100, 2048, 'ok'), (3, 'song.mp3', 200, 5000, 'ok')`,
	`INSERT INTO bucket_files_ff VALUES (4, 'report.pdf', 101, 100, 'ok')`,
}

// newTestCatalog loads fixture followed by extra.
func newTestCatalog(t *testing.T, extra ...string) *catalog.Catalog {
	t.Helper()
	conn, err := dbclient.NewConnector(&domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLite,
		Host:   ":memory:",
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	for _, stmt := range append(append([]string(nil), fixture...), extra...) {
		if _, err := conn.DB().Exec(stmt); err != nil {
			t.Fatalf("fixture %q: %v", stmt, err)
		}
	}
	return catalog.FromConnector(conn, logging.Discard(), 4)
}

// ─────────────────────────────────────────────────────────────
// SearchBuckets
// ─────────────────────────────────────────────────────────────

func TestSearchBuckets_ByBID(t *testing.T) {
	c := newTestCatalog(t)

	res, err := c.SearchBuckets(context.Background(), "100", "")
	if err != nil {
		t.Fatalf("SearchBuckets() error = %v", err)
	}
	if len(res.MainData) != 1 {
		t.Fatalf("main_data = %+v", res.MainData)
	}
	b := res.MainData[0]
	if b.BID != 100 || b.BName != "photos" || b.User != 1 || b.Partition != "0a" {
		t.Errorf("bucket = %+v", b)
	}
	if len(res.Details) != 2 || res.Details[0].FName != "a.jpg" || res.Details[1].FSize != 2048 {
		t.Errorf("details = %+v", res.Details)
	}
}

func TestSearchBuckets_ByName(t *testing.T) {
	c := newTestCatalog(t)

	res, err := c.SearchBuckets(context.Background(), "", "music")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MainData) != 1 || res.MainData[0].BID != 200 {
		t.Errorf("main_data = %+v", res.MainData)
	}
	if len(res.Details) != 1 || res.Details[0].FID != 3 {
		t.Errorf("details = %+v", res.Details)
	}
}

func TestSearchBuckets_SkipsBrokenDetails(t *testing.T) {
	c := newTestCatalog(t)

	res, err := c.SearchBuckets(context.Background(), "", "")
	if err != nil {
		t.Fatalf("SearchBuckets() error = %v", err)
	}
	if len(res.MainData) != 6 {
		t.Errorf("len(main_data) = %d, want 6", len(res.MainData))
	}
	// bad/ZZ is never interpolated and orphan/20 has no table; both only lose details.
	wantFIDs := []uint64{1, 2, 4, 3}
	if len(res.Details) != len(wantFIDs) {
		t.Fatalf("details = %+v", res.Details)
	}
	for i, fid := range wantFIDs {
		if res.Details[i].FID != fid {
			t.Errorf("details[%d].FID = %d, want %d", i, res.Details[i].FID, fid)
		}
	}
}

func TestSearchBuckets_NoMatch(t *testing.T) {
	c := newTestCatalog(t)

	res, err := c.SearchBuckets(context.Background(), "999", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.MainData == nil || res.Details == nil {
		t.Error("empty result must carry empty slices, not nil")
	}
	if len(res.MainData) != 0 || len(res.Details) != 0 {
		t.Errorf("res = %+v", res)
	}
}

// ─────────────────────────────────────────────────────────────
// UserStats
// ─────────────────────────────────────────────────────────────

func TestUserStats_AllUsers(t *testing.T) {
	c := newTestCatalog(t)

	users, err := c.UserStats(context.Background(), catalog.StatsFilter{})
	if err != nil {
		t.Fatalf("UserStats() error = %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len(users) = %d, want 3", len(users))
	}

	alice := users[0]
	if alice.ID != 1 || alice.TotalFiles != 3 || alice.TotalSize != 3172 {
		t.Errorf("alice = %+v", alice)
	}
	if len(alice.Partitions) != 2 || alice.Partitions[0].Partition != "0a" || alice.Partitions[1].Partition != "ff" {
		t.Fatalf("alice partitions = %+v", alice.Partitions)
	}
	if p := alice.Partitions[0]; p.Count != 2 || p.Size != 3072 || p.BID != 100 || p.BName != "photos" {
		t.Errorf("alice 0a = %+v", p)
	}

	bob := users[1]
	if bob.TotalFiles != 1 || bob.TotalSize != 5000 {
		t.Errorf("bob = %+v", bob)
	}
	if len(bob.Partitions) != 1 || bob.Partitions[0].Partition != "0a" {
		t.Errorf("bob partitions = %+v (empty and invalid partitions must be omitted)", bob.Partitions)
	}

	carol := users[2]
	if carol.ID != 3 || carol.Status != "disabled" || carol.TotalFiles != 0 {
		t.Errorf("carol = %+v", carol)
	}
	if carol.Partitions == nil || len(carol.Partitions) != 0 {
		t.Errorf("carol partitions = %#v, want empty", carol.Partitions)
	}

	sum := alice.Summary()
	if sum.Name != "alice" || len(sum.Partitions) != 2 || sum.Partitions[1] != "ff" {
		t.Errorf("Summary() = %+v", sum)
	}
}

func TestUserStats_ByUsername(t *testing.T) {
	c := newTestCatalog(t)

	users, err := c.UserStats(context.Background(), catalog.StatsFilter{Username: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].ID != 2 {
		t.Errorf("users = %+v", users)
	}
}

func TestUserStats_ByBucket(t *testing.T) {
	c := newTestCatalog(t)

	users, err := c.UserStats(context.Background(), catalog.StatsFilter{BID: "100"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].ID != 1 {
		t.Fatalf("users = %+v", users)
	}
	u := users[0]
	if u.TotalFiles != 2 || u.TotalSize != 3072 {
		t.Errorf("totals = %d files, %v bytes", u.TotalFiles, u.TotalSize)
	}
	if len(u.Partitions) != 1 || u.Partitions[0].BID != 100 {
		t.Errorf("partitions = %+v", u.Partitions)
	}
}

func TestUserStats_ByBucketSharedPartition(t *testing.T) {
	c := newTestCatalog(t,
		`INSERT INTO buckets VALUES (102, 'photos', 1, '0a')`,
		`INSERT INTO bucket_files_0a VALUES (5, 'c.jpg', 102, 10, 'ok')`,
	)

	users, err := c.UserStats(context.Background(), catalog.StatsFilter{BName: "photos"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %+v", users)
	}
	u := users[0]
	if len(u.Partitions) != 2 || u.TotalFiles != 3 || u.TotalSize != 3082 {
		t.Errorf("stats = %+v, want one row per bucket", u)
	}

	sum := u.Summary()
	if len(sum.Partitions) != 1 || sum.Partitions[0] != "0a" {
		t.Errorf("Summary().Partitions = %v, want [0a]", sum.Partitions)
	}
}

func TestUserStats_PartitionLimit(t *testing.T) {
	c := newTestCatalog(t)

	users, err := c.UserStats(context.Background(), catalog.StatsFilter{Username: "alice", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || len(users[0].Partitions) != 1 || users[0].Partitions[0].Partition != "0a" {
		t.Errorf("users = %+v", users)
	}
}

func TestUserStats_CanceledContext(t *testing.T) {
	c := newTestCatalog(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.UserStats(ctx, catalog.StatsFilter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ─────────────────────────────────────────────────────────────
// Fractional sizes
// ─────────────────────────────────────────────────────────────

var realSizeFixture = []string{
	`CREATE TABLE bucket_files_ab (fid INTEGER PRIMARY KEY, fname TEXT, bid INTEGER, fsize REAL, status TEXT)`,
	`INSERT INTO buckets VALUES (500, 'raw', 1, 'ab')`,
	`INSERT INTO bucket_files_ab VALUES (10, 'dump.bin', 500, 1536.5, 'ok'), (11, 'tail.bin', 500, 0.25, 'ok')`,
}

func TestSearchBuckets_RealFileSize(t *testing.T) {
	c := newTestCatalog(t, realSizeFixture...)

	res, err := c.SearchBuckets(context.Background(), "500", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Details) != 2 || res.Details[0].FSize != 1536.5 || res.Details[1].FSize != 0.25 {
		t.Errorf("details = %+v", res.Details)
	}
}

func TestUserStats_RealFileSize(t *testing.T) {
	c := newTestCatalog(t, realSizeFixture...)

	users, err := c.UserStats(context.Background(), catalog.StatsFilter{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %+v", users)
	}
	u := users[0]
	var raw *domain.PartitionStats
	for i := range u.Partitions {
		if u.Partitions[i].Partition == "ab" {
			raw = &u.Partitions[i]
		}
	}
	if raw == nil || raw.Count != 2 || raw.Size != 1536.75 {
		t.Fatalf("partition ab = %+v", raw)
	}
	if u.TotalFiles != 5 || u.TotalSize != 3172+1536.75 {
		t.Errorf("totals = %d files, %v bytes", u.TotalFiles, u.TotalSize)
	}
}

func TestFiles_RealFileSize(t *testing.T) {
	c := newTestCatalog(t, realSizeFixture...)

	files, err := c.Files(context.Background(), catalog.FileFilter{UserID: 1, Part: "ab"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].FSize != 1536.5 {
		t.Errorf("files = %+v", files)
	}
}

// ─────────────────────────────────────────────────────────────
// UserPartitions / Files
// ─────────────────────────────────────────────────────────────

func TestUserPartitions(t *testing.T) {
	c := newTestCatalog(t)

	parts, err := c.UserPartitions(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0a", "10", "ZZ"}
	if len(parts) != len(want) {
		t.Fatalf("parts = %+v", parts)
	}
	for i, p := range parts {
		if p.Partition != want[i] {
			t.Errorf("parts[%d] = %q, want %q", i, p.Partition, want[i])
		}
	}

	none, err := c.UserPartitions(context.Background(), 42)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("unknown user = %#v, %v", none, err)
	}
}

func TestFiles(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	files, err := c.Files(ctx, catalog.FileFilter{UserID: 1, Part: "0a"})
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 2 || files[0].Status != "ok" {
		t.Errorf("files = %+v", files)
	}

	files, _ = c.Files(ctx, catalog.FileFilter{UserID: 1, Part: "0a", FName: "b."})
	if len(files) != 1 || files[0].FName != "b.jpg" {
		t.Errorf("fname filter = %+v", files)
	}

	files, _ = c.Files(ctx, catalog.FileFilter{UserID: 1, Part: "0a", Limit: 1})
	if len(files) != 1 {
		t.Errorf("limit 1 returned %d", len(files))
	}

	files, _ = c.Files(ctx, catalog.FileFilter{UserID: 2, Part: "0a", FID: 1})
	if len(files) != 0 {
		t.Errorf("other user's file leaked: %+v", files)
	}
}

func TestFiles_InvalidPartition(t *testing.T) {
	c := newTestCatalog(t)

	for _, part := range []string{"ZZ", "0A", "1", "0a; DROP TABLE users", ""} {
		_, err := c.Files(context.Background(), catalog.FileFilter{UserID: 1, Part: part})
		if !errors.Is(err, catalog.ErrInvalidPartition) {
			t.Errorf("Files(part=%q) err = %v, want ErrInvalidPartition", part, err)
		}
	}
}
