package server_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"bucketadmin/internal/domain"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

// ─────────────────────────────────────────────────────────────
// POST /api/configure-db
// ─────────────────────────────────────────────────────────────

func TestConfigureDB_PortAsStringOrNumber(t *testing.T) {
	for name, port := range map[string]string{"string": `"3306"`, "number": `3306`} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			path := newCatalogFile(t)
			body := `{"host":` + strconvQuote(path) + `,"port":` + port +
				`,"user":"test","password":"pw","dbname":"test","driver":"sqlite"}`

			rec := env.do("POST", "/api/configure-db", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			resp := decode[map[string]string](t, rec.Body.Bytes())
			if resp["message"] == "" || resp["id"] == "" {
				t.Errorf("response = %v", resp)
			}

			def, err := env.dbs.DefaultConnection()
			if err != nil {
				t.Fatal(err)
			}
			if def.Port != 3306 || def.Username != "test" {
				t.Errorf("stored profile = %+v", def)
			}
		})
	}
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestConfigureDB_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{`{`, `{"port":"abc","host":"x"}`, `[]`} {
		rec := env.do("POST", "/api/configure-db", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
		resp := decode[map[string]string](t, rec.Body.Bytes())
		if resp["error"] != "invalid configuration parameters" {
			t.Errorf("%s: error = %q", body, resp["error"])
		}
	}
}

func TestConfigureDB_ConnectFailure(t *testing.T) {
	env := newTestEnv(t)
	body := `{"host":"/nonexistent/dir/catalog.db","port":0,"user":"u","password":"p","dbname":"test","driver":"sqlite"}`

	rec := env.do("POST", "/api/configure-db", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decode[map[string]string](t, rec.Body.Bytes())
	if resp["error"] != "database connection failed" {
		t.Errorf("error = %q", resp["error"])
	}
	if conns, _ := env.dbs.ListConnections(); len(conns) != 0 {
		t.Errorf("failed configure stored %d profiles", len(conns))
	}
}

func TestConfigureDB_MissingHost(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("POST", "/api/configure-db", `{"port":3306,"user":"u"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

// ─────────────────────────────────────────────────────────────
// GET /api/query
// ─────────────────────────────────────────────────────────────

func TestQuery(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)

	rec := env.do("GET", "/api/query?"+url.Values{"bid": {"100"}}.Encode(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"main_data"`) {
		t.Errorf("body lacks main_data: %s", rec.Body)
	}
	res := decode[domain.SearchResult](t, rec.Body.Bytes())
	if len(res.MainData) != 1 || res.MainData[0].BName != "photos" {
		t.Errorf("main_data = %+v", res.MainData)
	}
	if len(res.Details) != 2 {
		t.Errorf("details = %+v", res.Details)
	}

	hist := env.do("GET", "/api/history", "")
	entries := decode[[]domain.QueryHistoryEntry](t, hist.Body.Bytes())
	if len(entries) != 1 || entries[0].BID != "100" {
		t.Errorf("history = %+v", entries)
	}
}

func TestQuery_NoMatchReturnsEmptyArrays(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)

	rec := env.do("GET", "/api/query?bname=nothing", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"main_data":[],"details":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestQuery_NotConnected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do("GET", "/api/query?bid=1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	resp := decode[map[string]string](t, rec.Body.Bytes())
	if resp["error"] != "database not connected" {
		t.Errorf("error = %q", resp["error"])
	}
}

// ─────────────────────────────────────────────────────────────
// GET /api/users, /api/partitions, /api/files
// ─────────────────────────────────────────────────────────────

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)

	rec := env.do("GET", "/api/users", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	users := decode[[]domain.UserSummary](t, rec.Body.Bytes())
	if len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}
	alice := users[0]
	if alice.ID != 1 || alice.Name != "alice" || alice.TotalFiles != 3 || alice.TotalSize != 3172 {
		t.Errorf("alice = %+v", alice)
	}
	if len(alice.Partitions) != 2 {
		t.Errorf("alice partitions = %v", alice.Partitions)
	}
}

func TestUsers_FilteredByUsername(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)

	rec := env.do("GET", "/api/users?username=bob", "")
	users := decode[[]domain.UserSummary](t, rec.Body.Bytes())
	if len(users) != 1 || users[0].Name != "bob" || users[0].TotalSize != 5000 {
		t.Errorf("users = %+v", users)
	}

	rec = env.do("GET", "/api/users?username=nobody", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("no match body = %s, want []", got)
	}
}

func TestUsers_BadLimit(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)
	if rec := env.do("GET", "/api/users?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPartitions(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)

	rec := env.do("GET", "/api/partitions/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	parts := decode[[]domain.PartitionRecord](t, rec.Body.Bytes())
	if len(parts) != 2 || parts[0].Partition != "0a" || parts[1].Partition != "ff" {
		t.Errorf("partitions = %+v", parts)
	}

	if rec := env.do("GET", "/api/partitions/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
	if rec := env.do("GET", "/api/partitions/99", ""); strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("unknown user body = %s", rec.Body)
	}
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t)
	env.withCatalog(t)

	rec := env.do("GET", "/api/files?user=1&part=0a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	files := decode[[]domain.FileInfo](t, rec.Body.Bytes())
	if len(files) != 2 {
		t.Errorf("files = %+v", files)
	}

	rec = env.do("GET", "/api/files?user=1&part=0a&fname=b.", "")
	files = decode[[]domain.FileInfo](t, rec.Body.Bytes())
	if len(files) != 1 || files[0].FName != "b.jpg" {
		t.Errorf("filtered files = %+v", files)
	}

	cases := []string{
		"/api/files?user=1",
		"/api/files?part=0a",
		"/api/files?user=x&part=0a",
		"/api/files?user=1&part=ZZ",
	}
	for _, target := range cases {
		if rec := env.do("GET", target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Connections
// ─────────────────────────────────────────────────────────────

func TestConnectionsCRUD(t *testing.T) {
	env := newTestEnv(t)
	path := newCatalogFile(t)

	rec := env.do("POST", "/api/connections", `{"name":"cat","driver":"sqlite","host":`+strconvQuote(path)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	conn := decode[domain.DatabaseConnection](t, rec.Body.Bytes())

	list := decode[[]domain.DatabaseConnection](t, env.do("GET", "/api/connections", "").Body.Bytes())
	if len(list) != 1 || list[0].Name != "cat" {
		t.Errorf("list = %+v", list)
	}

	test := decode[map[string]any](t, env.do("POST", "/api/connections/"+conn.ID+"/test", "").Body.Bytes())
	if test["ok"] != true {
		t.Errorf("test = %v", test)
	}

	rec = env.do("GET", "/api/connections/"+conn.ID+"/schema", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bucket_files_0a") {
		t.Errorf("schema status = %d, body = %s", rec.Code, rec.Body)
	}

	if rec := env.do("POST", "/api/connections/"+conn.ID+"/default", ""); rec.Code != http.StatusOK {
		t.Errorf("default status = %d", rec.Code)
	}
	health := decode[map[string]any](t, env.do("GET", "/api/health", "").Body.Bytes())
	if health["defaultConnection"] != "cat" {
		t.Errorf("health = %v", health)
	}

	rec = env.do("PUT", "/api/connections/"+conn.ID, `{"name":"renamed","driver":"sqlite","host":`+strconvQuote(path)+`}`)
	if rec.Code != http.StatusOK {
		t.Errorf("update status = %d, body = %s", rec.Code, rec.Body)
	}

	if rec := env.do("DELETE", "/api/connections/"+conn.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := env.do("DELETE", "/api/connections/"+conn.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rec.Code)
	}
	if rec := env.do("GET", "/api/connections/missing/schema", ""); rec.Code != http.StatusNotFound {
		t.Errorf("schema of missing status = %d", rec.Code)
	}
}

func TestConnParamSelectsProfile(t *testing.T) {
	env := newTestEnv(t)
	id := env.withCatalog(t)

	other, err := env.dbs.CreateConnection(sqliteMissing(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.dbs.SetDefault(other.ID); err != nil {
		t.Fatal(err)
	}

	rec := env.do("GET", "/api/partitions/1?conn="+id, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status with conn = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := env.do("GET", "/api/partitions/1?conn=unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown conn status = %d", rec.Code)
	}
}

// ─────────────────────────────────────────────────────────────
// Auth and errors
// ─────────────────────────────────────────────────────────────

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	env.srv.SetAdmin("admin", string(hash))

	rec := env.do("GET", "/api/connections", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate")
	}

	if rec := env.do("GET", "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	req, _ := http.NewRequest("GET", "/api/connections", nil)
	req.SetBasicAuth("admin", "wrong")
	w := newRecorder(env, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", w.Code)
	}

	req, _ = http.NewRequest("GET", "/api/connections", nil)
	req.SetBasicAuth("admin", "secret")
	w = newRecorder(env, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid credentials status = %d", w.Code)
	}

	env.srv.SetAdmin("", "")
	if rec := env.do("GET", "/api/connections", ""); rec.Code != http.StatusOK {
		t.Errorf("auth disabled status = %d", rec.Code)
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if resp := decode[map[string]string](t, rec.Body.Bytes()); resp["error"] == "" {
		t.Error("expected JSON error body")
	}
}
