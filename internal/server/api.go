package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/domain"
	"bucketadmin/internal/service"
)

// flexPort decodes a JSON number or a numeric string; the panel's form
// posts the port as text.
type flexPort int

func (p *flexPort) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("port must be a number: %q", b)
	}
	*p = flexPort(n)
	return nil
}

// configureRequest is the body of POST /api/configure-db.
type configureRequest struct {
	Host     string   `json:"host"`
	Port     flexPort `json:"port"`
	User     string   `json:"user"`
	Password string   `json:"password"`
	DBName   string   `json:"dbname"`
	Driver   string   `json:"driver,omitempty"`
	Name     string   `json:"name,omitempty"`
}

func (c configureRequest) input() service.CreateDBConnInput {
	return service.CreateDBConnInput{
		Name:     c.Name,
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     int(c.Port),
		Database: c.DBName,
		Username: c.User,
		Password: c.Password,
	}
}

func (s *Server) handleConfigureDB(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration parameters")
		return
	}

	conn, err := s.dbs.ConfigureDB(r.Context(), req.input())
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Warn("configure-db failed", "host", req.Host, "port", int(req.Port), "error", err)
		writeError(w, http.StatusInternalServerError, "database connection failed")
		return
	}
	s.catalogs.InvalidateStats(conn.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "database connection succeeded",
		"id":      conn.ID,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.catalogs.Search(r.Context(), q.Get("conn"), q.Get("bid"), q.Get("bname"))
	if err != nil {
		s.fail(w, r, err, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statsFilter reads the optional stats filters of /api/users.
func statsFilter(r *http.Request) (catalog.StatsFilter, error) {
	q := r.URL.Query()
	f := catalog.StatsFilter{
		BID:      q.Get("bid"),
		BName:    q.Get("bname"),
		Username: q.Get("username"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: limit must be a non-negative integer", service.ErrInvalidInput)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	f, err := statsFilter(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	refresh := r.URL.Query().Get("refresh") != ""
	users, err := s.catalogs.Users(r.Context(), r.URL.Query().Get("conn"), f, refresh)
	if err != nil {
		s.fail(w, r, err, "failed to load users")
		return
	}

	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	parts, err := s.catalogs.Partitions(r.Context(), r.URL.Query().Get("conn"), userID)
	if err != nil {
		s.fail(w, r, err, "failed to load partitions")
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

// fileFilter parses /files and /api/files query parameters.
func fileFilter(r *http.Request) (catalog.FileFilter, error) {
	q := r.URL.Query()
	var f catalog.FileFilter
	if q.Get("user") == "" || q.Get("part") == "" {
		return f, fmt.Errorf("%w: user and part are required", service.ErrInvalidInput)
	}

	parse := func(key string) (uint64, error) {
		v := q.Get(key)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, key)
		}
		return n, nil
	}

	var err error
	if f.UserID, err = parse("user"); err != nil {
		return f, err
	}
	if f.FID, err = parse("fid"); err != nil {
		return f, err
	}
	if f.BucketID, err = parse("bucket"); err != nil {
		return f, err
	}
	limit, err := parse("limit")
	if err != nil {
		return f, err
	}
	f.Limit = int(limit)
	f.Part = q.Get("part")
	f.FName = q.Get("fname")
	return f, nil
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	f, err := fileFilter(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	files, err := s.catalogs.Files(r.Context(), r.URL.Query().Get("conn"), f)
	if err != nil {
		s.fail(w, r, err, "failed to load files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.catalogs.History(limit)
	if err != nil {
		s.fail(w, r, err, "failed to load history")
		return
	}
	if entries == nil {
		entries = []domain.QueryHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "wsClients": s.hub.Clients()}
	if conn, err := s.dbs.DefaultConnection(); err == nil {
		resp["defaultConnection"] = conn.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Connections ────────────────────────────────────────────

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.dbs.ListConnections()
	if err != nil {
		s.fail(w, r, err, "failed to list connections")
		return
	}
	if conns == nil {
		conns = []domain.DatabaseConnection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

func decodeConnInput(r *http.Request) (service.CreateDBConnInput, error) {
	var in service.CreateDBConnInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return in, nil
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	in, err := decodeConnInput(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	conn, err := s.dbs.CreateConnection(in)
	if err != nil {
		s.fail(w, r, err, "failed to create connection")
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	in, err := decodeConnInput(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	id := mux.Vars(r)["id"]
	conn, err := s.dbs.UpdateConnection(id, in)
	if err != nil {
		s.fail(w, r, err, "failed to update connection")
		return
	}
	s.catalogs.InvalidateStats(id)
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.dbs.DeleteConnection(id); err != nil {
		s.fail(w, r, err, "failed to delete connection")
		return
	}
	s.catalogs.InvalidateStats(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.dbs.GetConnection(id); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if err := s.dbs.TestConnection(r.Context(), id); err != nil {
		s.logger.Warn("connection test failed", "id", id, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	if err := s.dbs.SetDefault(mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err, "failed to set default")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "default connection updated"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.dbs.GetConnection(id); err != nil {
		s.fail(w, r, err, "")
		return
	}
	schema, err := s.dbs.Introspect(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "failed to introspect database")
		return
	}
	writeJSON(w, http.StatusOK, schema)
}
