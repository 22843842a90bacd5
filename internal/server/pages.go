package server

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/domain"
	"bucketadmin/internal/service"
	"bucketadmin/internal/view"
)

//go:embed templates/*.html templates/*.css
var templatesFS embed.FS

var pageNames = []string{"dashboard.html", "config.html", "search.html", "files.html", "history.html"}

// panelURL builds path?query from key/value pairs with url.Values, so every
// value is escaped. Empty values are dropped and conn, when set, is kept so
// navigation stays on the connection the page was opened with.
func panelURL(path, conn string, kv ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			v.Set(kv[i], kv[i+1])
		}
	}
	if conn != "" {
		v.Set("conn", conn)
	}
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

var linkFuncs = template.FuncMap{
	"navLink": func(conn, path string) string {
		return panelURL(path, conn)
	},
	"userLink": func(conn string, id uint64) string {
		return panelURL("/", conn, "user", strconv.FormatUint(id, 10))
	},
	"filesLink": func(conn string, user uint64, part string) string {
		return panelURL("/files", conn, "user", strconv.FormatUint(user, 10), "part", part)
	},
	"searchLink": func(conn string, bid uint64) string {
		return panelURL("/search", conn, "bid", strconv.FormatUint(bid, 10))
	},
}

// pageRenderer holds one template set per page, each layered on base.html.
type pageRenderer struct {
	pages map[string]*template.Template
}

func newPageRenderer() *pageRenderer {
	pr := &pageRenderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		pr.pages[name] = template.Must(template.New("base.html").
			Funcs(view.FuncMap()).
			Funcs(linkFuncs).
			ParseFS(templatesFS, "templates/base.html", "templates/"+name))
	}
	return pr
}

// render executes the page into a buffer so a template error never leaves a
// half-written response.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages.pages[name]
	if !ok {
		s.logger.Error("unknown page", "page", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func handleStyle(w http.ResponseWriter, r *http.Request) {
	css, err := templatesFS.ReadFile("templates/style.css")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=3600")
	_, _ = w.Write(css)
}

// pageBase carries fields base.html reads on every page. Conn is the
// connection id from the query string; empty means the default.
type pageBase struct {
	Title      string
	Active     string
	Conn       string
	Connection string
	Alert      string
	Message    string
}

func (s *Server) base(r *http.Request, title, active string) pageBase {
	b := pageBase{Title: title, Active: active, Conn: r.URL.Query().Get("conn")}
	if b.Conn != "" {
		if conn, err := s.dbs.GetConnection(b.Conn); err == nil {
			b.Connection = conn.Name
		}
		return b
	}
	if conn, err := s.dbs.DefaultConnection(); err == nil {
		b.Connection = conn.Name
	}
	return b
}

// pageAlert renders err for an HTML page the way the JSON API would.
func (s *Server) pageAlert(r *http.Request, err error, fallback string) string {
	if statusFor(err) == http.StatusInternalServerError && !errors.Is(err, service.ErrNoConnection) {
		s.logger.Error("page request failed", "path", r.URL.Path, "error", err)
	}
	return publicMessage(err, fallback)
}

// ── Dashboard ──────────────────────────────────────────────

type dashboardPage struct {
	pageBase
	Filter     catalog.StatsFilter
	Filtered   bool
	Users      []domain.UserSummary
	Totals     domain.Totals
	Elapsed    time.Duration
	ComputedAt time.Time
	Selected   uint64
	HasGrid    bool
	Grid       view.Grid
	Present    int
}

// dashURL links back to the dashboard with the current connection and
// filter plus kv.
func (d dashboardPage) dashURL(kv ...string) string {
	limit := ""
	if d.Filter.Limit > 0 {
		limit = strconv.Itoa(d.Filter.Limit)
	}
	base := []string{"bid", d.Filter.BID, "bname", d.Filter.BName, "username", d.Filter.Username, "limit", limit}
	return panelURL("/", d.Conn, append(base, kv...)...)
}

// UserLink selects a user without leaving the filtered view.
func (d dashboardPage) UserLink(id uint64) string {
	return d.dashURL("user", strconv.FormatUint(id, 10))
}

// RefreshLink recomputes the stats shown.
func (d dashboardPage) RefreshLink() string {
	return d.dashURL("refresh", "1")
}

// LimitValue is the limit form field; empty when unset.
func (d dashboardPage) LimitValue() string {
	if d.Filter.Limit == 0 {
		return ""
	}
	return strconv.Itoa(d.Filter.Limit)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := dashboardPage{pageBase: s.base(r, "Users", "dashboard")}

	f, err := statsFilter(r)
	if err != nil {
		data.Alert = err.Error()
		s.render(w, http.StatusBadRequest, "dashboard.html", data)
		return
	}
	data.Filter = f
	data.Filtered = f != (catalog.StatsFilter{})

	start := time.Now()
	users, err := s.catalogs.Users(r.Context(), data.Conn, f, q.Get("refresh") != "")
	if err != nil {
		data.Alert = s.pageAlert(r, err, "failed to load users")
		s.render(w, http.StatusOK, "dashboard.html", data)
		return
	}
	data.Elapsed = time.Since(start).Round(time.Millisecond)
	for _, u := range users {
		data.Users = append(data.Users, u.Summary())
	}
	data.Totals = domain.SumUsers(data.Users)
	if !data.Filtered {
		if conn, err := s.dbs.Resolve(data.Conn); err == nil {
			if snap, ok := s.catalogs.CachedStats(conn.ID); ok {
				data.ComputedAt = snap.ComputedAt
			}
		}
	}

	if v := q.Get("user"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			data.Alert = "invalid user id"
		} else {
			parts, err := s.catalogs.Partitions(r.Context(), data.Conn, id)
			if err != nil {
				data.Alert = s.pageAlert(r, err, "failed to load partitions")
			} else {
				data.Selected = id
				data.HasGrid = true
				data.Grid = view.BuildGrid(parts)
				data.Present = data.Grid.Present()
			}
		}
	}
	s.render(w, http.StatusOK, "dashboard.html", data)
}

// ── Config ─────────────────────────────────────────────────

type configPage struct {
	pageBase
	Connections []domain.DatabaseConnection
	DefaultID   string
	DBName      string
	Form        configForm
}

type configForm struct {
	Host string
	Port string
	User string
}

func (s *Server) renderConfig(w http.ResponseWriter, status int, data configPage) {
	conns, err := s.dbs.ListConnections()
	if err != nil {
		s.logger.Error("list connections", "error", err)
	}
	data.Connections = conns
	if def, err := s.dbs.DefaultConnection(); err == nil {
		data.DefaultID = def.ID
		data.Connection = def.Name
	}
	data.DBName = s.defaultDBName
	s.render(w, status, "config.html", data)
}

func (s *Server) handleConfigPage(w http.ResponseWriter, r *http.Request) {
	s.renderConfig(w, http.StatusOK, configPage{pageBase: s.base(r, "Database", "config")})
}

func (s *Server) handleConfigSubmit(w http.ResponseWriter, r *http.Request) {
	data := configPage{pageBase: s.base(r, "Database", "config")}
	if err := r.ParseForm(); err != nil {
		data.Alert = "invalid configuration parameters"
		s.renderConfig(w, http.StatusBadRequest, data)
		return
	}
	data.Form = configForm{
		Host: r.PostFormValue("host"),
		Port: r.PostFormValue("port"),
		User: r.PostFormValue("user"),
	}

	port := 0
	if data.Form.Port != "" {
		n, err := strconv.Atoi(data.Form.Port)
		if err != nil {
			data.Alert = "port must be a number"
			s.renderConfig(w, http.StatusBadRequest, data)
			return
		}
		port = n
	}
	dbname := r.PostFormValue("dbname")
	if dbname == "" {
		dbname = s.defaultDBName
	}

	conn, err := s.dbs.ConfigureDB(r.Context(), service.CreateDBConnInput{
		Name:     r.PostFormValue("name"),
		Driver:   r.PostFormValue("driver"),
		Host:     data.Form.Host,
		Port:     port,
		Database: dbname,
		Username: data.Form.User,
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		status := http.StatusInternalServerError
		data.Alert = "database connection failed"
		if errors.Is(err, service.ErrInvalidInput) {
			status = http.StatusBadRequest
			data.Alert = err.Error()
		} else {
			s.logger.Warn("configure-db failed", "host", data.Form.Host, "error", err)
		}
		s.renderConfig(w, status, data)
		return
	}
	s.catalogs.InvalidateStats(conn.ID)
	data.Message = "database connection succeeded"
	data.Form = configForm{}
	s.renderConfig(w, http.StatusOK, data)
}

func (s *Server) handleConfigDefault(w http.ResponseWriter, r *http.Request) {
	data := configPage{pageBase: s.base(r, "Database", "config")}
	if err := s.dbs.SetDefault(r.PostFormValue("id")); err != nil {
		data.Alert = s.pageAlert(r, err, "failed to set default")
		s.renderConfig(w, statusFor(err), data)
		return
	}
	http.Redirect(w, r, "/config", http.StatusSeeOther)
}

// ── Search ─────────────────────────────────────────────────

type searchPage struct {
	pageBase
	BID     string
	BName   string
	Results *domain.SearchResult
}

func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := searchPage{pageBase: s.base(r, "Search", "search"), BID: q.Get("bid"), BName: q.Get("bname")}
	if data.BID != "" || data.BName != "" {
		res, err := s.catalogs.Search(r.Context(), data.Conn, data.BID, data.BName)
		if err != nil {
			data.Alert = s.pageAlert(r, err, "query failed")
		} else {
			data.Results = res
		}
	}
	s.render(w, http.StatusOK, "search.html", data)
}

// ── Files ──────────────────────────────────────────────────

type filesPage struct {
	pageBase
	User   string
	Part   string
	FID    string
	FName  string
	Bucket string
	Files  []domain.FileInfo
	Loaded bool
}

func (s *Server) handleFilesPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := filesPage{
		pageBase: s.base(r, "Files", "files"),
		User:     q.Get("user"),
		Part:     q.Get("part"),
		FID:      q.Get("fid"),
		FName:    q.Get("fname"),
		Bucket:   q.Get("bucket"),
	}
	if data.User != "" || data.Part != "" {
		f, err := fileFilter(r)
		if err == nil {
			data.Files, err = s.catalogs.Files(r.Context(), data.Conn, f)
		}
		if err != nil {
			data.Alert = s.pageAlert(r, err, "failed to load files")
		} else {
			data.Loaded = true
		}
	}
	s.render(w, http.StatusOK, "files.html", data)
}

// ── History ────────────────────────────────────────────────

type historyPage struct {
	pageBase
	Entries []domain.QueryHistoryEntry
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	data := historyPage{pageBase: s.base(r, "History", "history")}
	entries, err := s.catalogs.History(100)
	if err != nil {
		data.Alert = s.pageAlert(r, err, "failed to load history")
	}
	data.Entries = entries
	s.render(w, http.StatusOK, "history.html", data)
}
