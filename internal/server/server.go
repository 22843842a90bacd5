// Package server serves the bucket administration panel: the JSON API,
// the HTML pages and the websocket event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"bucketadmin/internal/service"
)

// Options wires a Server.
type Options struct {
	Databases *service.DatabaseService
	Catalog   *service.CatalogService
	Hub       *Hub
	Logger    *slog.Logger

	// DefaultDBName is the dbname the config form submits.
	DefaultDBName string

	AdminUsername     string
	AdminPasswordHash string
}

// Server is the HTTP front of bucketadmin.
type Server struct {
	dbs           *service.DatabaseService
	catalogs      *service.CatalogService
	hub           *Hub
	logger        *slog.Logger
	defaultDBName string
	auth          authState
	pages         *pageRenderer
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger.With("component", "http")
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(opts.Logger)
	}
	dbName := opts.DefaultDBName
	if dbName == "" {
		dbName = "test"
	}
	s := &Server{
		dbs:           opts.Databases,
		catalogs:      opts.Catalog,
		hub:           hub,
		logger:        logger,
		defaultDBName: dbName,
		pages:         newPageRenderer(),
	}
	s.auth.set(opts.AdminUsername, opts.AdminPasswordHash)
	return s
}

// SetAdmin replaces the basic-auth credentials. An empty username turns
// auth off.
func (s *Server) SetAdmin(username, passwordHash string) {
	s.auth.set(username, passwordHash)
}

// Hub returns the websocket hub events are broadcast through.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/configure-db", s.handleConfigureDB).Methods("POST")
	api.HandleFunc("/query", s.handleQuery).Methods("GET")
	api.HandleFunc("/users", s.handleUsers).Methods("GET")
	api.HandleFunc("/partitions/{userId}", s.handlePartitions).Methods("GET")
	api.HandleFunc("/files", s.handleFiles).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/connections", s.handleListConnections).Methods("GET")
	api.HandleFunc("/connections", s.handleCreateConnection).Methods("POST")
	api.HandleFunc("/connections/{id}", s.handleUpdateConnection).Methods("PUT")
	api.HandleFunc("/connections/{id}", s.handleDeleteConnection).Methods("DELETE")
	api.HandleFunc("/connections/{id}/test", s.handleTestConnection).Methods("POST")
	api.HandleFunc("/connections/{id}/default", s.handleSetDefault).Methods("POST")
	api.HandleFunc("/connections/{id}/schema", s.handleSchema).Methods("GET")
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	router.Handle("/ws", s.hub).Methods("GET")

	router.HandleFunc("/", s.handleDashboard).Methods("GET")
	router.HandleFunc("/config", s.handleConfigPage).Methods("GET")
	router.HandleFunc("/config", s.handleConfigSubmit).Methods("POST")
	router.HandleFunc("/config/default", s.handleConfigDefault).Methods("POST")
	router.HandleFunc("/search", s.handleSearchPage).Methods("GET")
	router.HandleFunc("/files", s.handleFilesPage).Methods("GET")
	router.HandleFunc("/history", s.handleHistoryPage).Methods("GET")
	router.HandleFunc("/static/style.css", handleStyle).Methods("GET")

	return s.recoverPanics(s.logRequests(s.requireAuth(router)))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
