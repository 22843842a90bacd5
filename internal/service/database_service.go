package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"bucketadmin/internal/dbclient"
	"bucketadmin/internal/domain"
	"bucketadmin/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Database Service: connection profiles and the connector pool
// ─────────────────────────────────────────────────────────────

var (
	// ErrNoConnection is returned when a request names no connection and
	// none is configured.
	ErrNoConnection = errors.New("no database connection configured")

	// ErrInvalidInput marks validation failures of service inputs.
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultConnectionName is the profile written by ConfigureDB when the
// caller does not name one.
const DefaultConnectionName = "default"

// CreateDBConnInput is the service-layer DTO for creating/updating connections.
type CreateDBConnInput struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

func (in *CreateDBConnInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Host = strings.TrimSpace(in.Host)
	if in.Driver == "" {
		in.Driver = string(domain.DatabaseDriverMySQL)
	}
	if !domain.DatabaseDriver(in.Driver).Valid() {
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidInput, in.Driver)
	}
	if in.Port < 0 || in.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidInput, in.Port)
	}
	if in.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidInput)
	}
	return nil
}

func (in CreateDBConnInput) toDomain() *domain.DatabaseConnection {
	return &domain.DatabaseConnection{
		Name:     in.Name,
		Driver:   domain.DatabaseDriver(in.Driver),
		Host:     in.Host,
		Port:     in.Port,
		Database: in.Database,
		Username: in.Username,
		SSLMode:  in.SSLMode,
	}
}

// connectorFactory opens a connector; replaced in tests.
type connectorFactory func(conn *domain.DatabaseConnection, password string) (dbclient.Connector, error)

// DatabaseService manages catalog connection profiles and keeps one live
// connector per profile.
type DatabaseService struct {
	connStore domain.DatabaseConnectionStore
	settings  domain.SettingsStore
	secrets   secret.SecretStore
	logger    *slog.Logger
	open      connectorFactory

	mu               sync.Mutex
	activeConnectors map[string]*connEntry
}

type connEntry struct {
	connector dbclient.Connector
	createdAt time.Time
}

// NewDatabaseService creates a DatabaseService.
func NewDatabaseService(
	connStore domain.DatabaseConnectionStore,
	settings domain.SettingsStore,
	secrets secret.SecretStore,
	logger *slog.Logger,
) *DatabaseService {
	return &DatabaseService{
		connStore:        connStore,
		settings:         settings,
		secrets:          secrets,
		logger:           logger.With("component", "databases"),
		open:             dbclient.NewConnector,
		activeConnectors: make(map[string]*connEntry),
	}
}

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.connStore.ListConnections()
}

func (s *DatabaseService) GetConnection(id string) (*domain.DatabaseConnection, error) {
	return s.connStore.GetConnection(id)
}

func (s *DatabaseService) CreateConnection(input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	conn := input.toDomain()
	if err := s.connStore.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if err := s.savePassword(conn.ID, input.Password); err != nil {
		return nil, err
	}
	s.logger.Info("connection created", "id", conn.ID, "name", conn.Name, "driver", conn.Driver)
	return conn, nil
}

// UpdateConnection rewrites a profile. An empty password keeps the stored one.
func (s *DatabaseService) UpdateConnection(id string, input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return nil, err
	}
	if input.Name != "" {
		conn.Name = input.Name
	}
	conn.Driver = domain.DatabaseDriver(input.Driver)
	conn.Host = input.Host
	conn.Port = input.Port
	conn.Database = input.Database
	conn.Username = input.Username
	conn.SSLMode = input.SSLMode
	if err := s.connStore.UpdateConnection(conn); err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}
	if input.Password != "" {
		if err := s.savePassword(id, input.Password); err != nil {
			return nil, err
		}
	}
	// Invalidate cached connector so next query re-connects with new config.
	s.evict(id)
	return conn, nil
}

func (s *DatabaseService) DeleteConnection(id string) error {
	if err := s.connStore.DeleteConnection(id); err != nil {
		return err
	}
	s.evict(id)
	if err := s.secrets.Delete(secretKey(id)); err != nil {
		s.logger.Warn("delete password failed", "id", id, "error", err)
	}
	if def, _ := s.settings.GetSetting(domain.SettingDefaultConnection); def == id {
		_ = s.settings.DeleteSetting(domain.SettingDefaultConnection)
	}
	return nil
}

// ── Default connection ─────────────────────────────────────

// SetDefault makes id the connection used when a request names none.
func (s *DatabaseService) SetDefault(id string) error {
	if _, err := s.connStore.GetConnection(id); err != nil {
		return err
	}
	return s.settings.SetSetting(domain.SettingDefaultConnection, id)
}

// DefaultConnection returns the stored default, or ErrNoConnection.
func (s *DatabaseService) DefaultConnection() (*domain.DatabaseConnection, error) {
	id, err := s.settings.GetSetting(domain.SettingDefaultConnection)
	if err != nil {
		return nil, fmt.Errorf("read default connection: %w", err)
	}
	if id == "" {
		return nil, ErrNoConnection
	}
	conn, err := s.connStore.GetConnection(id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNoConnection
	}
	return conn, err
}

// Resolve picks the connection for a request: the explicit id, else the
// default, else the first profile by name.
func (s *DatabaseService) Resolve(id string) (*domain.DatabaseConnection, error) {
	if id != "" {
		return s.connStore.GetConnection(id)
	}
	conn, err := s.DefaultConnection()
	if err == nil {
		return conn, nil
	}
	if !errors.Is(err, ErrNoConnection) {
		return nil, err
	}
	conns, err := s.connStore.ListConnections()
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, ErrNoConnection
	}
	return &conns[0], nil
}

// ── Configure / Test / Introspect ──────────────────────────

// TestConfig pings a connection described by input without saving it.
func (s *DatabaseService) TestConfig(ctx context.Context, input CreateDBConnInput) error {
	if err := input.normalize(); err != nil {
		return err
	}
	connector, err := s.open(input.toDomain(), input.Password)
	if err != nil {
		return fmt.Errorf("open db connection: %w", err)
	}
	defer connector.Close()
	return connector.TestConnection(ctx)
}

// ConfigureDB verifies input against the live database and, only if the
// ping succeeds, saves it under input.Name (DefaultConnectionName when
// empty) and makes it the default connection.
func (s *DatabaseService) ConfigureDB(ctx context.Context, input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	if input.Name == "" {
		input.Name = DefaultConnectionName
	}
	if err := s.TestConfig(ctx, input); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var conn *domain.DatabaseConnection
	existing, err := s.connStore.GetConnectionByName(input.Name)
	switch {
	case err == nil:
		conn, err = s.UpdateConnection(existing.ID, input)
		if err == nil {
			err = s.savePassword(conn.ID, input.Password)
		}
	case errors.Is(err, domain.ErrNotFound):
		conn, err = s.CreateConnection(input)
	}
	if err != nil {
		return nil, err
	}

	if err := s.SetDefault(conn.ID); err != nil {
		return nil, err
	}
	s.logger.Info("database configured", "id", conn.ID, "name", conn.Name, "host", conn.Host, "port", conn.Port)
	return conn, nil
}

func (s *DatabaseService) TestConnection(ctx context.Context, id string) error {
	connector, err := s.getOrCreate(id)
	if err != nil {
		return err
	}
	return connector.TestConnection(ctx)
}

func (s *DatabaseService) Introspect(ctx context.Context, connectionID string) (*dbclient.SchemaInfo, error) {
	connector, err := s.getOrCreate(connectionID)
	if err != nil {
		return nil, err
	}
	return connector.Introspect(ctx)
}

// Connector returns the pooled connector of a connection, opening it on
// first use.
func (s *DatabaseService) Connector(id string) (dbclient.Connector, error) {
	return s.getOrCreate(id)
}

// ── Export / Import ────────────────────────────────────────

type profileBundle struct {
	Default   string             `yaml:"default,omitempty"`
	Databases map[string]profile `yaml:"databases"`
}

type profile struct {
	Driver  string `yaml:"driver"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port,omitempty"`
	User    string `yaml:"user,omitempty"`
	DBName  string `yaml:"dbname,omitempty"`
	SSLMode string `yaml:"sslmode,omitempty"`
}

// Export writes every profile as YAML. Passwords are never exported.
func (s *DatabaseService) Export(w io.Writer) error {
	conns, err := s.connStore.ListConnections()
	if err != nil {
		return err
	}
	b := profileBundle{Databases: make(map[string]profile, len(conns))}
	for _, c := range conns {
		b.Databases[c.Name] = profile{
			Driver:  string(c.Driver),
			Host:    c.Host,
			Port:    c.Port,
			User:    c.Username,
			DBName:  c.Database,
			SSLMode: c.SSLMode,
		}
	}
	if def, err := s.DefaultConnection(); err == nil {
		b.Default = def.Name
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	return enc.Close()
}

// Import upserts profiles by name from a YAML bundle and returns how many
// were written. Stored passwords are left untouched.
func (s *DatabaseService) Import(r io.Reader) (int, error) {
	var b profileBundle
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return 0, fmt.Errorf("%w: decode profiles: %v", ErrInvalidInput, err)
	}

	names := make([]string, 0, len(b.Databases))
	for name := range b.Databases {
		names = append(names, name)
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		p := b.Databases[name]
		input := CreateDBConnInput{
			Name:     name,
			Driver:   p.Driver,
			Host:     p.Host,
			Port:     p.Port,
			Database: p.DBName,
			Username: p.User,
			SSLMode:  p.SSLMode,
		}
		existing, err := s.connStore.GetConnectionByName(name)
		switch {
		case err == nil:
			_, err = s.UpdateConnection(existing.ID, input)
		case errors.Is(err, domain.ErrNotFound):
			_, err = s.CreateConnection(input)
		}
		if err != nil {
			return n, fmt.Errorf("import %q: %w", name, err)
		}
		n++
	}

	if b.Default != "" {
		conn, err := s.connStore.GetConnectionByName(b.Default)
		if err != nil {
			return n, fmt.Errorf("import default %q: %w", b.Default, err)
		}
		if err := s.SetDefault(conn.ID); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ── Connector Pool ─────────────────────────────────────────

func (s *DatabaseService) getOrCreate(id string) (dbclient.Connector, error) {
	s.mu.Lock()
	if e, ok := s.activeConnectors[id]; ok {
		s.mu.Unlock()
		return e.connector, nil
	}
	s.mu.Unlock()

	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}

	pw, err := s.secrets.Get(secretKey(id))
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}

	connector, err := s.open(conn, string(pw))
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[id]; ok {
		// Lost a race with another request; keep the first connector.
		_ = connector.Close()
		return e.connector, nil
	}
	s.activeConnectors[id] = &connEntry{connector: connector, createdAt: time.Now()}
	return connector, nil
}

func (s *DatabaseService) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[id]; ok {
		_ = e.connector.Close()
		delete(s.activeConnectors, id)
	}
}

func (s *DatabaseService) savePassword(id, password string) error {
	if err := s.secrets.Set(secretKey(id), []byte(password)); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

func secretKey(id string) string { return "db:" + id }

// Close tears down all active database connectors.
func (s *DatabaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.activeConnectors {
		_ = entry.connector.Close()
		delete(s.activeConnectors, id)
	}
}
