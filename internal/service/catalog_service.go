package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/domain"
)

// historyKeep bounds the query_history table; it is pruned every
// historyPruneEvery recorded searches.
const (
	historyKeep       = 1000
	historyPruneEvery = 100
)

// CatalogOptions tunes CatalogService.
type CatalogOptions struct {
	QueryTimeout time.Duration
	StatsTTL     time.Duration
	FilesLimit   int
	Concurrency  int
}

// CatalogService runs catalog queries against the resolved connection,
// records bucket searches and caches dashboard stats.
type CatalogService struct {
	dbs     *DatabaseService
	history domain.QueryHistoryStore
	logger  *slog.Logger

	timeout     time.Duration
	statsTTL    time.Duration
	filesLimit  int
	concurrency atomic.Int32
	recorded    atomic.Int64

	mu    sync.Mutex
	stats map[string]*domain.StatsSnapshot
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(dbs *DatabaseService, history domain.QueryHistoryStore, logger *slog.Logger, opts CatalogOptions) *CatalogService {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.FilesLimit <= 0 {
		opts.FilesLimit = catalog.DefaultFilesLimit
	}
	s := &CatalogService{
		dbs:        dbs,
		history:    history,
		logger:     logger.With("component", "catalog-service"),
		timeout:    opts.QueryTimeout,
		statsTTL:   opts.StatsTTL,
		filesLimit: opts.FilesLimit,
		stats:      make(map[string]*domain.StatsSnapshot),
	}
	s.SetConcurrency(opts.Concurrency)
	return s
}

// SetConcurrency changes the fan-out bound of stats queries.
func (s *CatalogService) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.concurrency.Store(int32(n))
}

// open resolves connID and returns the catalog over its pooled connector.
func (s *CatalogService) open(connID string) (*catalog.Catalog, *domain.DatabaseConnection, error) {
	conn, err := s.dbs.Resolve(connID)
	if err != nil {
		return nil, nil, err
	}
	connector, err := s.dbs.Connector(conn.ID)
	if err != nil {
		return nil, nil, err
	}
	return catalog.FromConnector(connector, s.logger, int(s.concurrency.Load())), conn, nil
}

// Search runs a bucket search and records it in the history.
func (s *CatalogService) Search(ctx context.Context, connID, bid, bname string) (*domain.SearchResult, error) {
	cat, conn, err := s.open(connID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := cat.SearchBuckets(ctx, bid, bname)

	entry := &domain.QueryHistoryEntry{
		ConnectionID: conn.ID,
		BID:          bid,
		BName:        bname,
		DurationMs:   int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.MainRows = len(res.MainData)
		entry.DetailRows = len(res.Details)
	}
	s.record(entry)

	if err != nil {
		return nil, fmt.Errorf("search buckets: %w", err)
	}
	return res, nil
}

func (s *CatalogService) record(e *domain.QueryHistoryEntry) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(e); err != nil {
		s.logger.Warn("record history failed", "error", err)
		return
	}
	if s.recorded.Add(1)%historyPruneEvery == 0 {
		if err := s.history.Prune(historyKeep); err != nil {
			s.logger.Warn("prune history failed", "error", err)
		}
	}
}

// History returns recent bucket searches, newest first.
func (s *CatalogService) History(limit int) ([]domain.QueryHistoryEntry, error) {
	return s.history.Recent(limit)
}

// Users returns user stats. An unfiltered request is served from the cache
// while it is younger than the stats TTL, unless refresh is set.
func (s *CatalogService) Users(ctx context.Context, connID string, f catalog.StatsFilter, refresh bool) ([]domain.UserStats, error) {
	if f != (catalog.StatsFilter{}) {
		cat, _, err := s.open(connID)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		users, err := cat.UserStats(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("user stats: %w", err)
		}
		return users, nil
	}

	conn, err := s.dbs.Resolve(connID)
	if err != nil {
		return nil, err
	}
	if !refresh {
		if snap, ok := s.CachedStats(conn.ID); ok && s.statsTTL > 0 && time.Since(snap.ComputedAt) < s.statsTTL {
			return snap.Users, nil
		}
	}
	snap, err := s.RefreshStats(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	return snap.Users, nil
}

// RefreshStats recomputes the unfiltered user stats of a connection and
// stores them in the cache.
func (s *CatalogService) RefreshStats(ctx context.Context, connID string) (*domain.StatsSnapshot, error) {
	cat, conn, err := s.open(connID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	users, err := cat.UserStats(ctx, catalog.StatsFilter{})
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	snap := &domain.StatsSnapshot{
		ConnectionID: conn.ID,
		Users:        users,
		ComputedAt:   time.Now(),
		Duration:     time.Since(start),
	}

	s.mu.Lock()
	s.stats[conn.ID] = snap
	s.mu.Unlock()
	s.logger.Debug("stats refreshed", "connection", conn.ID, "users", len(users), "took", snap.Duration)
	return snap, nil
}

// CachedStats returns the last computed stats of a connection.
func (s *CatalogService) CachedStats(connID string) (*domain.StatsSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.stats[connID]
	return snap, ok
}

// InvalidateStats drops the cached stats of a connection.
func (s *CatalogService) InvalidateStats(connID string) {
	s.mu.Lock()
	delete(s.stats, connID)
	s.mu.Unlock()
}

// Partitions returns the partition labels of a user's buckets.
func (s *CatalogService) Partitions(ctx context.Context, connID string, userID uint64) ([]domain.PartitionRecord, error) {
	cat, _, err := s.open(connID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parts, err := cat.UserPartitions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d partitions: %w", userID, err)
	}
	return parts, nil
}

// Files lists files of one user in one partition. A zero limit uses the
// configured files limit.
func (s *CatalogService) Files(ctx context.Context, connID string, f catalog.FileFilter) ([]domain.FileInfo, error) {
	cat, _, err := s.open(connID)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = s.filesLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	files, err := cat.Files(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}
