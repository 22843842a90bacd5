package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bucketadmin/internal/domain"
)

// QueryHistoryStore keeps a log of bucket searches in SQLite.
type QueryHistoryStore struct {
	db *DB
}

var _ domain.QueryHistoryStore = (*QueryHistoryStore)(nil)

// NewQueryHistoryStore creates a new QueryHistoryStore.
func NewQueryHistoryStore(db *DB) *QueryHistoryStore {
	return &QueryHistoryStore{db: db}
}

// Record inserts one search. ID and ExecutedAt are filled when empty.
func (s *QueryHistoryStore) Record(e *domain.QueryHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now().UTC()
	}

	_, err := s.db.Conn().Exec(
		`INSERT INTO query_history (id, connection_id, bid, bname, main_rows, detail_rows, duration_ms, error, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConnectionID, e.BID, e.BName, e.MainRows, e.DetailRows, e.DurationMs, e.Error, e.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("record query history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *QueryHistoryStore) Recent(limit int) ([]domain.QueryHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(
		`SELECT id, connection_id, bid, bname, main_rows, detail_rows, duration_ms, error, executed_at
		 FROM query_history ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer rows.Close()

	var out []domain.QueryHistoryEntry
	for rows.Next() {
		var e domain.QueryHistoryEntry
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.BID, &e.BName, &e.MainRows, &e.DetailRows,
			&e.DurationMs, &e.Error, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan query history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep entries.
func (s *QueryHistoryStore) Prune(keep int) error {
	_, err := s.db.Conn().Exec(
		`DELETE FROM query_history WHERE id NOT IN
		 (SELECT id FROM query_history ORDER BY executed_at DESC LIMIT ?)`, keep)
	return err
}
