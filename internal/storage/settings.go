package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"bucketadmin/internal/domain"
)

// SettingsStore is a key/value table in SQLite.
type SettingsStore struct {
	db *DB
}

var _ domain.SettingsStore = (*SettingsStore)(nil)

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetSetting returns the value for key, or "" and nil if unset.
func (s *SettingsStore) GetSetting(key string) (string, error) {
	var v string
	err := s.db.Conn().QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

func (s *SettingsStore) SetSetting(key, value string) error {
	_, err := s.db.Conn().Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) DeleteSetting(key string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}
