package domain

import "time"

// QueryHistoryEntry records one bucket search.
type QueryHistoryEntry struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	BID          string    `json:"bid"`
	BName        string    `json:"bname"`
	MainRows     int       `json:"mainRows"`
	DetailRows   int       `json:"detailRows"`
	DurationMs   int       `json:"durationMs"`
	Error        string    `json:"error"`
	ExecutedAt   time.Time `json:"executedAt"`
}

// QueryHistoryStore persists bucket search history.
type QueryHistoryStore interface {
	Record(e *QueryHistoryEntry) error
	Recent(limit int) ([]QueryHistoryEntry, error)
	Prune(keep int) error
}
