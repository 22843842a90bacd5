package domain

import (
	"fmt"
	"time"
)

// PartitionCount is the number of bucket_files_<xx> tables in a catalog.
const PartitionCount = 256

// PartitionLabel returns the two-digit lowercase hex label of partition i.
func PartitionLabel(i int) string {
	return fmt.Sprintf("%02x", i)
}

// ValidPartition reports whether s is a label produced by PartitionLabel.
func ValidPartition(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Bucket is one row of the catalog's buckets table.
type Bucket struct {
	BID       uint64 `json:"bid"`
	BName     string `json:"bname"`
	User      uint64 `json:"user"`
	Partition string `json:"partition"`
}

// Sizes are bytes held as float64: catalogs may store fsize as REAL or
// DECIMAL, and MySQL returns SUM over DECIMAL as text like "123.00".

// FileDetail is one row of a bucket_files_<part> table as returned by a bucket search.
type FileDetail struct {
	FID   uint64  `json:"fid"`
	FName string  `json:"fname"`
	BID   uint64  `json:"bid"`
	FSize float64 `json:"fsize"`
}

// FileInfo is a file row listed for one user and partition.
type FileInfo struct {
	FID    uint64  `json:"fid"`
	FName  string  `json:"fname"`
	BID    uint64  `json:"bid"`
	FSize  float64 `json:"fsize"`
	Status string  `json:"status"`
}

// SearchResult is the answer to a bucket search.
type SearchResult struct {
	MainData []Bucket     `json:"main_data"`
	Details  []FileDetail `json:"details"`
}

// PartitionStats aggregates one user's files in one partition.
type PartitionStats struct {
	Partition string  `json:"partition"`
	Count     uint64  `json:"count"`
	Size      float64 `json:"size"`
	BID       uint64  `json:"bid,omitempty"`
	BName     string  `json:"bname,omitempty"`
}

// UserStats aggregates a user's files across partitions. Sizes are bytes.
type UserStats struct {
	ID         uint64           `json:"id"`
	Username   string           `json:"username"`
	Status     string           `json:"status"`
	TotalFiles uint64           `json:"total_files"`
	TotalSize  float64          `json:"total_size"`
	Partitions []PartitionStats `json:"partitions"`
}

// UserSummary is the wire shape of one dashboard row.
type UserSummary struct {
	ID         uint64   `json:"id"`
	Name       string   `json:"name"`
	TotalFiles uint64   `json:"total_files"`
	TotalSize  float64  `json:"total_size"`
	Partitions []string `json:"partitions"`
}

// Summary converts stats into the dashboard row shape. Partitions lists
// each label once, in first-seen order, even when several buckets of the
// user share it.
func (u UserStats) Summary() UserSummary {
	parts := make([]string, 0, len(u.Partitions))
	seen := make(map[string]bool, len(u.Partitions))
	for _, p := range u.Partitions {
		if seen[p.Partition] {
			continue
		}
		seen[p.Partition] = true
		parts = append(parts, p.Partition)
	}
	return UserSummary{
		ID:         u.ID,
		Name:       u.Username,
		TotalFiles: u.TotalFiles,
		TotalSize:  u.TotalSize,
		Partitions: parts,
	}
}

// PartitionRecord is one partition label owned by a user.
type PartitionRecord struct {
	Partition string `json:"partition"`
}

// StatsSnapshot is a computed set of user stats for one connection.
type StatsSnapshot struct {
	ConnectionID string        `json:"connectionId"`
	Users        []UserStats   `json:"users"`
	ComputedAt   time.Time     `json:"computedAt"`
	Duration     time.Duration `json:"duration"`
}

// Totals aggregates the dashboard rows.
type Totals struct {
	Users int     `json:"total_users"`
	Files uint64  `json:"total_files"`
	Size  float64 `json:"total_size"`
}

// SumUsers adds up the users' file counts and sizes.
func SumUsers(users []UserSummary) Totals {
	t := Totals{Users: len(users)}
	for _, u := range users {
		t.Files += u.TotalFiles
		t.Size += u.TotalSize
	}
	return t
}
