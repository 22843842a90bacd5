// Package catalog runs the read-only queries of the bucket administration
// panel against a catalog database.
//
// The catalog layout is fixed: a users table, a buckets table mapping each
// bucket to its owner and partition, and 256 file tables named
// bucket_files_00 .. bucket_files_ff.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"bucketadmin/internal/dbclient"
	"bucketadmin/internal/domain"
)

// ErrInvalidPartition is returned when a partition label is not two
// lowercase hex digits and therefore cannot name a file table.
var ErrInvalidPartition = errors.New("invalid partition label")

// DefaultFilesLimit caps Files when the filter sets no limit.
const DefaultFilesLimit = 20

// Catalog queries one catalog database.
type Catalog struct {
	db          *sql.DB
	dialect     dbclient.Dialect
	logger      *slog.Logger
	concurrency int
}

// New creates a Catalog. concurrency bounds the number of queries issued
// at once by UserStats; values below 1 mean 1.
func New(db *sql.DB, dialect dbclient.Dialect, logger *slog.Logger, concurrency int) *Catalog {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Catalog{
		db:          db,
		dialect:     dialect,
		logger:      logger.With("component", "catalog"),
		concurrency: concurrency,
	}
}

// FromConnector builds a Catalog over a connector's pool.
func FromConnector(c dbclient.Connector, logger *slog.Logger, concurrency int) *Catalog {
	return New(c.DB(), c.Dialect(), logger, concurrency)
}

// filesTable returns the quoted file table for a partition.
func (c *Catalog) filesTable(part string) (string, error) {
	if !domain.ValidPartition(part) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPartition, part)
	}
	return c.dialect.QuoteIdent("bucket_files_" + part), nil
}

// userCol is the quoted owner column of the buckets table.
func (c *Catalog) userCol() string {
	return c.dialect.QuoteIdent("user")
}

func (c *Catalog) rebind(query string) string {
	return c.dialect.Rebind(query)
}
