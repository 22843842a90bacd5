package catalog

import (
	"context"
	"fmt"

	"bucketadmin/internal/domain"
)

// SearchBuckets returns the buckets matching bid and bname (either may be
// empty) followed by the file rows of every matching bucket. A failing
// file query only drops that bucket's details.
func (c *Catalog) SearchBuckets(ctx context.Context, bid, bname string) (*domain.SearchResult, error) {
	query := "SELECT bid, bname, " + c.userCol() + ", part FROM buckets WHERE 1=1"
	var args []any
	if bid != "" {
		query += " AND bid = ?"
		args = append(args, bid)
	}
	if bname != "" {
		query += " AND bname = ?"
		args = append(args, bname)
	}
	query += " ORDER BY bid"

	c.logger.Debug("search buckets", "bid", bid, "bname", bname)
	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	result := &domain.SearchResult{
		MainData: []domain.Bucket{},
		Details:  []domain.FileDetail{},
	}
	for rows.Next() {
		var b domain.Bucket
		if err := rows.Scan(&b.BID, &b.BName, &b.User, &b.Partition); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		result.MainData = append(result.MainData, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	rows.Close()

	for _, b := range result.MainData {
		details, err := c.bucketFiles(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("skipping bucket details", "bid", b.BID, "partition", b.Partition, "error", err)
			continue
		}
		result.Details = append(result.Details, details...)
	}
	return result, nil
}

func (c *Catalog) bucketFiles(ctx context.Context, b domain.Bucket) ([]domain.FileDetail, error) {
	table, err := c.filesTable(b.Partition)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		c.rebind("SELECT fid, fname, bid, fsize FROM "+table+" WHERE bid = ? ORDER BY fid"), b.BID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FileDetail
	for rows.Next() {
		var f domain.FileDetail
		if err := rows.Scan(&f.FID, &f.FName, &f.BID, &f.FSize); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UserPartitions returns the distinct partition labels of a user's
// buckets, ascending. Labels are returned as stored.
func (c *Catalog) UserPartitions(ctx context.Context, userID uint64) ([]domain.PartitionRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		c.rebind("SELECT DISTINCT part FROM buckets WHERE "+c.userCol()+" = ? ORDER BY part"), userID)
	if err != nil {
		return nil, fmt.Errorf("query partitions: %w", err)
	}
	defer rows.Close()

	out := []domain.PartitionRecord{}
	for rows.Next() {
		var p domain.PartitionRecord
		if err := rows.Scan(&p.Partition); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return out, nil
}

// FileFilter selects files of one user in one partition.
type FileFilter struct {
	UserID   uint64
	Part     string
	FID      uint64 // 0 = any
	FName    string // substring match
	BucketID uint64 // 0 = any
	Limit    int    // 0 = DefaultFilesLimit
}

// Files lists the files of a user in one partition.
func (c *Catalog) Files(ctx context.Context, f FileFilter) ([]domain.FileInfo, error) {
	table, err := c.filesTable(f.Part)
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultFilesLimit
	}

	query := "SELECT fid, fname, bid, fsize, status FROM " + table +
		" WHERE bid IN (SELECT bid FROM buckets WHERE " + c.userCol() + " = ? AND part = ?)"
	args := []any{f.UserID, f.Part}
	if f.FID > 0 {
		query += " AND fid = ?"
		args = append(args, f.FID)
	}
	if f.FName != "" {
		query += " AND fname LIKE ?"
		args = append(args, "%"+f.FName+"%")
	}
	if f.BucketID > 0 {
		query += " AND bid = ?"
		args = append(args, f.BucketID)
	}
	query += " ORDER BY fid LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	out := []domain.FileInfo{}
	for rows.Next() {
		var fi domain.FileInfo
		if err := rows.Scan(&fi.FID, &fi.FName, &fi.BID, &fi.FSize, &fi.Status); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, fi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}
