package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"bucketadmin/internal/domain"
)

// StatsFilter narrows UserStats. With BID or BName set, only the matching
// buckets are counted and only their owners are returned.
type StatsFilter struct {
	BID      string
	BName    string
	Username string
	// Limit caps the partitions examined per user, or the matching
	// buckets when filtering by bucket. 0 means no cap.
	Limit int
}

func (f StatsFilter) byBucket() bool {
	return f.BID != "" || f.BName != ""
}

// statsTask is one (user, partition) pair to aggregate. bid restricts the
// count to a single bucket when non-zero.
type statsTask struct {
	user  int
	part  string
	bid   uint64
	bname string

	result domain.PartitionStats
	ok     bool
}

// UserStats returns per-user file counts and byte totals, broken down by
// partition and sorted by user id. Partitions holding no files are left
// out. A failure for one user or partition is logged and that item
// skipped; only the initial user query and context cancellation fail
// the call.
func (c *Catalog) UserStats(ctx context.Context, f StatsFilter) ([]domain.UserStats, error) {
	var (
		users []domain.UserStats
		tasks []*statsTask
		err   error
	)
	if f.byBucket() {
		users, tasks, err = c.bucketTasks(ctx, f)
	} else {
		users, tasks, err = c.partitionTasks(ctx, f)
	}
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			return c.runStatsTask(gctx, users[t.user].ID, t)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if !t.ok || t.result.Count == 0 {
			continue
		}
		u := &users[t.user]
		u.Partitions = append(u.Partitions, t.result)
		u.TotalFiles += t.result.Count
		u.TotalSize += t.result.Size
	}
	for i := range users {
		if users[i].Partitions == nil {
			users[i].Partitions = []domain.PartitionStats{}
		}
		sort.SliceStable(users[i].Partitions, func(a, b int) bool {
			return users[i].Partitions[a].Partition < users[i].Partitions[b].Partition
		})
	}
	sort.SliceStable(users, func(a, b int) bool { return users[a].ID < users[b].ID })
	return users, nil
}

// partitionTasks lists users and, concurrently, the partitions of each.
func (c *Catalog) partitionTasks(ctx context.Context, f StatsFilter) ([]domain.UserStats, []*statsTask, error) {
	query := "SELECT id, username, status FROM users WHERE 1=1"
	var args []any
	if f.Username != "" {
		query += " AND username = ?"
		args = append(args, f.Username)
	}
	query += " ORDER BY id"

	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query users: %w", err)
	}
	var users []domain.UserStats
	for rows.Next() {
		var u domain.UserStats
		var status sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &status); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan user: %w", err)
		}
		u.Status = status.String
		users = append(users, u)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("iterate users: %w", err)
	}

	parts := make([][]string, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range users {
		g.Go(func() error {
			p, err := c.distinctParts(gctx, users[i].ID, f.Limit)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("skipping user partitions", "user", users[i].ID, "error", err)
				return nil
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var tasks []*statsTask
	for i, ps := range parts {
		for _, p := range ps {
			if !domain.ValidPartition(p) {
				c.logger.Warn("skipping invalid partition", "user", users[i].ID, "partition", p)
				continue
			}
			tasks = append(tasks, &statsTask{user: i, part: p})
		}
	}
	return users, tasks, nil
}

func (c *Catalog) distinctParts(ctx context.Context, userID uint64, limit int) ([]string, error) {
	query := "SELECT DISTINCT part FROM buckets WHERE " + c.userCol() + " = ? ORDER BY part"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// bucketTasks joins users to the buckets matching the filter; each
// matching bucket becomes one task on its owner.
func (c *Catalog) bucketTasks(ctx context.Context, f StatsFilter) ([]domain.UserStats, []*statsTask, error) {
	query := "SELECT u.id, u.username, u.status, b.bid, b.bname, b.part FROM users u JOIN buckets b ON u.id = b." +
		c.userCol() + " WHERE 1=1"
	var args []any
	if f.Username != "" {
		query += " AND u.username = ?"
		args = append(args, f.Username)
	}
	if f.BID != "" {
		query += " AND b.bid = ?"
		args = append(args, f.BID)
	}
	if f.BName != "" {
		query += " AND b.bname = ?"
		args = append(args, f.BName)
	}
	query += " ORDER BY u.id, b.bid"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	var (
		users []domain.UserStats
		tasks []*statsTask
		index = map[uint64]int{}
	)
	for rows.Next() {
		var u domain.UserStats
		var status sql.NullString
		var bid uint64
		var bname, part string
		if err := rows.Scan(&u.ID, &u.Username, &status, &bid, &bname, &part); err != nil {
			return nil, nil, fmt.Errorf("scan bucket: %w", err)
		}
		u.Status = status.String

		i, ok := index[u.ID]
		if !ok {
			i = len(users)
			index[u.ID] = i
			users = append(users, u)
		}
		if !domain.ValidPartition(part) {
			c.logger.Warn("skipping invalid partition", "bid", bid, "partition", part)
			continue
		}
		tasks = append(tasks, &statsTask{user: i, part: part, bid: bid, bname: bname})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return users, tasks, nil
}

// runStatsTask fills t.result. Query errors are logged and leave t.ok unset.
func (c *Catalog) runStatsTask(ctx context.Context, userID uint64, t *statsTask) error {
	stats, err := c.partitionStats(ctx, userID, t)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("skipping partition stats", "user", userID, "partition", t.part, "error", err)
		return nil
	}
	t.result = stats
	t.ok = true
	return nil
}

func (c *Catalog) partitionStats(ctx context.Context, userID uint64, t *statsTask) (domain.PartitionStats, error) {
	table, err := c.filesTable(t.part)
	if err != nil {
		return domain.PartitionStats{}, err
	}
	stats := domain.PartitionStats{Partition: t.part, BID: t.bid, BName: t.bname}

	if t.bid != 0 {
		err = c.db.QueryRowContext(ctx,
			c.rebind("SELECT COUNT(*), COALESCE(SUM(fsize), 0) FROM "+table+" WHERE bid = ?"), t.bid,
		).Scan(&stats.Count, &stats.Size)
		return stats, err
	}

	err = c.db.QueryRowContext(ctx,
		c.rebind("SELECT COUNT(*), COALESCE(SUM(fsize), 0) FROM "+table+
			" WHERE bid IN (SELECT bid FROM buckets WHERE "+c.userCol()+" = ? AND part = ?)"),
		userID, t.part,
	).Scan(&stats.Count, &stats.Size)
	if err != nil {
		return stats, err
	}
	if stats.Count == 0 {
		return stats, nil
	}

	// Label the row with the user's first bucket in this partition.
	err = c.db.QueryRowContext(ctx,
		c.rebind("SELECT bid, bname FROM buckets WHERE "+c.userCol()+" = ? AND part = ? ORDER BY bid LIMIT 1"),
		userID, t.part,
	).Scan(&stats.BID, &stats.BName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.logger.Warn("bucket lookup failed", "user", userID, "partition", t.part, "error", err)
	}
	return stats, nil
}
