package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// EventStatsRefreshed is emitted after the scheduled stats recomputation.
const EventStatsRefreshed = "stats:refreshed"

// StatsRefresher recomputes the default connection's dashboard stats on a
// cron schedule. Refreshes of the same connection never overlap.
type StatsRefresher struct {
	catalog *CatalogService
	emitter EventEmitter
	logger  *slog.Logger

	guard refreshGuard

	mu        sync.Mutex
	cronSched *cron.Cron
	schedule  string
}

// NewStatsRefresher creates a stopped refresher.
func NewStatsRefresher(cs *CatalogService, emitter EventEmitter, logger *slog.Logger) *StatsRefresher {
	return &StatsRefresher{
		catalog: cs,
		emitter: emitter,
		logger:  logger.With("component", "refresher"),
	}
}

// Reschedule replaces the running schedule. An empty expression stops
// scheduling.
func (r *StatsRefresher) Reschedule(expr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if expr == r.schedule && (r.cronSched != nil || expr == "") {
		return nil
	}

	var next *cron.Cron
	if expr != "" {
		next = cron.New()
		if _, err := next.AddFunc(expr, r.tick); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
		}
	}

	if r.cronSched != nil {
		r.cronSched.Stop()
	}
	r.cronSched = next
	r.schedule = expr
	if next == nil {
		r.logger.Info("stats refresh disabled")
		return nil
	}
	next.Start()
	r.logger.Info("stats refresh scheduled", "schedule", expr)
	return nil
}

// Schedule returns the active cron expression.
func (r *StatsRefresher) Schedule() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedule
}

func (r *StatsRefresher) tick() {
	err := r.RunOnce(context.Background())
	if err != nil && !errors.Is(err, ErrNoConnection) {
		r.logger.Warn("stats refresh failed", "error", err)
	}
}

// RunOnce recomputes the default connection's stats now. It returns nil
// without doing anything when that connection is already being refreshed.
func (r *StatsRefresher) RunOnce(ctx context.Context) error {
	conn, err := r.catalog.dbs.Resolve("")
	if err != nil {
		return err
	}
	if !r.guard.begin(conn.ID) {
		r.logger.Debug("stats refresh already running", "connection", conn.Name)
		return nil
	}
	defer r.guard.end(conn.ID)

	snap, err := r.catalog.RefreshStats(ctx, conn.ID)
	if err != nil {
		return err
	}
	r.emitter.Emit(ctx, EventStatsRefreshed, map[string]any{
		"connectionId": snap.ConnectionID,
		"users":        len(snap.Users),
		"durationMs":   snap.Duration.Milliseconds(),
	})
	return nil
}

// Stop halts scheduling and waits for a running refresh until ctx ends.
func (r *StatsRefresher) Stop(ctx context.Context) {
	r.mu.Lock()
	var stopped context.Context
	if r.cronSched != nil {
		stopped = r.cronSched.Stop()
		r.cronSched = nil
	}
	r.schedule = ""
	r.mu.Unlock()

	if stopped != nil {
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	if ids := r.guard.inFlight(); len(ids) > 0 {
		r.logger.Info("waiting for stats refresh", "connections", ids)
	}
	r.guard.wait(ctx)
}
