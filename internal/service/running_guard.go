package service

import (
	"context"
	"sort"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// refreshGuard: one stats recomputation per connection at a time
// ─────────────────────────────────────────────────────────────

// refreshGuard tracks in-flight stats refreshes by connection id. The zero
// value is ready to use.
type refreshGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// begin marks connID as refreshing. It reports false when a refresh for
// connID is already in flight.
func (g *refreshGuard) begin(connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[connID]; ok {
		return false
	}
	g.running[connID] = struct{}{}
	g.wg.Add(1)
	return true
}

// end releases connID. Call exactly once per successful begin.
func (g *refreshGuard) end(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, connID)
	g.wg.Done()
}

// inFlight lists the connections being refreshed, sorted.
func (g *refreshGuard) inFlight() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.running))
	for id := range g.running {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// wait blocks until every refresh has ended or ctx is done.
func (g *refreshGuard) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
