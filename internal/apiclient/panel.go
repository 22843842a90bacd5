package apiclient

import (
	"context"
	"errors"
	"sync"

	"bucketadmin/internal/domain"
	"bucketadmin/internal/view"
)

type region int

const (
	regionResults region = iota
	regionUsers
	regionGrid
	regionConfig
	numRegions
)

type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Panel is the state of an administration panel driven through Client.
// Each region (search results, user list, grid, config message) tracks
// its latest request: issuing a new one cancels the previous, and a
// response is applied only while its request is still the latest.
type Panel struct {
	client *Client

	mu      sync.Mutex
	state   view.PanelState
	regions [numRegions]inflight
}

// NewPanel creates an empty panel.
func NewPanel(c *Client) *Panel {
	return &Panel{client: c}
}

func (p *Panel) begin(ctx context.Context, r region) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev := p.regions[r].cancel; prev != nil {
		prev()
	}
	p.regions[r].gen++
	p.regions[r].cancel = cancel
	return ctx, p.regions[r].gen
}

// commit runs apply under the lock if gen is still current for r.
func (p *Panel) commit(r region, gen uint64, apply func(s *view.PanelState)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.regions[r].gen != gen {
		return false
	}
	p.regions[r].cancel()
	p.regions[r].cancel = nil
	apply(&p.state)
	return true
}

// Search runs a bucket search. Success replaces Results; an error sets
// only Alert and leaves the previous Results in place.
func (p *Panel) Search(ctx context.Context, bid, bname string) error {
	ctx, gen := p.begin(ctx, regionResults)
	res, err := p.client.Query(ctx, bid, bname)

	applied := p.commit(regionResults, gen, func(s *view.PanelState) {
		if err != nil {
			s.Alert = err.Error()
			return
		}
		s.Results = res
		s.Alert = ""
	})
	if !applied {
		return ErrSuperseded
	}
	return err
}

// LoadUsers replaces the user list.
func (p *Panel) LoadUsers(ctx context.Context) error {
	ctx, gen := p.begin(ctx, regionUsers)
	users, err := p.client.Users(ctx)

	applied := p.commit(regionUsers, gen, func(s *view.PanelState) {
		if err != nil {
			s.Alert = err.Error()
			return
		}
		s.Users = users
		s.Alert = ""
	})
	if !applied {
		return ErrSuperseded
	}
	return err
}

// SelectUser loads a user's partitions and shows their grid.
func (p *Panel) SelectUser(ctx context.Context, userID uint64) error {
	ctx, gen := p.begin(ctx, regionGrid)
	parts, err := p.client.Partitions(ctx, userID)

	applied := p.commit(regionGrid, gen, func(s *view.PanelState) {
		if err != nil {
			s.Alert = err.Error()
			return
		}
		s.Selected = userID
		s.HasGrid = true
		s.Grid = view.BuildGrid(parts)
		s.Alert = ""
	})
	if !applied {
		return ErrSuperseded
	}
	return err
}

// ConfigureDB submits cfg; the server's message or error is shown.
func (p *Panel) ConfigureDB(ctx context.Context, cfg DbConfig) error {
	ctx, gen := p.begin(ctx, regionConfig)
	msg, err := p.client.ConfigureDB(ctx, cfg)

	applied := p.commit(regionConfig, gen, func(s *view.PanelState) {
		if err != nil {
			s.Alert = err.Error()
			s.Message = ""
			return
		}
		s.Message = msg
		s.Alert = ""
	})
	if !applied {
		return ErrSuperseded
	}
	return err
}

// Snapshot returns a copy of the current state.
func (p *Panel) Snapshot() view.PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	if p.state.Users != nil {
		s.Users = make([]domain.UserSummary, len(p.state.Users))
		copy(s.Users, p.state.Users)
	}
	if p.state.Results != nil {
		r := domain.SearchResult{
			MainData: append([]domain.Bucket(nil), p.state.Results.MainData...),
			Details:  append([]domain.FileDetail(nil), p.state.Results.Details...),
		}
		s.Results = &r
	}
	return s
}

// Superseded reports whether err means the response was discarded.
func Superseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
