package sync

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/njoerd114/availsync/internal/model"
)

// PendingTracker mirrors the server's pending-sync backlog for one scope. It
// only ever holds server-reported values. The date range is looked up only
// while the count is positive and is cleared as soon as the count is zero.
type PendingTracker struct {
	api   ChannelManager
	scope model.Scope
	log   *slog.Logger

	mu    sync.Mutex
	state model.PendingState
}

// NewPendingTracker creates a tracker for scope.
func NewPendingTracker(api ChannelManager, scope model.Scope, logger *slog.Logger) *PendingTracker {
	return &PendingTracker{api: api, scope: scope, log: logger}
}

// Scope returns the scope the tracker queries.
func (p *PendingTracker) Scope() model.Scope {
	return p.scope
}

// RefreshCount reads the pending count and, when it is positive, the date
// range. On error the previous state is kept.
func (p *PendingTracker) RefreshCount(ctx context.Context) (int, error) {
	pc, err := p.api.PendingCount(ctx, p.scope)
	if err != nil {
		return 0, fmt.Errorf("refreshing pending count: %w", err)
	}

	p.mu.Lock()
	p.state.Count = pc.Count
	p.state.ByScope = maps.Clone(pc.ByScope)
	if pc.Count == 0 {
		p.state.DateRange = nil
	}
	p.mu.Unlock()

	p.log.Debug("pending count refreshed", "pending_count", pc.Count)

	if pc.Count > 0 {
		if _, err := p.RefreshDateRange(ctx); err != nil {
			p.log.Warn("refreshing pending date range", "error", err)
		}
	}
	return pc.Count, nil
}

// RefreshDateRange reads the pending date range. It does not query the
// server while the count is zero.
func (p *PendingTracker) RefreshDateRange(ctx context.Context) (*model.PendingDateRange, error) {
	if p.Count() == 0 {
		p.setRange(nil)
		return nil, nil
	}

	r, err := p.api.PendingDateRange(ctx, p.scope)
	if err != nil {
		return nil, fmt.Errorf("refreshing pending date range: %w", err)
	}
	p.setRange(r)
	return p.State().DateRange, nil
}

// Apply sets the state from a sync_pending_updated payload. It reports
// whether the payload left the date range unknown while items are pending,
// in which case the caller should call [PendingTracker.RefreshDateRange].
func (p *PendingTracker) Apply(d model.PendingUpdatedData) (needRange bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Count = d.Count
	p.state.ByScope = maps.Clone(d.ByScope)
	switch {
	case d.Count == 0:
		p.state.DateRange = nil
	case d.DateRange != nil:
		r := *d.DateRange
		p.state.DateRange = &r
	default:
		return true
	}
	return false
}

// Clear records an empty backlog.
func (p *PendingTracker) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = model.PendingState{}
}

// Count returns the last known pending count.
func (p *PendingTracker) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Count
}

// State returns a copy of the pending state.
func (p *PendingTracker) State() model.PendingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state
	st.ByScope = maps.Clone(st.ByScope)
	if st.DateRange != nil {
		r := *st.DateRange
		st.DateRange = &r
	}
	return st
}

// setRange stores r unless the backlog emptied while it was being read.
func (p *PendingTracker) setRange(r *model.PendingDateRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Count == 0 || r == nil {
		p.state.DateRange = nil
		return
	}
	cp := *r
	p.state.DateRange = &cp
}
