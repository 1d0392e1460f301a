package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/njoerd114/availsync/internal/schedule"
)

// Delays are the settle times before reconciling re-fetches and the time a
// finished sync session stays visible.
type Delays struct {
	EditRefetch         time.Duration
	SyncRefetch         time.Duration
	BulkRefetch         time.Duration
	AvailabilityRefetch time.Duration
	SessionDisplay      time.Duration
}

// DefaultDelays returns the delays used when none are configured.
func DefaultDelays() Delays {
	return Delays{
		EditRefetch:         1500 * time.Millisecond,
		SyncRefetch:         time.Second,
		BulkRefetch:         time.Second,
		AvailabilityRefetch: 3 * time.Second,
		SessionDisplay:      3 * time.Second,
	}
}

// Refetcher schedules delayed forced fetches. Scheduled fetches are fire and
// forget and are not coalesced: two fetches scheduled close together both
// run.
type Refetcher struct {
	fetcher *Fetcher
	sched   schedule.Scheduler
	log     *slog.Logger

	mu      sync.Mutex
	base    context.Context
	nextID  int
	handles map[int]schedule.Handle
}

// NewRefetcher creates a Refetcher. Fetches run under context.Background
// until [Refetcher.bind] supplies a run context.
func NewRefetcher(f *Fetcher, sched schedule.Scheduler, logger *slog.Logger) *Refetcher {
	return &Refetcher{
		fetcher: f,
		sched:   sched,
		log:     logger,
		base:    context.Background(),
		handles: make(map[int]schedule.Handle),
	}
}

// After schedules one forced background fetch after delay.
func (r *Refetcher) After(delay time.Duration, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.handles[id] = r.sched.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.handles, id)
		ctx := r.base
		r.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		r.log.Debug("running scheduled re-fetch", "reason", reason)
		if _, err := r.fetcher.Fetch(ctx, FetchOptions{Force: true}); err != nil && !errors.Is(err, ErrSuperseded) {
			r.log.Warn("scheduled re-fetch failed", "reason", reason, "error", err)
		}
	})
}

// Outstanding returns the number of scheduled fetches that have not run.
func (r *Refetcher) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stop cancels every scheduled fetch that has not started.
func (r *Refetcher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.handles {
		h.Stop()
		delete(r.handles, id)
	}
}

func (r *Refetcher) bind(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = ctx
}
