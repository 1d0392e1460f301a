package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/njoerd114/availsync/internal/model"
)

// ErrSuperseded is returned by [Fetcher.Fetch] when a newer fetch was issued
// while this one was in flight. Its response is discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// FetchOptions control a single fetch.
type FetchOptions struct {
	// Force bypasses signature de-duplication.
	Force bool
	// ShowLoading sets the loading flag for the duration of the fetch.
	// Background refreshes leave it unset.
	ShowLoading bool
}

// Fetcher owns the calendar window, the filters and the current snapshot.
// The snapshot is written only by Fetch (wholesale) and patchCell (one cell);
// both swap in a new *model.Snapshot, so a pointer returned by [Fetcher.Snapshot]
// is never modified afterwards.
type Fetcher struct {
	api   ChannelManager
	cache SnapshotCache // optional
	log   *slog.Logger

	mu       sync.Mutex
	window   model.Window
	filters  model.Filters
	lastSig  string
	issued   uint64
	snapshot *model.Snapshot
	loading  bool
	lastErr  error
}

// NewFetcher creates a Fetcher for the initial window and filters. cache may
// be nil.
func NewFetcher(api ChannelManager, cache SnapshotCache, w model.Window, f model.Filters, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		api:     api,
		cache:   cache,
		log:     logger,
		window:  w,
		filters: copyFilters(f),
	}
}

// Fetch reads the calendar for the current window and filters.
//
// Without opts.Force, a fetch whose signature matches the previously issued
// one is a no-op returning the current snapshot, which is nil while the
// first fetch is still in flight. On success the snapshot and
// its statistics are replaced in one step. On failure the last good snapshot
// is kept and the error is recorded for [Fetcher.Err].
func (f *Fetcher) Fetch(ctx context.Context, opts FetchOptions) (*model.Snapshot, error) {
	f.mu.Lock()
	w, filters := f.window, copyFilters(f.filters)
	if err := w.Validate(); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	sig := model.Signature(w, filters)
	if !opts.Force && sig == f.lastSig {
		snap := f.snapshot
		f.mu.Unlock()
		f.log.Debug("calendar fetch skipped, signature unchanged", "window", w.String())
		return snap, nil
	}
	f.lastSig = sig
	f.issued++
	gen := f.issued
	if opts.ShowLoading {
		f.loading = true
	}
	f.mu.Unlock()

	snap, err := f.api.FetchCalendar(ctx, w, filters)

	f.mu.Lock()
	if gen != f.issued {
		f.mu.Unlock()
		f.log.Debug("discarding superseded calendar response", "window", w.String(), "generation", gen)
		return nil, ErrSuperseded
	}
	f.loading = false
	if err != nil {
		f.lastErr = err
		// Let the next non-forced trigger retry.
		if f.lastSig == sig {
			f.lastSig = ""
		}
		f.mu.Unlock()
		f.log.Warn("calendar fetch failed, keeping last snapshot", "window", w.String(), "error", err)
		return nil, fmt.Errorf("fetching calendar %s: %w", w, err)
	}

	snap.Window = w
	snap.Filters = filters
	for i := range snap.Days {
		snap.Days[i].Verified = true
	}
	snap.Statistics = model.ComputeStatistics(snap.Days)
	f.snapshot = snap
	f.lastErr = nil
	f.mu.Unlock()

	f.log.Debug("calendar snapshot replaced",
		"window", w.String(),
		"days", len(snap.Days),
		"pending_sync", snap.Statistics.PendingSync,
	)

	if f.cache != nil {
		if err := f.cache.SaveSnapshot(ctx, filters.PropertyID, snap); err != nil {
			f.log.Warn("caching calendar snapshot", "error", err)
		}
	}
	return snap, nil
}

// SetWindow moves the window. Moving always invalidates the de-duplication
// signature so the next fetch goes to the server, and every retained day
// outside the new window is marked unverified.
func (f *Fetcher) SetWindow(ctx context.Context, w model.Window) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("setting window: %w", err)
	}

	f.mu.Lock()
	f.window = w
	f.lastSig = ""
	if f.snapshot != nil {
		next := f.snapshot.Clone()
		for i := range next.Days {
			if !w.Contains(next.Days[i].Date) {
				next.Days[i].Verified = false
			}
		}
		f.snapshot = next
	}
	propertyID := f.filters.PropertyID
	f.mu.Unlock()

	if f.cache != nil {
		n, err := f.cache.MarkUnverifiedOutside(ctx, propertyID, w)
		if err != nil {
			f.log.Warn("marking cached cells unverified", "error", err)
		} else if n > 0 {
			f.log.Debug("cached cells marked unverified", "cells", n, "window", w.String())
		}
	}
	return nil
}

// SetFilters replaces the filter set. The property is fixed at construction
// and is not changed by f.PropertyID.
func (f *Fetcher) SetFilters(filters model.Filters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	filters = copyFilters(filters)
	filters.PropertyID = f.filters.PropertyID
	f.filters = filters
}

// CachedDays returns the cached days for the current window for quick
// display before the first fetch completes. Days may be unverified.
func (f *Fetcher) CachedDays(ctx context.Context) ([]model.Day, error) {
	if f.cache == nil {
		return nil, nil
	}
	f.mu.Lock()
	w, propertyID := f.window, f.filters.PropertyID
	f.mu.Unlock()
	return f.cache.LoadWindow(ctx, propertyID, w)
}

// --- Accessors ---------------------------------------------------------------

// Window returns the current window.
func (f *Fetcher) Window() model.Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.window
}

// Filters returns a copy of the current filters.
func (f *Fetcher) Filters() model.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyFilters(f.filters)
}

// Snapshot returns the current snapshot, or nil before the first successful
// fetch. Callers must not modify it.
func (f *Fetcher) Snapshot() *model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

// Err returns the error of the most recent completed fetch, or nil if it
// succeeded.
func (f *Fetcher) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Loading reports whether a fetch with ShowLoading is in flight.
func (f *Fetcher) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// CellAt returns the snapshot cell for (roomID, date).
func (f *Fetcher) CellAt(roomID int64, date model.Date) (model.Cell, bool) {
	return f.Snapshot().Cell(roomID, date)
}

// Statistics returns the aggregate statistics of the current snapshot.
func (f *Fetcher) Statistics() model.Statistics {
	snap := f.Snapshot()
	if snap == nil {
		return model.Statistics{}
	}
	return snap.Statistics
}

// patchCell applies an accepted single-cell edit to a copy of the snapshot
// and swaps it in. It reports whether the cell was present.
func (f *Fetcher) patchCell(roomID int64, date model.Date, field model.CellField, value any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return false, nil
	}

	next := f.snapshot.Clone()
	for i := range next.Days {
		day := &next.Days[i]
		if day.Date != date {
			continue
		}
		for j := range day.Cells {
			if day.Cells[j].RoomID != roomID {
				continue
			}
			if err := day.Cells[j].Apply(field, value); err != nil {
				return false, err
			}
			day.Summarize()
			next.Statistics = model.ComputeStatistics(next.Days)
			f.snapshot = next
			return true, nil
		}
	}
	return false, nil
}

func copyFilters(f model.Filters) model.Filters {
	f.RoomIDs = slices.Clone(f.RoomIDs)
	return f
}
