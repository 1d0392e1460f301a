package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/availsync/internal/model"
)

// Editor applies single-cell edits. The local snapshot is patched only after
// the channel manager accepts the edit, so a rejected edit needs no rollback.
type Editor struct {
	api     ChannelManager
	fetcher *Fetcher
	pending *PendingTracker
	refetch *Refetcher
	delay   time.Duration
	log     *slog.Logger
}

// NewEditor creates an Editor. delay is the settle time before the
// reconciling re-fetch.
func NewEditor(api ChannelManager, f *Fetcher, p *PendingTracker, r *Refetcher, delay time.Duration, logger *slog.Logger) *Editor {
	return &Editor{api: api, fetcher: f, pending: p, refetch: r, delay: delay, log: logger}
}

// UpdateCell submits one field change for (roomID, date). Once accepted it
//
//  1. patches the matching snapshot cell,
//  2. refreshes the pending count, and
//  3. schedules one forced re-fetch to pick up server-derived fields such as
//     sync_status.
//
// A rejected edit returns the error and leaves the snapshot untouched.
func (e *Editor) UpdateCell(ctx context.Context, roomID int64, date model.Date, field model.CellField, value any) error {
	v, err := model.NormalizeValue(field, value)
	if err != nil {
		return fmt.Errorf("updating cell room=%d date=%s: %w", roomID, date, err)
	}

	if err := e.api.UpdateCell(ctx, roomID, date, field, v); err != nil {
		return fmt.Errorf("updating cell room=%d date=%s: %w", roomID, date, err)
	}

	found, err := e.fetcher.patchCell(roomID, date, field, v)
	switch {
	case err != nil:
		e.log.Warn("patching edited cell", "room_id", roomID, "date", date.String(), "error", err)
	case !found:
		e.log.Debug("edited cell not in current snapshot", "room_id", roomID, "date", date.String())
	}

	e.log.Info("cell updated",
		"room_id", roomID,
		"date", date.String(),
		"field", string(field),
		"value", v,
	)

	if _, err := e.pending.RefreshCount(ctx); err != nil {
		e.log.Warn("refreshing pending count after edit", "error", err)
	}
	e.refetch.After(e.delay, "cell_edit")
	return nil
}
