// Package sync implements the availability synchronization coordinator. It
// keeps a local calendar snapshot consistent with the channel manager, whose
// truth changes asynchronously and out of band.
//
// The package contains these components:
//
//   - [Fetcher] owns the calendar window and the snapshot. It de-duplicates
//     identical fetches and replaces the snapshot wholesale.
//   - [PendingTracker] mirrors the server-side pending-sync backlog.
//   - [Editor] submits single-cell edits and patches the snapshot once they
//     are accepted.
//   - [BulkEditor] is the three-step bulk edit wizard.
//   - [SyncTrigger] drives a manual sync and its display session.
//   - [Reconciler] consumes push events and decides when to re-fetch.
//   - [Coordinator] wires them together with telemetry, the push channel and
//     a cron safety-net refresh.
package sync

import (
	"context"

	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/push"
)

// ChannelManager is the request/response API of the channel manager.
// Implemented by [channelmanager.Client].
type ChannelManager interface {
	FetchCalendar(ctx context.Context, w model.Window, f model.Filters) (*model.Snapshot, error)
	UpdateCell(ctx context.Context, roomID int64, date model.Date, field model.CellField, value any) error
	BulkUpdate(ctx context.Context, p model.BulkPayload) (int, error)
	PendingCount(ctx context.Context, scope model.Scope) (model.PendingCount, error)
	PendingDateRange(ctx context.Context, scope model.Scope) (*model.PendingDateRange, error)
	TriggerSync(ctx context.Context, scope model.Scope, async bool) (model.SyncResult, error)
}

// SnapshotCache stores last-seen cells for quick re-display.
// Implemented by [cellcache.Store].
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, propertyID int64, snap *model.Snapshot) error
	MarkUnverifiedOutside(ctx context.Context, propertyID int64, w model.Window) (int64, error)
	LoadWindow(ctx context.Context, propertyID int64, w model.Window) ([]model.Day, error)
}

// EventSource is the push event channel.
// Implemented by [push.Client].
type EventSource interface {
	Events() <-chan model.Event
	OnConnect(fn func())
	Run(ctx context.Context) error
	State() push.State
	LastEvent() (model.Event, bool)
}
