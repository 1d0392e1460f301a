package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/push"
	"github.com/njoerd114/availsync/internal/schedule"
)

const (
	otelScope        = "availsync/sync"
	spanFetch        = "sync.fetch"
	spanUpdateCell   = "sync.update_cell"
	spanBulkUpdate   = "sync.bulk_update"
	spanManualSync   = "sync.manual_sync"
	spanPushEvent    = "sync.push_event"
	metricFetches    = "availsync.calendar.fetches"
	metricCellEdits  = "availsync.cells.updated"
	metricBulkEdits  = "availsync.bulk.updates"
	metricSyncs      = "availsync.sync.manual"
	metricPushEvents = "availsync.push.events"
	metricErrors     = "availsync.errors"
)

// Options configure a [Coordinator].
type Options struct {
	PropertyID int64
	WindowDays int
	WeekStart  time.Weekday
	Delays     Delays

	// FallbackSchedule is a cron spec for the safety-net refresh. Empty
	// disables it.
	FallbackSchedule string

	// Scheduler runs delayed tasks. Nil uses the wall clock.
	Scheduler schedule.Scheduler

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// Coordinator composes the sync components around one property. Create one
// with [NewCoordinator] and start it with [Coordinator.Run].
type Coordinator struct {
	fetcher    *Fetcher
	pending    *PendingTracker
	editor     *Editor
	bulk       *BulkEditor
	trigger    *SyncTrigger
	reconciler *Reconciler
	refetch    *Refetcher
	events     EventSource
	opts       Options
	log        *slog.Logger

	// OTel instruments. Never nil; no-ops when telemetry is disabled.
	tracer       trace.Tracer
	cntFetches   metric.Int64Counter
	cntCellEdits metric.Int64Counter
	cntBulkEdits metric.Int64Counter
	cntSyncs     metric.Int64Counter
	cntErrors    metric.Int64Counter
}

// NewCoordinator wires the components. events may be nil, in which case only
// the fallback schedule refreshes state in the background. cache may be nil.
func NewCoordinator(api ChannelManager, cache SnapshotCache, events EventSource, opts Options, logger *slog.Logger) (*Coordinator, error) {
	if opts.PropertyID <= 0 {
		return nil, fmt.Errorf("property id must be positive, got %d", opts.PropertyID)
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 14
	}
	if opts.Delays == (Delays{}) {
		opts.Delays = DefaultDelays()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Clock{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FallbackSchedule != "" {
		if _, err := cron.ParseStandard(opts.FallbackSchedule); err != nil {
			return nil, fmt.Errorf("parsing fallback schedule %q: %w", opts.FallbackSchedule, err)
		}
	}

	w := model.TodayWindow(opts.Now(), opts.WeekStart, opts.WindowDays)
	scope := model.Scope{PropertyID: opts.PropertyID}

	fetcher := NewFetcher(api, cache, w, model.Filters{PropertyID: opts.PropertyID}, logger)
	pending := NewPendingTracker(api, scope, logger)
	refetch := NewRefetcher(fetcher, opts.Scheduler, logger)
	trigger := NewSyncTrigger(api, pending, refetch, opts.Scheduler, opts.Delays, logger)
	trigger.now = opts.Now

	c := &Coordinator{
		fetcher:    fetcher,
		pending:    pending,
		editor:     NewEditor(api, fetcher, pending, refetch, opts.Delays.EditRefetch, logger),
		bulk:       NewBulkEditor(api, fetcher, pending, opts.PropertyID, logger),
		trigger:    trigger,
		reconciler: NewReconciler(pending, trigger, refetch, opts.Delays, logger),
		refetch:    refetch,
		events:     events,
		opts:       opts,
		log:        logger,
	}
	c.initInstruments()
	return c, nil
}

func (c *Coordinator) initInstruments() {
	c.tracer = otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		ctr, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c.log.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return ctr
	}

	c.cntFetches = mustCounter(metricFetches, "Number of calendar fetches sent to the channel manager")
	c.cntCellEdits = mustCounter(metricCellEdits, "Number of accepted single-cell edits")
	c.cntBulkEdits = mustCounter(metricBulkEdits, "Number of accepted bulk updates")
	c.cntSyncs = mustCounter(metricSyncs, "Number of manual sync requests")
	c.cntErrors = mustCounter(metricErrors, "Number of failed coordinator operations")
	c.reconciler.cntEvents = mustCounter(metricPushEvents, "Number of push events handled")
	c.reconciler.tracer = c.tracer
}

// --- Components --------------------------------------------------------------

// Fetcher returns the calendar fetcher.
func (c *Coordinator) Fetcher() *Fetcher { return c.fetcher }

// Pending returns the pending-sync tracker.
func (c *Coordinator) Pending() *PendingTracker { return c.pending }

// Bulk returns the bulk edit wizard.
func (c *Coordinator) Bulk() *BulkEditor { return c.bulk }

// Trigger returns the manual sync trigger.
func (c *Coordinator) Trigger() *SyncTrigger { return c.trigger }

// --- Instrumented operations -------------------------------------------------

// Fetch runs one fetch of the current window.
func (c *Coordinator) Fetch(ctx context.Context, opts FetchOptions) (*model.Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, spanFetch, trace.WithAttributes(
		attribute.Bool("fetch.force", opts.Force),
		attribute.String("fetch.window", c.fetcher.Window().String()),
	))
	defer span.End()

	snap, err := c.fetcher.Fetch(ctx, opts)
	if err != nil {
		if !errors.Is(err, ErrSuperseded) {
			c.fail(ctx, span, "fetch", err)
		}
		return snap, err
	}
	c.cntFetches.Add(ctx, 1)
	if snap != nil {
		span.SetAttributes(attribute.Int("fetch.days", len(snap.Days)))
	}
	return snap, nil
}

// UpdateCell submits a single-cell edit.
func (c *Coordinator) UpdateCell(ctx context.Context, roomID int64, date model.Date, field model.CellField, value any) error {
	ctx, span := c.tracer.Start(ctx, spanUpdateCell, trace.WithAttributes(
		attribute.Int64("cell.room_id", roomID),
		attribute.String("cell.date", date.String()),
		attribute.String("cell.field", string(field)),
	))
	defer span.End()

	if err := c.editor.UpdateCell(ctx, roomID, date, field, value); err != nil {
		c.fail(ctx, span, "update_cell", err)
		return err
	}
	c.cntCellEdits.Add(ctx, 1, metric.WithAttributes(attribute.String("field", string(field))))
	return nil
}

// ExecuteBulk commits the bulk edit wizard.
func (c *Coordinator) ExecuteBulk(ctx context.Context) (int, error) {
	ctx, span := c.tracer.Start(ctx, spanBulkUpdate)
	defer span.End()

	n, err := c.bulk.Execute(ctx)
	if err != nil {
		c.fail(ctx, span, "bulk_update", err)
		return 0, err
	}
	c.cntBulkEdits.Add(ctx, 1)
	span.SetAttributes(attribute.Int("bulk.updated", n))
	return n, nil
}

// Sync triggers a manual sync.
func (c *Coordinator) Sync(ctx context.Context, async bool) (model.SyncSession, error) {
	ctx, span := c.tracer.Start(ctx, spanManualSync, trace.WithAttributes(attribute.Bool("sync.async", async)))
	defer span.End()

	s, err := c.trigger.Sync(ctx, async)
	switch {
	case errors.Is(err, ErrNothingPending):
	case err != nil:
		c.fail(ctx, span, "manual_sync", err)
	default:
		c.cntSyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(s.Status))))
	}
	span.SetAttributes(attribute.String("sync.session_status", string(s.Status)))
	return s, err
}

func (c *Coordinator) fail(ctx context.Context, span trace.Span, op string, err error) {
	span.RecordError(err)
	c.cntErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// --- Navigation --------------------------------------------------------------

// Navigate steps the window by one period and fetches it.
func (c *Coordinator) Navigate(ctx context.Context, dir model.Direction) (*model.Snapshot, error) {
	return c.SetRange(ctx, c.fetcher.Window().Shift(dir, c.opts.WindowDays))
}

// Today jumps to the window starting at the current week boundary.
func (c *Coordinator) Today(ctx context.Context) (*model.Snapshot, error) {
	return c.SetRange(ctx, model.TodayWindow(c.opts.Now(), c.opts.WeekStart, c.opts.WindowDays))
}

// SetRange moves the window to w and fetches it.
func (c *Coordinator) SetRange(ctx context.Context, w model.Window) (*model.Snapshot, error) {
	if err := c.fetcher.SetWindow(ctx, w); err != nil {
		return nil, err
	}
	return c.Fetch(ctx, FetchOptions{ShowLoading: true})
}

// SetFilters replaces the filters and fetches. An unchanged filter set is
// de-duplicated by the fetcher.
func (c *Coordinator) SetFilters(ctx context.Context, f model.Filters) (*model.Snapshot, error) {
	c.fetcher.SetFilters(f)
	return c.Fetch(ctx, FetchOptions{ShowLoading: true})
}

// AvailabilityAt returns the cell for (roomID, date) in the current snapshot.
func (c *Coordinator) AvailabilityAt(roomID int64, date model.Date) (model.Cell, bool) {
	return c.fetcher.CellAt(roomID, date)
}

// --- Status ------------------------------------------------------------------

// Status is a point-in-time view of the coordinator.
type Status struct {
	Window        model.Window       `json:"window"`
	Loading       bool               `json:"loading"`
	Error         string             `json:"error,omitempty"`
	Statistics    model.Statistics   `json:"statistics"`
	Pending       model.PendingState `json:"pending"`
	Session       model.SyncSession  `json:"session"`
	Push          string             `json:"push"`
	LastEventType model.EventType    `json:"last_event_type,omitempty"`
	LastEventAt   time.Time          `json:"last_event_at,omitzero"`
}

// Status returns the current status.
func (c *Coordinator) Status() Status {
	st := Status{
		Window:     c.fetcher.Window(),
		Loading:    c.fetcher.Loading(),
		Statistics: c.fetcher.Statistics(),
		Pending:    c.pending.State(),
		Session:    c.trigger.Session(),
		Push:       "disabled",
	}
	if err := c.fetcher.Err(); err != nil {
		st.Error = err.Error()
	}
	if c.events != nil {
		st.Push = c.events.State().String()
		if ev, ok := c.events.LastEvent(); ok {
			st.LastEventType = ev.Type
			st.LastEventAt = ev.ReceivedAt
		}
	}
	return st
}

// --- Lifecycle ---------------------------------------------------------------

// Run loads the initial state, starts the push channel and the fallback
// schedule, and handles push events until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.refetch.bind(ctx)
	defer c.refetch.Stop()

	if _, err := c.Fetch(ctx, FetchOptions{Force: true, ShowLoading: true}); err != nil {
		c.log.Error("initial calendar fetch failed", "error", err)
	}
	if _, err := c.pending.RefreshCount(ctx); err != nil {
		c.log.Error("initial pending count failed", "error", err)
	}

	if c.opts.FallbackSchedule != "" {
		cr := cron.New()
		if _, err := cr.AddFunc(c.opts.FallbackSchedule, func() { c.fallbackRefresh(ctx) }); err != nil {
			return fmt.Errorf("scheduling fallback refresh: %w", err)
		}
		cr.Start()
		defer func() { <-cr.Stop().Done() }()
	}

	if c.events == nil {
		<-ctx.Done()
		c.log.Info("coordinator shutting down")
		return ctx.Err()
	}

	c.events.OnConnect(func() {
		c.log.Info("push channel connected")
		c.reconciler.OnConnect(ctx)
	})
	go func() {
		if err := c.events.Run(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("push channel stopped unexpectedly", "error", err)
		}
	}()

	err := c.reconciler.Run(ctx, c.events.Events())
	c.log.Info("coordinator shutting down")
	return err
}

// fallbackRefresh is the cron safety net. The pending count is always
// re-read. The snapshot is only re-fetched while the push channel is down,
// since push events drive re-fetches otherwise.
func (c *Coordinator) fallbackRefresh(ctx context.Context) {
	if _, err := c.pending.RefreshCount(ctx); err != nil {
		c.log.Warn("fallback pending refresh failed", "error", err)
	}
	if c.events != nil && c.events.State() == push.Connected {
		return
	}
	if _, err := c.Fetch(ctx, FetchOptions{Force: true}); err != nil && !errors.Is(err, ErrSuperseded) {
		c.log.Warn("fallback calendar refresh failed", "error", err)
	}
}
