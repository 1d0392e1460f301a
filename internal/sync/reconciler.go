package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/availsync/internal/model"
)

// Reconciler is the single consumer of push events. It turns each event into
// pending-state updates and delayed forced re-fetches. Events are handled one
// at a time in arrival order.
type Reconciler struct {
	pending *PendingTracker
	trigger *SyncTrigger
	refetch *Refetcher
	delays  Delays
	log     *slog.Logger

	tracer    trace.Tracer
	cntEvents metric.Int64Counter
}

// NewReconciler creates a Reconciler.
func NewReconciler(p *PendingTracker, t *SyncTrigger, r *Refetcher, delays Delays, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		pending:   p,
		trigger:   t,
		refetch:   r,
		delays:    delays,
		log:       logger,
		tracer:    otel.Tracer(otelScope),
		cntEvents: noop.Int64Counter{},
	}
}

// HandleEvent applies one push event. Unknown types are ignored.
func (r *Reconciler) HandleEvent(ctx context.Context, ev model.Event) error {
	ctx, span := r.tracer.Start(ctx, spanPushEvent, trace.WithAttributes(attribute.String("event.type", string(ev.Type))))
	defer span.End()
	r.cntEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(ev.Type))))

	err := r.handle(ctx, ev)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *Reconciler) handle(ctx context.Context, ev model.Event) error {
	switch ev.Type {
	case model.EventSyncPendingUpdated:
		var d model.PendingUpdatedData
		if err := decodeData(ev, &d); err != nil {
			return err
		}
		if r.pending.Apply(d) {
			if _, err := r.pending.RefreshDateRange(ctx); err != nil {
				return fmt.Errorf("handling %s: %w", ev.Type, err)
			}
		}
		r.log.Debug("pending count pushed", "pending_count", d.Count)

	case model.EventSyncCompleted:
		var d model.SyncCompletedData
		if err := decodeData(ev, &d); err != nil {
			// The backlog is still settled; a bad payload only loses the message.
			r.log.Warn("sync_completed payload unreadable", "error", err)
		}
		r.pending.Clear()
		r.trigger.Complete(d)
		r.refetch.After(r.delays.SyncRefetch, string(ev.Type))
		r.log.Info("sync completed", "status", string(d.Status), "synced", d.Synced)

	case model.EventBulkUpdateCompleted:
		r.dataChanged(ctx, ev, r.delays.BulkRefetch)

	case model.EventAvailabilityUpdated:
		r.dataChanged(ctx, ev, r.delays.AvailabilityRefetch)

	default:
		r.log.Debug("ignoring push event", "type", string(ev.Type))
	}
	return nil
}

// Run handles events until ctx is cancelled or events is closed.
func (r *Reconciler) Run(ctx context.Context, events <-chan model.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.HandleEvent(ctx, ev); err != nil {
				r.log.Error("handling push event", "type", string(ev.Type), "error", err)
			}
		}
	}
}

// OnConnect refreshes the pending count right after the push channel
// (re)connects, since updates may have been missed while it was down.
func (r *Reconciler) OnConnect(ctx context.Context) {
	if _, err := r.pending.RefreshCount(ctx); err != nil {
		r.log.Warn("refreshing pending count on connect", "error", err)
	}
}

// dataChanged refreshes the backlog and schedules a forced re-fetch after
// delay. The payload only feeds the log; an unreadable one still does both.
func (r *Reconciler) dataChanged(ctx context.Context, ev model.Event, delay time.Duration) {
	var d model.AvailabilityUpdatedData
	if err := decodeData(ev, &d); err != nil {
		r.log.Warn("push payload unreadable", "type", string(ev.Type), "error", err)
	}
	attrs := []any{"type", string(ev.Type), "rooms", len(d.RoomIDs)}
	if !d.DateFrom.IsZero() {
		attrs = append(attrs, "from", d.DateFrom.String(), "to", d.DateTo.String())
	}
	r.log.Info("calendar changed upstream", attrs...)

	r.refreshPending(ctx, ev.Type)
	r.refetch.After(delay, string(ev.Type))
}

func (r *Reconciler) refreshPending(ctx context.Context, t model.EventType) {
	if _, err := r.pending.RefreshCount(ctx); err != nil {
		r.log.Warn("refreshing pending count", "event", string(t), "error", err)
	}
}

func decodeData(ev model.Event, v any) error {
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", ev.Type, err)
	}
	return nil
}
