package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/schedule"
)

// ErrNothingPending is returned by [SyncTrigger.Sync] when the backlog is
// empty. The session is left unchanged.
var ErrNothingPending = errors.New("nothing pending to sync")

// SyncTrigger asks the channel manager to push pending changes to the
// distribution channels and tracks the resulting session.
//
// A terminal session returns to idle after the display delay. A session
// acknowledged as processing stays syncing until [SyncTrigger.Complete] is
// called from a sync_completed push event; it never times out on its own.
type SyncTrigger struct {
	api     ChannelManager
	pending *PendingTracker
	refetch *Refetcher
	sched   schedule.Scheduler
	delays  Delays
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	session model.SyncSession
	expiry  schedule.Handle
}

// NewSyncTrigger creates an idle trigger.
func NewSyncTrigger(api ChannelManager, p *PendingTracker, r *Refetcher, sched schedule.Scheduler, delays Delays, logger *slog.Logger) *SyncTrigger {
	return &SyncTrigger{
		api:     api,
		pending: p,
		refetch: r,
		sched:   sched,
		delays:  delays,
		now:     time.Now,
		log:     logger,
		session: model.SyncSession{Status: model.SessionIdle},
	}
}

// Sync starts a manual sync for the tracker's scope. With async set the
// server is asked to process in the background.
func (t *SyncTrigger) Sync(ctx context.Context, async bool) (model.SyncSession, error) {
	if n := t.pending.Count(); n == 0 {
		t.log.Warn("manual sync skipped, nothing pending")
		return t.Session(), ErrNothingPending
	}

	t.mu.Lock()
	t.stopExpiry()
	t.session = model.SyncSession{
		ID:        uuid.NewString(),
		Status:    model.SessionSyncing,
		StartedAt: t.now(),
	}
	id := t.session.ID
	t.mu.Unlock()

	t.log.Info("manual sync started", "session_id", id, "async", async, "pending_count", t.pending.Count())

	res, err := t.api.TriggerSync(ctx, t.pending.Scope(), async)
	if err != nil {
		t.finish(id, model.SessionError, err.Error())
		return t.Session(), fmt.Errorf("triggering sync: %w", err)
	}

	switch {
	case !res.Status.Terminal():
		t.log.Info("manual sync processing, awaiting completion event", "session_id", id, "job_id", res.JobID)
	case res.Status == model.ResultError:
		t.finish(id, model.SessionError, res.Message)
		t.log.Warn("manual sync failed", "session_id", id, "message", res.Message)
	default:
		t.pending.Clear()
		t.finish(id, model.SessionSuccess, res.Message)
		t.refetch.After(t.delays.SyncRefetch, "manual_sync")
		t.log.Info("manual sync finished", "session_id", id, "status", string(res.Status), "synced", res.Synced, "failed", res.Failed)
	}
	return t.Session(), nil
}

// Complete resolves the session from a sync_completed event. An error status
// marks it failed; anything else marks it successful.
func (t *SyncTrigger) Complete(d model.SyncCompletedData) {
	status := model.SessionSuccess
	if d.Status == model.ResultError {
		status = model.SessionError
	}

	t.mu.Lock()
	if t.session.ID == "" {
		t.session.ID = uuid.NewString()
		t.session.StartedAt = t.now()
	}
	id := t.session.ID
	t.mu.Unlock()

	t.finish(id, status, d.Message)
}

// Session returns the current session.
func (t *SyncTrigger) Session() model.SyncSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// finish moves session id to a terminal status and schedules its return to
// idle. A session replaced in the meantime is left alone.
func (t *SyncTrigger) finish(id string, status model.SessionStatus, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.ID != id {
		return
	}
	t.session.Status = status
	t.session.Message = msg
	t.session.EndedAt = t.now()

	t.stopExpiry()
	t.expiry = t.sched.AfterFunc(t.delays.SessionDisplay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.session.ID == id {
			t.session = model.SyncSession{Status: model.SessionIdle}
			t.expiry = nil
		}
	})
}

func (t *SyncTrigger) stopExpiry() {
	if t.expiry != nil {
		t.expiry.Stop()
		t.expiry = nil
	}
}
