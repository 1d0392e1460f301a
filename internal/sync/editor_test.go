package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njoerd114/availsync/internal/model"
)

func TestUpdateCell_AcceptedPatchesAndSchedulesRefetch(t *testing.T) {
	h := newHarness(t, 1, 2, 7)
	h.load(t)
	h.api.set(func(m *mockAPI) { m.pendingCount = 1 })
	d := date(t, "2025-03-05")

	if err := h.editor.UpdateCell(context.Background(), 7, d, model.FieldRate, 250); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}

	c, ok := h.fetcher.CellAt(7, d)
	if !ok || c.Rate == nil || *c.Rate != 250 {
		t.Errorf("cell = %+v, want rate 250 immediately", c)
	}
	if other, _ := h.fetcher.CellAt(1, d); *other.Rate != 100 {
		t.Errorf("room 1 rate = %v, want untouched 100", *other.Rate)
	}
	if h.pending.Count() != 1 {
		t.Errorf("pending count = %d, want 1 after refresh", h.pending.Count())
	}
	if len(h.api.updates) != 1 || h.api.updates[0].Value != 250.0 {
		t.Errorf("updates = %+v, want one with normalised value 250.0", h.api.updates)
	}

	h.sched.Advance(1499 * time.Millisecond)
	if fetches, _, _, _ := h.api.calls(); fetches != 1 {
		t.Fatalf("fetches before delay = %d, want 1", fetches)
	}
	h.sched.Advance(time.Millisecond)
	if fetches, _, _, _ := h.api.calls(); fetches != 2 {
		t.Errorf("fetches after delay = %d, want 2", fetches)
	}
	// The forced re-fetch reconciles to the server's value.
	if c, _ := h.fetcher.CellAt(7, d); *c.Rate != 100 {
		t.Errorf("rate after re-fetch = %v, want server value 100", *c.Rate)
	}
}

func TestUpdateCell_SnapshotUntouchedWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.load(t)
	d := date(t, "2025-03-03")

	var during model.Cell
	h.api.set(func(m *mockAPI) {
		m.onUpdate = func() { during, _ = h.fetcher.CellAt(2, d) }
	})

	if err := h.editor.UpdateCell(context.Background(), 2, d, model.FieldIsAvailable, false); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}
	if !during.IsAvailable {
		t.Error("snapshot was patched before the remote call returned")
	}
	after, _ := h.fetcher.CellAt(2, d)
	if after.IsAvailable {
		t.Error("snapshot not patched after acceptance")
	}
	day := h.fetcher.Snapshot().Days[2]
	if day.Summary.BlockedRooms != 1 || day.Summary.AvailableRooms != 2 {
		t.Errorf("day summary = %+v, want recomputed", day.Summary)
	}
}

func TestUpdateCell_RejectedLeavesSnapshot(t *testing.T) {
	h := newHarness(t)
	before := h.load(t)
	h.api.set(func(m *mockAPI) { m.updateErr = errors.New("rate below floor") })

	err := h.editor.UpdateCell(context.Background(), 1, date(t, "2025-03-01"), model.FieldRate, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if h.fetcher.Snapshot() != before {
		t.Error("rejected edit replaced the snapshot")
	}
	if _, pending, _, _ := h.api.calls(); pending != 0 {
		t.Errorf("pending refreshes = %d, want 0", pending)
	}
	if h.sched.Pending() != 0 {
		t.Errorf("scheduled tasks = %d, want 0", h.sched.Pending())
	}
}

func TestUpdateCell_InvalidValueNeverSent(t *testing.T) {
	h := newHarness(t)
	h.load(t)

	tests := []struct {
		name  string
		field model.CellField
		value any
		want  error
	}{
		{"min stay zero", model.FieldMinStay, 0, model.ErrInvalidValue},
		{"negative rate", model.FieldRate, -1.0, model.ErrInvalidValue},
		{"flag as string", model.FieldClosedToArrival, "yes", model.ErrInvalidValue},
		{"unknown field", model.CellField("colour"), 1, model.ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.editor.UpdateCell(context.Background(), 1, date(t, "2025-03-01"), tt.field, tt.value)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(h.api.updates) != 0 {
		t.Errorf("updates sent = %d, want 0", len(h.api.updates))
	}
}
