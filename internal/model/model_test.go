package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Date
// ---------------------------------------------------------------------------

func TestDate_RoundTripJSON(t *testing.T) {
	d := mustDate(t, "2025-03-05")
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"2025-03-05"` {
		t.Errorf("Marshal = %s, want %q", b, "2025-03-05")
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != d {
		t.Errorf("round trip = %v, want %v", back, d)
	}
}

func TestDate_AddDaysCrossesMonth(t *testing.T) {
	got := mustDate(t, "2025-02-27").AddDays(3)
	if got.String() != "2025-03-02" {
		t.Errorf("AddDays = %s, want 2025-03-02", got)
	}
}

func TestDate_ParseInvalid(t *testing.T) {
	if _, err := ParseDate("2025-13-01"); err == nil {
		t.Error("expected error for month 13")
	}
}

// ---------------------------------------------------------------------------
// Window & navigation
// ---------------------------------------------------------------------------

func TestWindow_DaysAndContains(t *testing.T) {
	w := Window{From: mustDate(t, "2025-03-01"), To: mustDate(t, "2025-03-14")}
	if w.Days() != 14 {
		t.Errorf("Days = %d, want 14", w.Days())
	}
	if !w.Contains(mustDate(t, "2025-03-14")) {
		t.Error("window should contain its last day")
	}
	if w.Contains(mustDate(t, "2025-03-15")) {
		t.Error("window should not contain the day after To")
	}
	if len(w.Dates()) != 14 {
		t.Errorf("len(Dates) = %d, want 14", len(w.Dates()))
	}
}

func TestWindow_ValidateInverted(t *testing.T) {
	w := Window{From: mustDate(t, "2025-03-10"), To: mustDate(t, "2025-03-01")}
	if err := w.Validate(); !errors.Is(err, ErrInvertedRange) {
		t.Errorf("Validate = %v, want ErrInvertedRange", err)
	}
	if err := (Window{}).Validate(); !errors.Is(err, ErrEmptyRange) {
		t.Errorf("Validate(zero) = %v, want ErrEmptyRange", err)
	}
}

func TestWindow_PrevNext(t *testing.T) {
	w := NewWindow(mustDate(t, "2025-03-01"), 14)
	next := w.Next(14)
	if next.From.String() != "2025-03-15" || next.To.String() != "2025-03-28" {
		t.Errorf("Next = %s, want 2025-03-15..2025-03-28", next)
	}
	if back := next.Prev(14); back != w {
		t.Errorf("Prev(Next(w)) = %s, want %s", back, w)
	}
}

func TestTodayWindow_WeekAligned(t *testing.T) {
	tests := []struct {
		name  string
		now   time.Time
		start time.Weekday
		want  string
	}{
		{"wednesday monday-start", time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC), time.Monday, "2025-03-03"},
		{"monday itself", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Monday, "2025-03-03"},
		{"sunday monday-start", time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC), time.Monday, "2025-03-03"},
		{"wednesday sunday-start", time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC), time.Sunday, "2025-03-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := TodayWindow(tt.now, tt.start, 14)
			if w.From.String() != tt.want {
				t.Errorf("From = %s, want %s", w.From, tt.want)
			}
			if w.Days() != 14 {
				t.Errorf("Days = %d, want 14", w.Days())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Signature
// ---------------------------------------------------------------------------

func TestSignature_IgnoresRoomOrder(t *testing.T) {
	w := NewWindow(mustDate(t, "2025-03-01"), 14)
	a := Signature(w, Filters{PropertyID: 1, RoomIDs: []int64{3, 1, 2}, Search: " deluxe "})
	b := Signature(w, Filters{PropertyID: 1, RoomIDs: []int64{1, 2, 3, 3}, Search: "deluxe"})
	if a != b {
		t.Error("equivalent filters produced different signatures")
	}
}

func TestSignature_ChangesWithWindow(t *testing.T) {
	f := Filters{PropertyID: 1}
	w := NewWindow(mustDate(t, "2025-03-01"), 14)
	if Signature(w, f) == Signature(w.Next(14), f) {
		t.Error("different windows produced the same signature")
	}
}

// ---------------------------------------------------------------------------
// Cells
// ---------------------------------------------------------------------------

func TestCellApply(t *testing.T) {
	var c Cell
	if err := c.Apply(FieldRate, 250); err != nil {
		t.Fatalf("Apply rate: %v", err)
	}
	if c.Rate == nil || *c.Rate != 250 {
		t.Errorf("Rate = %v, want 250", c.Rate)
	}
	if err := c.Apply(FieldMinStay, float64(3)); err != nil {
		t.Fatalf("Apply min_stay: %v", err)
	}
	if c.MinStay != 3 {
		t.Errorf("MinStay = %d, want 3", c.MinStay)
	}
	if err := c.Apply(FieldClosedToArrival, true); err != nil || !c.ClosedToArrival {
		t.Errorf("ClosedToArrival = %v (err %v), want true", c.ClosedToArrival, err)
	}
}

func TestCellApply_Rejects(t *testing.T) {
	var c Cell
	tests := []struct {
		field CellField
		value any
		want  error
	}{
		{FieldMinStay, 0, ErrInvalidValue},
		{FieldMinStay, 1.5, ErrInvalidValue},
		{FieldRate, -1.0, ErrInvalidValue},
		{FieldRate, math.NaN(), ErrInvalidValue},
		{FieldRate, math.Inf(1), ErrInvalidValue},
		{FieldMinStay, math.Inf(1), ErrInvalidValue},
		{FieldIsAvailable, "yes", ErrInvalidValue},
		{CellField("color"), 1, ErrUnknownField},
	}
	for _, tt := range tests {
		if err := c.Apply(tt.field, tt.value); !errors.Is(err, tt.want) {
			t.Errorf("Apply(%s, %v) = %v, want %v", tt.field, tt.value, err, tt.want)
		}
	}
}

func TestComputeStatistics(t *testing.T) {
	days := []Day{
		{Cells: []Cell{
			{RoomID: 1, SyncStatus: SyncConnected},
			{RoomID: 2, SyncStatus: SyncPending, SyncPending: true},
		}},
		{Cells: []Cell{
			{RoomID: 1, SyncStatus: SyncConnected},
			{RoomID: 2, SyncStatus: SyncError},
		}},
	}
	st := ComputeStatistics(days)
	if st.TotalRecords != 4 || st.SyncedRecords != 2 || st.PendingSync != 1 {
		t.Errorf("stats = %+v, want total 4 synced 2 pending 1", st)
	}
	if st.SyncRate != 50 {
		t.Errorf("SyncRate = %v, want 50", st.SyncRate)
	}
	if ComputeStatistics(nil).SyncRate != 0 {
		t.Error("empty snapshot should have SyncRate 0")
	}
}

func TestSnapshotClone_Independent(t *testing.T) {
	rate := 100.0
	s := &Snapshot{Days: []Day{{Date: mustDate(t, "2025-03-01"), Cells: []Cell{{RoomID: 7, Rate: &rate}}}}}
	cp := s.Clone()
	*cp.Days[0].Cells[0].Rate = 300
	if *s.Days[0].Cells[0].Rate != 100 {
		t.Error("mutating clone changed the original")
	}
}

// ---------------------------------------------------------------------------
// Bulk payload
// ---------------------------------------------------------------------------

func TestBuildBulkPayload_CloseAvailability(t *testing.T) {
	scope := BulkScope{From: mustDate(t, "2025-04-01"), To: mustDate(t, "2025-04-05"), RoomIDs: []int64{1, 2}}
	p, err := BuildBulkPayload(9, scope, BulkActions{AvailabilityAction: AvailabilityClose})
	if err != nil {
		t.Fatalf("BuildBulkPayload: %v", err)
	}
	if p.IsAvailable == nil || *p.IsAvailable {
		t.Errorf("IsAvailable = %v, want false", p.IsAvailable)
	}
	if p.Cells != 10 {
		t.Errorf("Cells = %d, want 10", p.Cells)
	}
	if p.Rate != nil || p.RateAdjustment != nil || p.MinStay != nil {
		t.Error("untouched fields must be absent from the payload")
	}

	b, _ := json.Marshal(p)
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if _, ok := raw["rate"]; ok {
		t.Error("JSON payload contains rate although price was not touched")
	}
}

func TestBuildBulkPayload_PriceSetAndAdjust(t *testing.T) {
	scope := BulkScope{From: mustDate(t, "2025-04-01"), To: mustDate(t, "2025-04-01"), RoomIDs: []int64{1}}
	p, err := BuildBulkPayload(0, scope, BulkActions{PriceAction: PriceSet, PriceValue: 180})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if p.Rate == nil || *p.Rate != 180 || p.IsAvailable != nil {
		t.Errorf("set payload = %+v", p)
	}

	p, err = BuildBulkPayload(0, scope, BulkActions{PriceAction: PriceIncrease, PriceMode: PricePercent, PriceValue: 10})
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if p.RateAdjustment == nil || p.RateAdjustment.Mode != PricePercent || p.Rate != nil {
		t.Errorf("increase payload = %+v", p)
	}
}

func TestBuildBulkPayload_RejectsNonFinitePrice(t *testing.T) {
	scope := BulkScope{From: mustDate(t, "2025-04-01"), To: mustDate(t, "2025-04-01"), RoomIDs: []int64{1}}
	for _, a := range []BulkActions{
		{PriceAction: PriceSet, PriceValue: math.NaN()},
		{PriceAction: PriceIncrease, PriceMode: PricePercent, PriceValue: math.Inf(1)},
	} {
		if _, err := BuildBulkPayload(0, scope, a); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("BuildBulkPayload(%s %v) = %v, want ErrInvalidValue", a.PriceAction, a.PriceValue, err)
		}
	}
}

func TestBuildBulkPayload_RejectsBadScope(t *testing.T) {
	act := BulkActions{AvailabilityAction: AvailabilityOpen}
	_, err := BuildBulkPayload(0, BulkScope{From: mustDate(t, "2025-04-01"), To: mustDate(t, "2025-04-05")}, act)
	if !errors.Is(err, ErrEmptyRooms) {
		t.Errorf("empty rooms: err = %v, want ErrEmptyRooms", err)
	}
	_, err = BuildBulkPayload(0, BulkScope{From: mustDate(t, "2025-04-05"), To: mustDate(t, "2025-04-01"), RoomIDs: []int64{1}}, act)
	if !errors.Is(err, ErrInvertedRange) {
		t.Errorf("inverted: err = %v, want ErrInvertedRange", err)
	}
	_, err = BuildBulkPayload(0, BulkScope{From: mustDate(t, "2025-04-01"), To: mustDate(t, "2025-04-05"), RoomIDs: []int64{1}}, BulkActions{})
	if !errors.Is(err, ErrNoActions) {
		t.Errorf("no actions: err = %v, want ErrNoActions", err)
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"sync_pending_updated","data":{"count":4}}`), "")
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.Type != EventSyncPendingUpdated {
		t.Errorf("Type = %q", ev.Type)
	}
	var data PendingUpdatedData
	if err := json.Unmarshal(ev.Data, &data); err != nil || data.Count != 4 {
		t.Errorf("data = %+v (err %v), want count 4", data, err)
	}

	ev, err = DecodeEvent([]byte(`{"data":{}}`), "sync_completed")
	if err != nil || ev.Type != EventSyncCompleted {
		t.Errorf("fallback type: ev = %+v err = %v", ev, err)
	}

	if _, err := DecodeEvent([]byte(`{"data":{}}`), ""); err == nil {
		t.Error("expected error for event without type")
	}
}
