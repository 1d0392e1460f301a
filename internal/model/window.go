package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvertedRange is returned when a range has From after To.
	ErrInvertedRange = errors.New("range start is after range end")

	// ErrEmptyRange is returned when a range boundary is missing.
	ErrEmptyRange = errors.New("range start and end are required")
)

// Window is the inclusive date range [From, To] currently displayed by the
// calendar.
type Window struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// NewWindow returns a window of days days starting at from.
func NewWindow(from Date, days int) Window {
	if days < 1 {
		days = 1
	}
	return Window{From: from, To: from.AddDays(days - 1)}
}

// Validate checks that both bounds are set and From ≤ To.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return ErrEmptyRange
	}
	if w.From.After(w.To) {
		return fmt.Errorf("window %s..%s: %w", w.From, w.To, ErrInvertedRange)
	}
	return nil
}

// Days returns the number of days covered, inclusive of both ends.
func (w Window) Days() int {
	return w.From.DaysUntil(w.To) + 1
}

// Contains reports whether d lies within the window.
func (w Window) Contains(d Date) bool {
	return !d.Before(w.From) && !d.After(w.To)
}

// Dates lists every date in the window in ascending order.
func (w Window) Dates() []Date {
	n := w.Days()
	if n <= 0 {
		return nil
	}
	out := make([]Date, 0, n)
	for d := w.From; !d.After(w.To); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func (w Window) String() string {
	return w.From.String() + ".." + w.To.String()
}

// --- Navigation --------------------------------------------------------------

// Direction selects a navigation step.
type Direction int

const (
	// Backward steps the window into the past.
	Backward Direction = -1
	// Forward steps the window into the future.
	Forward Direction = 1
)

// Shift moves the whole window by period days in the given direction,
// preserving its length.
func (w Window) Shift(dir Direction, period int) Window {
	n := int(dir) * period
	return Window{From: w.From.AddDays(n), To: w.To.AddDays(n)}
}

// Prev steps the window back by period days.
func (w Window) Prev(period int) Window { return w.Shift(Backward, period) }

// Next steps the window forward by period days.
func (w Window) Next(period int) Window { return w.Shift(Forward, period) }

// WeekStart returns the most recent date on or before d that falls on start.
func WeekStart(d Date, start time.Weekday) Date {
	offset := (int(d.Weekday()) - int(start) + 7) % 7
	return d.AddDays(-offset)
}

// TodayWindow returns a window of days days starting at the most recent week
// boundary on or before now.
func TodayWindow(now time.Time, start time.Weekday, days int) Window {
	return NewWindow(WeekStart(DateOf(now), start), days)
}
