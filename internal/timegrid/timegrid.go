// Package timegrid projects program intervals onto a horizontal timeline whose
// axis is wall-clock time in a display zone.
package timegrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"
)

// ErrInvalidWindow reports a time window whose start is not before its end.
var ErrInvalidWindow = errors.New("invalid time window")

// Window is an immutable [Start, End) pair rendered in Loc.
type Window struct {
	Start time.Time
	End   time.Time
	Loc   *time.Location
}

// Interval is one entity placed on the grid.
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Rect is the horizontal geometry of an interval, in cells.
type Rect struct {
	Left  float64
	Width float64
}

// Right returns the end offset of the rect.
func (r Rect) Right() float64 {
	return r.Left + r.Width
}

func NewWindow(start, end time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Start: start, End: end, Loc: loc}, nil
}

// GuideWindow derives the guide bounds for the day containing now, with both
// hour offsets relative to local midnight in loc. Offsets may be negative or
// exceed 24.
func GuideWindow(now time.Time, loc *time.Location, startHour, endHour int) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, startHour, 0, 0, 0, loc)
	end := time.Date(y, m, d, endHour, 0, 0, 0, loc)
	return NewWindow(start, end, loc)
}

// DefaultGuideWindow is the full local day containing now.
func DefaultGuideWindow(now time.Time, loc *time.Location) Window {
	w, _ := GuideWindow(now, loc, 0, 24)
	return w
}

// SafeGuideWindow derives the guide window like GuideWindow. A misconfigured
// pair of offsets is returned as an error in strict mode; otherwise it is
// logged and replaced by the full local day.
func SafeGuideWindow(now time.Time, loc *time.Location, startHour, endHour int, strict bool, log pslog.Logger) (Window, error) {
	w, err := GuideWindow(now, loc, startHour, endHour)
	if err == nil {
		return w, nil
	}
	if strict {
		return Window{}, err
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Warn("guide window misconfigured, using full day", "start_hour", startHour, "end_hour", endHour, "err", err)
	return DefaultGuideWindow(now, loc), nil
}

// DayKey identifies the wall-clock day of t in loc. A guide window must be
// derived again when the key for the current time changes.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}

// wall re-reads the wall-clock fields of t in loc as if they were UTC, so
// that subtracting two wall values yields wall-clock distance.
func wall(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

func wallMinutes(from, to time.Time, loc *time.Location) float64 {
	return wall(to, loc).Sub(wall(from, loc)).Minutes()
}

// WallMinutes is the wall-clock length of the window.
func (w Window) WallMinutes() float64 {
	return wallMinutes(w.Start, w.End, w.loc())
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether iv intersects the window.
func (w Window) Overlaps(iv Interval) bool {
	return iv.Start.Before(w.End) && iv.End.After(w.Start)
}

// Offset returns the position of t relative to the window start.
func (w Window) Offset(t time.Time, scalePerMinute float64) float64 {
	return wallMinutes(w.Start, t, w.loc()) * scalePerMinute
}

func (w Window) loc() *time.Location {
	if w.Loc == nil {
		return time.Local
	}
	return w.Loc
}

// ComputeLayout returns one rect per interval. Intervals outside the window
// are still projected and degenerate intervals report their true width, which
// may be zero or negative. Clipping is left to the renderer. A window that
// does not start before it ends yields ErrInvalidWindow.
func ComputeLayout(w Window, scalePerMinute float64, intervals []Interval) (map[string]Rect, error) {
	if !w.Start.Before(w.End) {
		return nil, fmt.Errorf("layout %s - %s: %w", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), ErrInvalidWindow)
	}
	out := make(map[string]Rect, len(intervals))
	loc := w.loc()
	for _, iv := range intervals {
		out[iv.ID] = Rect{
			Left:  wallMinutes(w.Start, iv.Start, loc) * scalePerMinute,
			Width: wallMinutes(iv.Start, iv.End, loc) * scalePerMinute,
		}
	}
	return out, nil
}

// IsLive reports start <= now < end. It is evaluated on demand so a timer can
// refresh it without recomputing geometry.
func IsLive(iv Interval, now time.Time) bool {
	return !now.Before(iv.Start) && now.Before(iv.End)
}

// ScaleForWidth returns the cells-per-minute scale that fits the whole window
// into width cells.
func ScaleForWidth(w Window, width int) float64 {
	minutes := w.WallMinutes()
	if width <= 0 || minutes <= 0 {
		return 0
	}
	return float64(width) / minutes
}

// Ticks returns axis marks aligned to step in wall-clock time, inside the window.
func Ticks(w Window, step time.Duration) []time.Time {
	if step <= 0 {
		return nil
	}
	loc := w.loc()
	first := wall(w.Start, loc).Truncate(step)
	if first.Before(wall(w.Start, loc)) {
		first = first.Add(step)
	}
	last := wall(w.End, loc)
	// A window across a fall-back transition can end earlier on the wall clock
	// than it starts.
	if !first.Before(last) {
		return nil
	}
	ticks := make([]time.Time, 0, int(last.Sub(first)/step)+1)
	for t := first; t.Before(last); t = t.Add(step) {
		ticks = append(ticks, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc))
	}
	return ticks
}
