// Package window converts absolute time plus a user timezone into the
// concrete [start, end) interval a goal is measured over. Calendar windows
// use user-local day boundaries; all day arithmetic goes through time.Date
// in the user's location so DST transitions cannot shift a boundary.
package window

import (
	"fmt"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// Span is a resolved half-open interval [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// Days returns the window length in fractional days.
func (s Span) Days() float64 {
	return s.End.Sub(s.Start).Hours() / 24
}

// Contains reports whether t falls inside the span.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Resolve computes the absolute window for a goal at the given instant.
// Rolling windows are [now-d, now); calendar windows snap to the user-local
// week (Monday 00:00) or month boundary; until_deadline runs from the goal's
// start to its deadline.
func Resolve(g *model.Goal, now time.Time, loc *time.Location) (Span, error) {
	local := now.In(loc)

	switch g.Window {
	case model.WindowRolling7d, model.WindowRolling30d:
		return Span{Start: now.Add(-g.Window.RollingDuration()), End: now}, nil

	case model.WindowCalendarWeek:
		start := weekStart(local)
		return Span{Start: start, End: start.AddDate(0, 0, 7)}, nil

	case model.WindowCalendarMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return Span{Start: start, End: start.AddDate(0, 1, 0)}, nil

	case model.WindowUntilDeadline:
		if g.DeadlineAt == nil {
			return Span{}, fmt.Errorf("goal %s: until_deadline window without deadline_at", g.ID)
		}
		return Span{Start: g.StartAt, End: *g.DeadlineAt}, nil
	}
	return Span{}, fmt.Errorf("goal %s: unrecognized window %q", g.ID, g.Window)
}

// weekStart returns Monday 00:00 of the local week containing t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// DayStart returns user-local midnight of the day containing t.
func DayStart(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// NextDayStart returns user-local midnight of the day after t.
func NextDayStart(t time.Time, loc *time.Location) time.Time {
	return DayStart(t, loc).AddDate(0, 0, 1)
}

// DayKey returns a sortable YYYY-MM-DD key for the user-local day of t.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// LoadLocation resolves an IANA timezone name, falling back to UTC for an
// empty name. An unresolvable non-empty name is an error so the caller can
// treat it as a clock anomaly instead of silently evaluating in UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone %q: %w", name, err)
	}
	return loc, nil
}
