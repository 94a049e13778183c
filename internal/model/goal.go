// Package model defines the domain types shared by the goal evaluation
// engine: goals, session events, progress snapshots, notification schedules,
// and the outbound message shapes handed to the dispatch boundary.
package model

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// Metric identifies what a goal measures. Closed set; anything else is an
// invalid goal definition.
type Metric string

const (
	MetricDistanceTotal            Metric = "distance_total"
	MetricSessionCount             Metric = "session_count"
	MetricStreakDays               Metric = "streak_days"
	MetricElevationGainTotal       Metric = "elevation_gain_total"
	MetricDurationTotal            Metric = "duration_total"
	MetricStepsTotal               Metric = "steps_total"
	MetricLoadWeightedSessionCount Metric = "load_weighted_session_count"
	MetricEffortPointsTotal        Metric = "effort_points_total"
)

// metricUnits maps each metric to its canonical display unit.
var metricUnits = map[Metric]string{
	MetricDistanceTotal:            "km",
	MetricSessionCount:             "sessions",
	MetricStreakDays:               "days",
	MetricElevationGainTotal:       "m",
	MetricDurationTotal:            "minutes",
	MetricStepsTotal:               "steps",
	MetricLoadWeightedSessionCount: "weighted sessions",
	MetricEffortPointsTotal:        "points",
}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	_, ok := metricUnits[m]
	return ok
}

// Unit returns the canonical display unit for the metric.
func (m Metric) Unit() string {
	return metricUnits[m]
}

// --------------------------------------------------------------------------
// Windows
// --------------------------------------------------------------------------

// Window identifies the time interval a goal is measured over.
type Window string

const (
	WindowRolling7d     Window = "rolling_7d"
	WindowRolling30d    Window = "rolling_30d"
	WindowCalendarWeek  Window = "calendar_week"
	WindowCalendarMonth Window = "calendar_month"
	WindowUntilDeadline Window = "until_deadline"
)

// Valid reports whether w is a known window kind.
func (w Window) Valid() bool {
	switch w {
	case WindowRolling7d, WindowRolling30d, WindowCalendarWeek,
		WindowCalendarMonth, WindowUntilDeadline:
		return true
	}
	return false
}

// Rolling reports whether the window slides with the current time.
func (w Window) Rolling() bool {
	return w == WindowRolling7d || w == WindowRolling30d
}

// RollingDuration returns the length of a rolling window, or 0 for
// calendar/deadline windows.
func (w Window) RollingDuration() time.Duration {
	switch w {
	case WindowRolling7d:
		return 7 * 24 * time.Hour
	case WindowRolling30d:
		return 30 * 24 * time.Hour
	}
	return 0
}

// --------------------------------------------------------------------------
// Goal
// --------------------------------------------------------------------------

// GoalStatus is the lifecycle state of a goal. Completed, canceled, and
// expired are terminal: evaluation freezes once a goal reaches them.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalCanceled  GoalStatus = "canceled"
	GoalExpired   GoalStatus = "expired"
)

// Valid reports whether s is a known status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalPaused, GoalCompleted, GoalCanceled, GoalExpired:
		return true
	}
	return false
}

// Terminal reports whether the status freezes further evaluation.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalCanceled || s == GoalExpired
}

// Goal is a user-defined measurable target. Goals are created and validated
// by the external creation flow; this engine only checks the fields it
// depends on (see Validate).
type Goal struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Metric      Metric
	TargetValue float64
	Unit        string
	Window      Window
	Constraints Constraints
	StartAt     time.Time
	EndAt       *time.Time
	DeadlineAt  *time.Time
	Status      GoalStatus
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WindowEnd returns the explicit end of the goal's window, if it has one.
// Rolling windows have none.
func (g *Goal) WindowEnd() *time.Time {
	if g.Window == WindowUntilDeadline && g.DeadlineAt != nil {
		return g.DeadlineAt
	}
	return g.EndAt
}

// Validate checks the invariants this engine relies on. A goal failing
// validation is marked inert and never evaluated.
func (g *Goal) Validate() error {
	if !g.Metric.Valid() {
		return fmt.Errorf("unrecognized metric %q", g.Metric)
	}
	if g.TargetValue <= 0 {
		return fmt.Errorf("target_value must be positive, got %v", g.TargetValue)
	}
	if !g.Window.Valid() {
		return fmt.Errorf("unrecognized window %q", g.Window)
	}
	// Exactly one of {rolling window, explicit end} determines closure.
	if g.Window.Rolling() && g.EndAt != nil {
		return fmt.Errorf("rolling window %q cannot carry an explicit end_at", g.Window)
	}
	if g.Window == WindowUntilDeadline && g.DeadlineAt == nil {
		return fmt.Errorf("window until_deadline requires deadline_at")
	}
	if end := g.WindowEnd(); end != nil && !end.After(g.StartAt) {
		return fmt.Errorf("window end %v is not after start %v", end, g.StartAt)
	}
	if err := g.Constraints.Validate(); err != nil {
		return fmt.Errorf("constraints: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Constraints
// --------------------------------------------------------------------------

// Constraints filter which session events count toward a goal. Stored as a
// typed struct rather than a free-form rule blob; validated once at load.
type Constraints struct {
	MinDistanceKm      float64 `json:"min_distance_km,omitempty"`
	MinDurationMinutes float64 `json:"min_duration_minutes,omitempty"`
	MinElevationGainM  float64 `json:"min_elevation_gain_m,omitempty"`
	MinLoadKg          float64 `json:"min_load_kg,omitempty"`
	RequiredTag        string  `json:"required_tag,omitempty"`
}

// Validate rejects negative thresholds.
func (c Constraints) Validate() error {
	if c.MinDistanceKm < 0 || c.MinDurationMinutes < 0 || c.MinElevationGainM < 0 || c.MinLoadKg < 0 {
		return fmt.Errorf("constraint thresholds must be non-negative")
	}
	return nil
}

// Matches reports whether a session event satisfies every constraint.
func (c Constraints) Matches(ev *SessionEvent) bool {
	if ev.DistanceKm < c.MinDistanceKm {
		return false
	}
	if ev.DurationMinutes < c.MinDurationMinutes {
		return false
	}
	if ev.ElevationGainM < c.MinElevationGainM {
		return false
	}
	if ev.LoadKg < c.MinLoadKg {
		return false
	}
	if c.RequiredTag != "" && !ev.HasTag(c.RequiredTag) {
		return false
	}
	return true
}
