// Package guard enforces the per-goal send discipline: cooldown, daily cap,
// quiet hours, and habit-aware deferral. The decision here is pure; the
// atomic claim that makes it stick lives in the store (a single optimistic
// write), so two concurrent evaluations can both call Decide and only one
// will win the send.
//
// Per goal the machine cycles idle -> eligible -> sent -> cooling_down ->
// idle. Decide answers whether eligible may become sent right now, must wait
// (deferred via next_run_at), or is blocked for this cycle.
package guard

import (
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/window"
)

// Outcome of a guard decision.
type Outcome int

const (
	Allow Outcome = iota
	Defer         // re-queue at Decision.Until via the schedule sweep
	Block         // no-op this cycle; the next trigger re-evaluates
)

// Reason explains a Defer or Block.
type Reason string

const (
	ReasonCooldown    Reason = "cooldown_active"
	ReasonDailyCap    Reason = "daily_cap_reached"
	ReasonQuietHours  Reason = "quiet_hours"
	ReasonHabitWindow Reason = "habit_window"
)

// Decision is the guard's verdict for one evaluation.
type Decision struct {
	Outcome     Outcome
	Until       time.Time // set when Outcome == Defer
	Reason      Reason
	BypassQuiet bool // send is exercising the once-per-goal quiet-hours bypass
}

// Input carries everything Decide needs. LastSentAt comes from the latest
// MessageRecord, not from the cached schedule column, so a restart or a
// stale cache cannot reopen a cooldown. SentToday counts the user's records
// since their local midnight.
type Input struct {
	Schedule   *model.NotificationSchedule
	LastSentAt time.Time // zero when the goal has never been messaged
	SentToday  int
	Now        time.Time
	Loc        *time.Location
	Cooldown   time.Duration
	DailyCap   int
	Category   model.Category
	Severe     bool // deadline urgency at or above the severe threshold
	HabitMatch bool
}

// CooldownActive reports whether the goal is still cooling down at now.
func CooldownActive(lastSentAt, now time.Time, cooldown time.Duration) bool {
	return !lastSentAt.IsZero() && now.Before(lastSentAt.Add(cooldown))
}

// Decide runs the gate checks in order: cooldown, daily cap, quiet hours,
// habit window. Quiet hours defer rather than drop, except that a severe
// urgent category may bypass them once per goal.
func Decide(in Input) Decision {
	if CooldownActive(in.LastSentAt, in.Now, in.Cooldown) {
		return Decision{Outcome: Block, Reason: ReasonCooldown}
	}

	if in.SentToday >= in.DailyCap {
		return Decision{Outcome: Block, Reason: ReasonDailyCap}
	}

	local := in.Now.In(in.Loc)
	if in.Schedule.QuietHours.Contains(local) {
		if in.Severe && in.Category.Urgent() && !in.Schedule.QuietBypassUsed {
			return Decision{Outcome: Allow, BypassQuiet: true}
		}
		return Decision{
			Outcome: Defer,
			Until:   quietHoursEnd(in.Schedule.QuietHours, local),
			Reason:  ReasonQuietHours,
		}
	}

	if in.Schedule.HabitWindow != nil && !in.HabitMatch && !in.Severe {
		// Defer to the next habit-window occurrence, but only within the
		// same local day; a window already begun or passed sends now.
		start := in.Schedule.HabitWindow.Start.At(local)
		if start.After(local) && window.DayKey(start, in.Loc) == window.DayKey(local, in.Loc) {
			return Decision{Outcome: Defer, Until: start, Reason: ReasonHabitWindow}
		}
	}

	return Decision{Outcome: Allow}
}

// quietHoursEnd returns the next boundary outside quiet hours after local.
func quietHoursEnd(q model.TimeRange, local time.Time) time.Time {
	end := q.End.At(local)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// NextDailyReset returns the user-local day boundary at which the daily send
// count rolls over.
func NextDailyReset(now time.Time, loc *time.Location) time.Time {
	return window.NextDayStart(now, loc)
}
