package model

import (
	"fmt"
	"time"
)

// MinuteOfDay is a user-local time of day expressed as minutes since
// midnight, 0..1439.
type MinuteOfDay int

// At anchors the minute-of-day onto the calendar day containing t, in t's
// location.
func (m MinuteOfDay) At(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), int(m)/60, int(m)%60, 0, 0, t.Location())
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// TimeRange is a daily user-local window. Start > End means the range wraps
// midnight (e.g. quiet hours 22:00 -> 09:00).
type TimeRange struct {
	Start MinuteOfDay
	End   MinuteOfDay
}

// Contains reports whether the local time t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	m := MinuteOfDay(t.Hour()*60 + t.Minute())
	if r.Start == r.End {
		return false
	}
	if r.Start < r.End {
		return m >= r.Start && m < r.End
	}
	return m >= r.Start || m < r.End
}

// NotificationSchedule is the per-goal singleton the schedule guard mutates.
// Version backs the optimistic claim write: two concurrent evaluators racing
// to send both read the same version, and only one UPDATE matches it.
type NotificationSchedule struct {
	GoalID            string
	UserID            string
	CooldownUntil     time.Time
	DailySendCount    int
	DailyCountResetAt time.Time
	QuietHours        TimeRange
	PreferredTime     MinuteOfDay
	HabitWindow       *TimeRange // learned typical activity time; nil until known
	MilestonesHit     []int
	NextRunAt         *time.Time // deferred evaluation, picked up by the sweep
	QuietBypassUsed   bool
	Version           int64
	UpdatedAt         time.Time
}

// MilestoneHit reports whether the milestone percentage was already notified.
func (s *NotificationSchedule) MilestoneHit(pct int) bool {
	for _, m := range s.MilestonesHit {
		if m == pct {
			return true
		}
	}
	return false
}

// DefaultSchedule returns the schedule created alongside a new goal.
func DefaultSchedule(goalID, userID string, now time.Time) *NotificationSchedule {
	return &NotificationSchedule{
		GoalID: goalID,
		UserID: userID,
		QuietHours: TimeRange{
			Start: 22 * 60, // 10 PM local
			End:   9 * 60,  // 9 AM local
		},
		PreferredTime:     18 * 60, // 6 PM local
		DailyCountResetAt: now,
		UpdatedAt:         now,
	}
}
