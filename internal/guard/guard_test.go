package guard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/guard"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

const (
	cooldown = 18 * time.Hour
	dailyCap = 2
)

// daytime is well outside the default 22:00-09:00 quiet hours.
var daytime = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

func input(now time.Time) guard.Input {
	return guard.Input{
		Schedule: model.DefaultSchedule("g1", "u1", now.Add(-24*time.Hour)),
		Now:      now,
		Loc:      time.UTC,
		Cooldown: cooldown,
		DailyCap: dailyCap,
		Category: model.CategoryBehindPace,
	}
}

func TestDecideAllowsByDefault(t *testing.T) {
	dec := guard.Decide(input(daytime))
	assert.Equal(t, guard.Allow, dec.Outcome)
	assert.False(t, dec.BypassQuiet)
}

func TestDecideCooldownBlocks(t *testing.T) {
	in := input(daytime)
	in.LastSentAt = daytime.Add(-17 * time.Hour)

	dec := guard.Decide(in)
	assert.Equal(t, guard.Block, dec.Outcome)
	assert.Equal(t, guard.ReasonCooldown, dec.Reason)

	// Cooldown elapsed: allowed again.
	in.LastSentAt = daytime.Add(-19 * time.Hour)
	assert.Equal(t, guard.Allow, guard.Decide(in).Outcome)
}

func TestCooldownActive(t *testing.T) {
	assert.False(t, guard.CooldownActive(time.Time{}, daytime, cooldown))
	assert.True(t, guard.CooldownActive(daytime.Add(-time.Hour), daytime, cooldown))
	assert.False(t, guard.CooldownActive(daytime.Add(-cooldown), daytime, cooldown))
}

func TestDecideDailyCapBlocks(t *testing.T) {
	in := input(daytime)
	in.SentToday = dailyCap

	dec := guard.Decide(in)
	assert.Equal(t, guard.Block, dec.Outcome)
	assert.Equal(t, guard.ReasonDailyCap, dec.Reason)
}

func TestDecideQuietHoursDefers(t *testing.T) {
	night := time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
	in := input(night)

	dec := guard.Decide(in)
	require.Equal(t, guard.Defer, dec.Outcome)
	assert.Equal(t, guard.ReasonQuietHours, dec.Reason)

	// Deferred to quiet-hours end: 09:00 the next morning.
	assert.Equal(t, time.Date(2026, 6, 16, 9, 0, 0, 0, time.UTC), dec.Until)
}

func TestDecideQuietHoursEarlyMorningDefersToSameDay(t *testing.T) {
	morning := time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)
	dec := guard.Decide(input(morning))

	require.Equal(t, guard.Defer, dec.Outcome)
	assert.Equal(t, time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC), dec.Until)
}

func TestDecideSevereUrgentBypassesQuietHoursOnce(t *testing.T) {
	night := time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
	in := input(night)
	in.Category = model.CategoryDeadlineUrgent
	in.Severe = true

	dec := guard.Decide(in)
	assert.Equal(t, guard.Allow, dec.Outcome)
	assert.True(t, dec.BypassQuiet)

	// Bypass already spent for this goal: back to deferring.
	in.Schedule.QuietBypassUsed = true
	dec = guard.Decide(in)
	assert.Equal(t, guard.Defer, dec.Outcome)
	assert.False(t, dec.BypassQuiet)
}

func TestDecideSevereNonUrgentCategoryStillDefers(t *testing.T) {
	// The bypass needs both severity and an urgent category.
	night := time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
	in := input(night)
	in.Category = model.CategoryBehindPace
	in.Severe = true

	assert.Equal(t, guard.Defer, guard.Decide(in).Outcome)
}

func TestDecideHabitWindowDefer(t *testing.T) {
	in := input(daytime) // 14:00
	in.Schedule.HabitWindow = &model.TimeRange{Start: 17 * 60, End: 19 * 60}

	dec := guard.Decide(in)
	require.Equal(t, guard.Defer, dec.Outcome)
	assert.Equal(t, guard.ReasonHabitWindow, dec.Reason)
	assert.Equal(t, time.Date(2026, 6, 15, 17, 0, 0, 0, time.UTC), dec.Until)
}

func TestDecideHabitWindowPassedSendsNow(t *testing.T) {
	// The day's habit window is already over: send now rather than hold
	// the message until tomorrow.
	in := input(daytime) // 14:00
	in.Schedule.HabitWindow = &model.TimeRange{Start: 7 * 60, End: 9 * 60}

	assert.Equal(t, guard.Allow, guard.Decide(in).Outcome)
}

func TestDecideHabitMatchSendsNow(t *testing.T) {
	in := input(daytime)
	in.Schedule.HabitWindow = &model.TimeRange{Start: 13 * 60, End: 15 * 60}
	in.HabitMatch = true

	assert.Equal(t, guard.Allow, guard.Decide(in).Outcome)
}

func TestDecideSevereSkipsHabitDeferral(t *testing.T) {
	in := input(daytime)
	in.Schedule.HabitWindow = &model.TimeRange{Start: 17 * 60, End: 19 * 60}
	in.Severe = true

	assert.Equal(t, guard.Allow, guard.Decide(in).Outcome)
}

func TestDecideOrderCooldownBeforeQuietHours(t *testing.T) {
	night := time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
	in := input(night)
	in.LastSentAt = night.Add(-time.Hour)

	dec := guard.Decide(in)
	assert.Equal(t, guard.Block, dec.Outcome)
	assert.Equal(t, guard.ReasonCooldown, dec.Reason)
}

func TestNextDailyReset(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	// 03:30 UTC June 16 is the evening of June 15 in Denver; the daily
	// count rolls over at Denver midnight, not UTC midnight.
	now := time.Date(2026, 6, 16, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 16, 0, 0, 0, 0, loc), guard.NextDailyReset(now, loc))
}
