package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

func TestTimeRangeContains(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		r    model.TimeRange
		at   time.Time
		want bool
	}{
		{name: "inside plain range", r: model.TimeRange{Start: 9 * 60, End: 17 * 60}, at: at(12, 0), want: true},
		{name: "before plain range", r: model.TimeRange{Start: 9 * 60, End: 17 * 60}, at: at(8, 59), want: false},
		{name: "end is exclusive", r: model.TimeRange{Start: 9 * 60, End: 17 * 60}, at: at(17, 0), want: false},
		{name: "start is inclusive", r: model.TimeRange{Start: 9 * 60, End: 17 * 60}, at: at(9, 0), want: true},
		{name: "wrapping range late evening", r: model.TimeRange{Start: 22 * 60, End: 9 * 60}, at: at(23, 30), want: true},
		{name: "wrapping range early morning", r: model.TimeRange{Start: 22 * 60, End: 9 * 60}, at: at(3, 0), want: true},
		{name: "wrapping range daytime", r: model.TimeRange{Start: 22 * 60, End: 9 * 60}, at: at(12, 0), want: false},
		{name: "wrapping end exclusive", r: model.TimeRange{Start: 22 * 60, End: 9 * 60}, at: at(9, 0), want: false},
		{name: "empty range matches nothing", r: model.TimeRange{Start: 10 * 60, End: 10 * 60}, at: at(10, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Contains(tt.at))
		})
	}
}

func TestMinuteOfDayAt(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	now := time.Date(2026, 6, 15, 8, 30, 0, 0, loc)
	got := model.MinuteOfDay(18 * 60).At(now)

	assert.Equal(t, 18, got.Hour())
	assert.Equal(t, 0, got.Minute())
	assert.Equal(t, now.Day(), got.Day())
	assert.Equal(t, loc, got.Location())

	assert.Equal(t, "18:00", model.MinuteOfDay(18*60).String())
	assert.Equal(t, "09:05", model.MinuteOfDay(9*60+5).String())
}

func TestGoalValidate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := start.AddDate(0, 1, 0)

	base := func() model.Goal {
		return model.Goal{
			ID:          "g1",
			UserID:      "u1",
			Metric:      model.MetricDistanceTotal,
			TargetValue: 50,
			Window:      model.WindowRolling30d,
			StartAt:     start,
		}
	}

	t.Run("valid rolling goal", func(t *testing.T) {
		g := base()
		require.NoError(t, g.Validate())
	})

	t.Run("unknown metric", func(t *testing.T) {
		g := base()
		g.Metric = "vertical_leap"
		assert.Error(t, g.Validate())
	})

	t.Run("non-positive target", func(t *testing.T) {
		g := base()
		g.TargetValue = 0
		assert.Error(t, g.Validate())
	})

	t.Run("rolling window with explicit end", func(t *testing.T) {
		g := base()
		end := start.AddDate(0, 0, 10)
		g.EndAt = &end
		assert.Error(t, g.Validate())
	})

	t.Run("until_deadline requires deadline", func(t *testing.T) {
		g := base()
		g.Window = model.WindowUntilDeadline
		assert.Error(t, g.Validate())

		g.DeadlineAt = &deadline
		assert.NoError(t, g.Validate())
	})

	t.Run("deadline before start", func(t *testing.T) {
		g := base()
		g.Window = model.WindowUntilDeadline
		bad := start.AddDate(0, 0, -1)
		g.DeadlineAt = &bad
		assert.Error(t, g.Validate())
	})

	t.Run("negative constraint threshold", func(t *testing.T) {
		g := base()
		g.Constraints.MinDistanceKm = -1
		assert.Error(t, g.Validate())
	})
}

func TestConstraintsMatches(t *testing.T) {
	ev := model.SessionEvent{
		SessionID:       "s1",
		DistanceKm:      5,
		DurationMinutes: 45,
		ElevationGainM:  120,
		LoadKg:          15,
		Tags:            []string{"ruck", "morning"},
	}

	assert.True(t, model.Constraints{}.Matches(&ev))
	assert.True(t, model.Constraints{MinDistanceKm: 5, MinLoadKg: 10}.Matches(&ev))
	assert.False(t, model.Constraints{MinDistanceKm: 5.1}.Matches(&ev))
	assert.False(t, model.Constraints{MinDurationMinutes: 60}.Matches(&ev))
	assert.True(t, model.Constraints{RequiredTag: "ruck"}.Matches(&ev))
	assert.False(t, model.Constraints{RequiredTag: "race"}.Matches(&ev))
}

func TestScheduleMilestoneHit(t *testing.T) {
	s := model.NotificationSchedule{MilestonesHit: []int{25, 50}}
	assert.True(t, s.MilestoneHit(25))
	assert.True(t, s.MilestoneHit(50))
	assert.False(t, s.MilestoneHit(75))
	assert.False(t, (&model.NotificationSchedule{}).MilestoneHit(25))
}

func TestGoalStatusTerminal(t *testing.T) {
	assert.False(t, model.GoalActive.Terminal())
	assert.False(t, model.GoalPaused.Terminal())
	assert.True(t, model.GoalCompleted.Terminal())
	assert.True(t, model.GoalCanceled.Terminal())
	assert.True(t, model.GoalExpired.Terminal())
}
