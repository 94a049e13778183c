// Package progress recomputes a goal's current value from the session event
// log. Aggregation is a pure recompute over the goal's resolved window, so
// redelivered, backfilled, or edited sessions simply change the next result;
// nothing is ever incremented in place.
package progress

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/window"
)

// EventSource is the read-only session store the aggregator pulls from.
type EventSource interface {
	EventsInRange(ctx context.Context, userID string, from, to time.Time) ([]model.SessionEvent, error)
}

// Reference load for load-weighted session counting: a 10 kg session counts
// as 1.0, heavier sessions up to 2.0, an unloaded session as 0.5.
const (
	referenceLoadKg = 10.0
	minLoadWeight   = 0.5
	maxLoadWeight   = 2.0
)

// Aggregate recomputes the progress snapshot for a goal at the given
// instant. Zero qualifying events yields current_value = 0, not an error;
// an event source failure is returned as-is so the caller can skip the
// cycle instead of reporting false zero progress.
func Aggregate(ctx context.Context, src EventSource, g *model.Goal, now time.Time, loc *time.Location) (*model.ProgressSnapshot, error) {
	span, err := window.Resolve(g, now, loc)
	if err != nil {
		return nil, err
	}

	events, err := src.EventsInRange(ctx, g.UserID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("load events for goal %s: %w", g.ID, err)
	}

	var qualifying []model.SessionEvent
	for _, ev := range events {
		if span.Contains(ev.OccurredAt) && g.Constraints.Matches(&ev) {
			qualifying = append(qualifying, ev)
		}
	}
	sort.Slice(qualifying, func(i, j int) bool {
		return qualifying[i].OccurredAt.Before(qualifying[j].OccurredAt)
	})

	value := aggregate(g.Metric, qualifying, now, loc)
	if value < 0 {
		value = 0
	}

	ids := make([]string, 0, len(qualifying))
	var lastAt time.Time
	for _, ev := range qualifying {
		ids = append(ids, ev.SessionID)
		if ev.OccurredAt.After(lastAt) {
			lastAt = ev.OccurredAt
		}
	}

	pct := value / g.TargetValue * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return &model.ProgressSnapshot{
		GoalID:               g.ID,
		CurrentValue:         value,
		ProgressPercent:      pct,
		LastEvaluatedAt:      now,
		LastContributingAt:   lastAt,
		ContributingEventIDs: ids,
	}, nil
}

// aggregate applies the metric's aggregation rule to qualifying events,
// already sorted chronologically.
func aggregate(m model.Metric, events []model.SessionEvent, now time.Time, loc *time.Location) float64 {
	var total float64
	switch m {
	case model.MetricDistanceTotal:
		for _, ev := range events {
			total += max(0, ev.DistanceKm)
		}
	case model.MetricDurationTotal:
		for _, ev := range events {
			total += max(0, ev.DurationMinutes)
		}
	case model.MetricElevationGainTotal:
		for _, ev := range events {
			total += max(0, ev.ElevationGainM)
		}
	case model.MetricStepsTotal:
		for _, ev := range events {
			total += max(0, float64(ev.Steps))
		}
	case model.MetricEffortPointsTotal:
		for _, ev := range events {
			total += max(0, ev.PowerPoints)
		}
	case model.MetricSessionCount:
		total = float64(len(events))
	case model.MetricLoadWeightedSessionCount:
		for _, ev := range events {
			total += loadWeight(ev.LoadKg)
		}
	case model.MetricStreakDays:
		total = float64(trailingStreak(events, now, loc))
	}
	return total
}

// loadWeight converts carried load into a session weight.
func loadWeight(loadKg float64) float64 {
	w := minLoadWeight + loadKg/(2*referenceLoadKg)
	return min(w, maxLoadWeight)
}

// trailingStreak counts the consecutive run of user-local days with at least
// one qualifying session, ending at the day containing now. Any gap resets
// the run: days {1,2,3,5,6,7} at day 7 is a streak of 3, not 7.
func trailingStreak(events []model.SessionEvent, now time.Time, loc *time.Location) int {
	if len(events) == 0 {
		return 0
	}
	days := make(map[string]bool, len(events))
	for _, ev := range events {
		days[window.DayKey(ev.OccurredAt, loc)] = true
	}

	streak := 0
	day := window.DayStart(now, loc)
	for days[window.DayKey(day, loc)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
