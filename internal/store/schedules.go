package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// ScheduleByGoal loads the goal's notification schedule.
func (s *Store) ScheduleByGoal(ctx context.Context, goalID string) (*model.NotificationSchedule, error) {
	sched, err := scanSchedule(s.pool.QueryRow(ctx, "schedule_by_goal", goalID))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: schedule by goal: %w", err)
	}
	return sched, nil
}

// DeferSchedule arms next_run_at for a deferred send. Conditional on the
// schedule version so a concurrent claim wins cleanly; losing the race is
// fine — the winner's send supersedes the deferral.
func (s *Store) DeferSchedule(ctx context.Context, goalID string, until time.Time, version int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_schedules
		SET next_run_at = LEAST(COALESCE(next_run_at, $2), $2), version = version + 1, updated_at = NOW()
		WHERE goal_id = $1 AND version = $3`,
		goalID, until, version)
	if err != nil {
		return fmt.Errorf("store: defer schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RearmSchedule sets the next batch evaluation time if none is pending.
// Unconditional on version: re-arming never races with a claim for
// correctness, it only controls when the sweep looks again.
func (s *Store) RearmSchedule(ctx context.Context, goalID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_schedules
		SET next_run_at = $2, updated_at = NOW()
		WHERE goal_id = $1 AND next_run_at IS NULL`,
		goalID, at)
	if err != nil {
		return fmt.Errorf("store: rearm schedule: %w", err)
	}
	return nil
}

// SetHabitWindow stores the externally learned habit window for a goal.
func (s *Store) SetHabitWindow(ctx context.Context, goalID string, habit model.TimeRange) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_schedules
		SET habit_start_minute = $2, habit_end_minute = $3, updated_at = NOW()
		WHERE goal_id = $1`,
		goalID, int(habit.Start), int(habit.End))
	if err != nil {
		return fmt.Errorf("store: set habit window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DueItem is a schedule claimed by the sweep for re-evaluation.
type DueItem struct {
	GoalID string
	UserID string
}

// ClaimDueSchedules atomically claims schedules whose next_run_at has
// arrived, clearing it so concurrent sweepers never double-evaluate. Uses
// FOR UPDATE SKIP LOCKED; the engine re-arms each schedule after the
// evaluation decides the next look.
func (s *Store) ClaimDueSchedules(ctx context.Context, now time.Time, limit int) ([]DueItem, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notification_schedules
		SET next_run_at = NULL, updated_at = NOW()
		WHERE goal_id IN (
			SELECT goal_id FROM notification_schedules
			WHERE next_run_at <= $1
			ORDER BY next_run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING goal_id, user_id`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim due schedules: %w", err)
	}
	defer rows.Close()

	var due []DueItem
	for rows.Next() {
		var d DueItem
		if err := rows.Scan(&d.GoalID, &d.UserID); err != nil {
			return nil, fmt.Errorf("store: scan due schedule: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func scanSchedule(row pgx.Row) (*model.NotificationSchedule, error) {
	var sched model.NotificationSchedule
	var quietStart, quietEnd, preferred int
	var habitStart, habitEnd *int
	var milestones []int32
	err := row.Scan(
		&sched.GoalID, &sched.UserID, &sched.CooldownUntil, &sched.DailySendCount, &sched.DailyCountResetAt,
		&quietStart, &quietEnd, &preferred, &habitStart, &habitEnd,
		&milestones, &sched.NextRunAt, &sched.QuietBypassUsed, &sched.Version, &sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sched.QuietHours = model.TimeRange{Start: model.MinuteOfDay(quietStart), End: model.MinuteOfDay(quietEnd)}
	sched.PreferredTime = model.MinuteOfDay(preferred)
	if habitStart != nil && habitEnd != nil {
		sched.HabitWindow = &model.TimeRange{Start: model.MinuteOfDay(*habitStart), End: model.MinuteOfDay(*habitEnd)}
	}
	sched.MilestonesHit = make([]int, 0, len(milestones))
	for _, m := range milestones {
		sched.MilestonesHit = append(sched.MilestonesHit, int(m))
	}
	return &sched, nil
}
